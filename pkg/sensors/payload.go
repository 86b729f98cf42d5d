// Package sensors turns phone sensor streams into motion samples.
//
// Two transports are supported: the Sensor Logger app's HTTP push
// (ParsePayload, served by pkg/web) and a SensorServer-style websocket that
// this package dials itself (Link).
package sensors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/signal-splat/pkg/motion"
)

// ErrMalformed is returned for a body that is not a Sensor Logger batch.
var ErrMalformed = errors.New("sensors: malformed payload")

// Batch is a Sensor Logger push body.
type Batch struct {
	MessageID int     `json:"messageId"`
	SessionID string  `json:"sessionId"`
	DeviceID  string  `json:"deviceId"`
	Payload   []Entry `json:"payload"`
}

// Entry is one named sensor reading. Time is Unix nanoseconds.
type Entry struct {
	Name   string                     `json:"name"`
	Time   json.Number                `json:"time"`
	Values map[string]json.RawMessage `json:"values"`
}

// ParsePayload decodes a Sensor Logger batch into samples in payload order.
// Unknown sensors and entries without the needed axes are skipped; only a
// body that is not JSON of the right shape is an error.
func ParsePayload(body []byte) ([]motion.Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var batch Batch
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	samples := make([]motion.Sample, 0, len(batch.Payload))
	for _, e := range batch.Payload {
		if s, ok := e.Sample(); ok {
			samples = append(samples, s)
		}
	}
	return samples, nil
}

// Sample maps the entry to a motion sample by case-insensitive name match.
func (e Entry) Sample() (motion.Sample, bool) {
	name := strings.ToLower(e.Name)

	switch {
	case strings.Contains(name, "accelerometer"), strings.Contains(name, "linearacceleration"):
		return motion.AccelSample{
			X:  e.float("x"),
			Y:  e.float("y"),
			Z:  e.float("z"),
			At: e.at(),
		}, true

	case strings.Contains(name, "orientation"):
		yaw, ok := e.lookup("yaw")
		if !ok {
			return nil, false
		}
		return motion.HeadingSample{Yaw: yaw}, true

	case strings.Contains(name, "ar"), strings.Contains(name, "pose"):
		x, okX := e.lookup("x")
		z, okZ := e.lookup("z")
		if !okX || !okZ {
			return nil, false
		}
		return motion.ARPose{X: x, Z: z}, true
	}
	return nil, false
}

// float returns the named value, or 0 when missing or not numeric.
func (e Entry) float(key string) float64 {
	v, _ := e.lookup(key)
	return v
}

func (e Entry) lookup(key string) (float64, bool) {
	raw, ok := e.Values[key]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		// Some exports quote numbers.
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		n = json.Number(s)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (e Entry) at() time.Time {
	ns, err := e.Time.Int64()
	if err != nil || ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
