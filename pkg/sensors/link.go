package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/signal-splat/pkg/motion"
)

// SensorServer sensor type names.
const (
	TypeAccelerometer      = "android.sensor.accelerometer"
	TypeLinearAcceleration = "android.sensor.linear_acceleration"
	TypeOrientation        = "android.sensor.orientation"
)

// Submitter accepts samples; motion.Tracker.Submit satisfies it.
type Submitter func(motion.Sample) bool

// LinkConfig configures a SensorServer connection.
type LinkConfig struct {
	Addr             string   // host:port of the phone, e.g. "192.168.1.20:8080"
	Types            []string // sensor types to subscribe to
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // connection is recycled after this much silence
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	Logger           *slog.Logger
}

// DefaultLinkConfig subscribes to the accelerometer and orientation sensors.
func DefaultLinkConfig(addr string) LinkConfig {
	return LinkConfig{
		Addr:             addr,
		Types:            []string{TypeAccelerometer, TypeOrientation},
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
	}
}

// Message is one SensorServer frame.
type Message struct {
	Type      string    `json:"type"`
	Values    []float64 `json:"values"`
	Accuracy  int       `json:"accuracy"`
	Timestamp int64     `json:"timestamp"`
}

// Sample converts a frame. Orientation azimuth arrives in degrees.
func (m Message) Sample() (motion.Sample, bool) {
	t := strings.ToLower(m.Type)
	switch {
	case strings.Contains(t, "accelerometer"), strings.Contains(t, "linear_acceleration"):
		var v [3]float64
		copy(v[:], m.Values)
		s := motion.AccelSample{X: v[0], Y: v[1], Z: v[2]}
		if m.Timestamp > 0 {
			s.At = time.Unix(0, m.Timestamp)
		}
		return s, true
	case strings.Contains(t, "orientation"):
		if len(m.Values) == 0 {
			return nil, false
		}
		return motion.HeadingSample{Yaw: m.Values[0] * math.Pi / 180}, true
	}
	return nil, false
}

// Link streams samples from a phone running SensorServer.
type Link struct {
	cfg    LinkConfig
	submit Submitter
	logger *slog.Logger
	dialer websocket.Dialer
}

// NewLink creates a link that hands every decoded sample to submit.
func NewLink(cfg LinkConfig, submit Submitter) (*Link, error) {
	if cfg.Addr == "" {
		return nil, errors.New("sensors: link address is required")
	}
	if submit == nil {
		return nil, errors.New("sensors: submitter is required")
	}
	def := DefaultLinkConfig(cfg.Addr)
	if len(cfg.Types) == 0 {
		cfg.Types = def.Types
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg:    cfg,
		submit: submit,
		logger: logger.With("component", "sensors.link", "addr", cfg.Addr),
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}, nil
}

// URL returns the subscription endpoint.
func (l *Link) URL() string {
	types, _ := json.Marshal(l.cfg.Types)
	u := url.URL{
		Scheme:   "ws",
		Host:     l.cfg.Addr,
		Path:     "/sensors/connect",
		RawQuery: "types=" + url.QueryEscape(string(types)),
	}
	return u.String()
}

// Run connects and reconnects with exponential backoff until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	backoff := l.cfg.MinBackoff
	for {
		start := time.Now()
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > l.cfg.MaxBackoff {
			backoff = l.cfg.MinBackoff
		}
		l.logger.Warn("sensor link dropped, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.cfg.MaxBackoff)
	}
}

// session runs one connection until it fails or ctx ends.
func (l *Link) session(ctx context.Context) error {
	ws, _, err := l.dialer.DialContext(ctx, l.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial sensor server: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	})
	defer stop()

	l.logger.Info("sensor link connected", "types", l.cfg.Types)

	var received, dropped int
	defer func() {
		l.logger.Info("sensor link closed", "received", received, "dropped", dropped)
	}()

	for {
		ws.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.logger.Debug("skipping undecodable frame", "error", err)
			continue
		}
		s, ok := msg.Sample()
		if !ok {
			continue
		}
		received++
		if !l.submit(s) {
			dropped++
		}
	}
}
