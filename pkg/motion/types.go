// Package motion turns raw motion-sensor readings into a running 2D position.
//
// Producers (phone push handlers, camera trackers) hand Samples to a Tracker.
// The Tracker feeds them through one Estimator, chosen once at startup, and
// is the only writer of the resulting Position.
package motion

import "time"

// Status describes how much the current position can be trusted.
type Status int

const (
	// StatusSearching is the startup state before any motion has been seen.
	StatusSearching Status = iota
	// StatusTracking means updates are arriving.
	StatusTracking
	// StatusLost means the absolute reference (marker) is out of view.
	StatusLost
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusTracking:
		return "Tracking"
	case StatusLost:
		return "Lost"
	default:
		return "Searching"
	}
}

// Position is the single (x, y, status) record in display coordinates.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Status Status  `json:"status"`
}

// Sample is one transient motion reading. The set of variants is closed.
type Sample interface {
	isSample()
}

// AccelSample is a raw tri-axis accelerometer reading.
// Gravity may or may not be compensated; the step detector accepts both.
type AccelSample struct {
	X, Y, Z float64
	At      time.Time
}

// HeadingSample is a compass / orientation yaw reading in radians.
type HeadingSample struct {
	Yaw float64
}

// StepEvent is an already-detected step with its own heading.
type StepEvent struct {
	Heading    float64 // radians, screen convention
	StepLength float64 // display units; 0 uses the configured stride
	At         time.Time
}

// FlowDelta is the filtered mean optical-flow displacement of one frame,
// in source pixels.
type FlowDelta struct {
	DX, DY float64
}

// PoseEstimate is an absolute camera-anchored position in metres.
// Found is false when no marker was visible in the frame.
type PoseEstimate struct {
	XM, ZM float64
	Found  bool
}

// ARPose is a phone AR-session position in metres (x lateral, z forward).
type ARPose struct {
	X, Z float64
}

func (AccelSample) isSample()   {}
func (HeadingSample) isSample() {}
func (StepEvent) isSample()     {}
func (FlowDelta) isSample()     {}
func (PoseEstimate) isSample()  {}
func (ARPose) isSample()        {}

// Update is what an Estimator produces for one Sample.
//
// Relative updates carry DX/DY. Absolute updates set Absolute and carry X/Y.
// Changed is false when the sample had no effect on position or status.
type Update struct {
	DX, DY   float64
	Absolute bool
	X, Y     float64
	Status   Status
	Changed  bool
}

// Apply returns p moved by u.
func (u Update) Apply(p Position) Position {
	if !u.Changed {
		return p
	}
	if u.Absolute {
		p.X, p.Y = u.X, u.Y
	} else {
		p.X += u.DX
		p.Y += u.DY
	}
	p.Status = u.Status
	return p
}
