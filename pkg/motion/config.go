package motion

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the estimation strategy.
type Kind string

const (
	KindSteps  Kind = "steps"  // pedestrian dead-reckoning from accelerometer + compass
	KindFlow   Kind = "flow"   // optical-flow visual odometry
	KindMarker Kind = "marker" // fiducial marker pose
	KindAR     Kind = "ar"     // phone AR-session pose bridge
)

// ParseKind parses a strategy name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSteps, KindFlow, KindMarker, KindAR:
		return k, nil
	}
	return "", fmt.Errorf("motion: unknown estimator %q (want steps, flow, marker or ar)", s)
}

// Config holds all tunable parameters for position estimation.
type Config struct {
	// Origin is where the walk starts, in display coordinates.
	OriginX, OriginY float64

	// Step counter
	StrideLength     float64       // display units per step
	StepDebounce     time.Duration // minimum time between accepted steps
	CompensatedMin   float64       // gravity-compensated band lower bound (exclusive)
	CompensatedMax   float64       // gravity-compensated band upper bound (exclusive)
	RawStepThreshold float64       // raw (with gravity) magnitude threshold (exclusive)

	// Optical flow
	OutlierLimit    float64 // per-point displacement rejected at or above this (pixels)
	FlowDeadZone    float64 // averaged displacement below this is treated as zero
	HorizontalScale float64 // damping applied to dx (stronger, suppresses panning)
	VerticalScale   float64 // damping applied to dy
	ReseedFloor     int     // re-detect features when fewer points remain

	// Fiducial marker
	MarkerSizeM   float64 // physical marker edge length in metres
	PixelsPerCM   float64 // display units per centimetre of camera translation
	MirrorLateral bool    // mirror the camera's lateral axis on screen

	// AR bridge
	PixelsPerMetre float64

	// Tracker
	QueueSize int // pending samples before producers start dropping
}

// DefaultConfig returns the defaults used by the demo.
func DefaultConfig() Config {
	return Config{
		OriginX: 400,
		OriginY: 300,

		StrideLength:     30.0,
		StepDebounce:     400 * time.Millisecond,
		CompensatedMin:   2.0,
		CompensatedMax:   6.0,
		RawStepThreshold: 11.5,

		OutlierLimit:    20,
		FlowDeadZone:    0.2,
		HorizontalScale: 0.5 * 0.8,
		VerticalScale:   0.5,
		ReseedFloor:     100,

		MarkerSizeM:   0.05,
		PixelsPerCM:   2.0,
		MirrorLateral: true,

		PixelsPerMetre: 80.0,

		QueueSize: 256,
	}
}

// Validate checks the parameters that would make estimation meaningless.
func (c Config) Validate() error {
	if c.StrideLength <= 0 {
		return fmt.Errorf("motion: stride length must be positive, got %v", c.StrideLength)
	}
	if c.CompensatedMin >= c.CompensatedMax {
		return fmt.Errorf("motion: compensated step band is empty (%v, %v)", c.CompensatedMin, c.CompensatedMax)
	}
	if c.OutlierLimit <= 0 {
		return fmt.Errorf("motion: outlier limit must be positive, got %v", c.OutlierLimit)
	}
	if c.MarkerSizeM <= 0 {
		return fmt.Errorf("motion: marker size must be positive, got %v", c.MarkerSizeM)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("motion: queue size must be positive, got %d", c.QueueSize)
	}
	return nil
}
