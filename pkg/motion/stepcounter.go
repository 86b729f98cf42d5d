package motion

import (
	"math"
	"time"
)

// StepCounter is a pedestrian dead-reckoning estimator.
//
// Headings arrive separately from accelerations; each accepted step moves
// the position one stride along the latest heading.
type StepCounter struct {
	stride   float64
	debounce time.Duration
	compMin  float64
	compMax  float64
	rawMin   float64

	heading  float64
	lastStep time.Time
	steps    int
}

// NewStepCounter creates a step counter.
func NewStepCounter(cfg Config) *StepCounter {
	return &StepCounter{
		stride:   cfg.StrideLength,
		debounce: cfg.StepDebounce,
		compMin:  cfg.CompensatedMin,
		compMax:  cfg.CompensatedMax,
		rawMin:   cfg.RawStepThreshold,
	}
}

// Name implements Estimator.
func (c *StepCounter) Name() string { return "Step Counter" }

// Steps returns the number of accepted steps.
func (c *StepCounter) Steps() int { return c.steps }

// IsStep reports whether an acceleration magnitude looks like a footfall.
// Both bounds of each band are exclusive.
func (c *StepCounter) IsStep(magnitude float64) bool {
	if magnitude > c.compMin && magnitude < c.compMax {
		return true
	}
	return magnitude > c.rawMin
}

// Estimate implements Estimator.
func (c *StepCounter) Estimate(s Sample) Update {
	switch v := s.(type) {
	case HeadingSample:
		// Compass yaw grows clockwise; screen y grows downward.
		c.heading = -v.Yaw
		return Update{}

	case AccelSample:
		m := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
		if !c.IsStep(m) {
			return Update{}
		}
		return c.step(c.heading, c.stride, v.At)

	case StepEvent:
		length := v.StepLength
		if length <= 0 {
			length = c.stride
		}
		c.heading = v.Heading
		return c.step(v.Heading, length, v.At)
	}
	return Update{}
}

func (c *StepCounter) step(heading, length float64, at time.Time) Update {
	if at.IsZero() {
		at = time.Now()
	}
	// A negative gap means the sample clock jumped back (epoch stamps
	// followed by boot-clock stamps); start debouncing from the new clock.
	if elapsed := at.Sub(c.lastStep); !c.lastStep.IsZero() && elapsed >= 0 && elapsed < c.debounce {
		return Update{}
	}
	c.lastStep = at
	c.steps++
	return Update{
		DX:      length * math.Cos(heading),
		DY:      length * math.Sin(heading),
		Status:  StatusTracking,
		Changed: true,
	}
}
