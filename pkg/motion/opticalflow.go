package motion

import "math"

// Point2 is an image-plane point in pixels.
type Point2 struct {
	X, Y float64
}

// PointPair is one tracked feature in the previous and the current frame.
type PointPair struct {
	Old, New Point2
}

// FilterFlow averages the per-feature displacement (old - new) of a frame.
//
// Features that moved by limit pixels or more on either axis are dropped as
// mistracks. Averages with magnitude below deadZone snap to zero. ok is false
// when no feature survived.
func FilterFlow(pairs []PointPair, limit, deadZone float64) (FlowDelta, bool) {
	var sumX, sumY float64
	n := 0
	for _, p := range pairs {
		dx := p.Old.X - p.New.X
		dy := p.Old.Y - p.New.Y
		if math.Abs(dx) >= limit || math.Abs(dy) >= limit {
			continue
		}
		sumX += dx
		sumY += dy
		n++
	}
	if n == 0 {
		return FlowDelta{}, false
	}

	d := FlowDelta{DX: sumX / float64(n), DY: sumY / float64(n)}
	if math.Abs(d.DX) < deadZone {
		d.DX = 0
	}
	if math.Abs(d.DY) < deadZone {
		d.DY = 0
	}
	return d, true
}

// OpticalFlow is a visual-odometry estimator fed with filtered FlowDeltas.
type OpticalFlow struct {
	hScale, vScale float64
}

// NewOpticalFlow creates an optical-flow estimator.
func NewOpticalFlow(cfg Config) *OpticalFlow {
	return &OpticalFlow{
		hScale: cfg.HorizontalScale,
		vScale: cfg.VerticalScale,
	}
}

// Name implements Estimator.
func (o *OpticalFlow) Name() string { return "Optical Flow" }

// Estimate implements Estimator. The horizontal axis is damped harder than
// the vertical one so that turning the camera does not read as walking.
func (o *OpticalFlow) Estimate(s Sample) Update {
	d, ok := s.(FlowDelta)
	if !ok {
		return Update{}
	}
	return Update{
		DX:      d.DX * o.hScale,
		DY:      d.DY * o.vScale,
		Status:  StatusTracking,
		Changed: true,
	}
}
