package motion

// Estimator converts one Sample into a position Update.
// Implementations are not safe for concurrent use; the Tracker serializes calls.
type Estimator interface {
	// Estimate returns the update for s. Samples the strategy does not
	// understand return an Update with Changed == false.
	Estimate(s Sample) Update

	// Name is shown next to the tracking status.
	Name() string
}

// NewEstimator builds the estimator for kind.
func NewEstimator(kind Kind, cfg Config) (Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindSteps:
		return NewStepCounter(cfg), nil
	case KindFlow:
		return NewOpticalFlow(cfg), nil
	case KindMarker:
		return NewFiducialPose(cfg), nil
	case KindAR:
		return NewARBridge(cfg), nil
	}
	_, err := ParseKind(string(kind))
	return nil, err
}

// ARBridge maps a phone AR-session pose straight into display coordinates.
type ARBridge struct {
	originX, originY float64
	scale            float64
}

// NewARBridge creates an AR pose bridge.
func NewARBridge(cfg Config) *ARBridge {
	return &ARBridge{
		originX: cfg.OriginX,
		originY: cfg.OriginY,
		scale:   cfg.PixelsPerMetre,
	}
}

// Name implements Estimator.
func (a *ARBridge) Name() string { return "AR Bridge" }

// Estimate implements Estimator.
func (a *ARBridge) Estimate(s Sample) Update {
	p, ok := s.(ARPose)
	if !ok {
		return Update{}
	}
	return Update{
		Absolute: true,
		X:        a.originX + p.X*a.scale,
		Y:        a.originY + p.Z*a.scale,
		Status:   StatusTracking,
		Changed:  true,
	}
}
