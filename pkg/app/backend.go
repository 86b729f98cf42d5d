package app

import (
	"context"
	"errors"
	"image"

	"github.com/teslashibe/signal-splat/pkg/advisor"
	"github.com/teslashibe/signal-splat/pkg/display"
	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/web"
)

var (
	_ web.Backend        = (*App)(nil)
	_ display.Controller = (*App)(nil)
)

// ErrRecommendBusy is returned while another placement request is running.
var ErrRecommendBusy = errors.New("app: placement request already running")

// Status returns the dashboard snapshot.
func (a *App) Status() web.Status {
	pos := a.tracker.Position()
	reading := a.monitor.Reading()
	return web.Status{
		X:         pos.X,
		Y:         pos.Y,
		Tracking:  a.tracker.Status(),
		SignalDBm: reading.SignalDBm,
		SSID:      reading.SSID,
		Diagnosis: a.advisor.Status(),
		Points:    a.acc.Count(),
		Capacity:  a.acc.Capacity(),
		Mode:      a.renderer.Mode().String(),
		Session:   a.session.ID,
	}
}

// HUD returns the window overlay state.
func (a *App) HUD() display.HUD {
	pos := a.tracker.Position()
	return display.HUD{
		SignalDBm: a.monitor.Current(),
		X:         pos.X,
		Y:         pos.Y,
		Tracker:   a.tracker.Status(),
		Diagnosis: a.advisor.Status(),
		Mode:      a.renderer.Mode(),
		Points:    a.acc.Count(),
		Capacity:  a.acc.Capacity(),
	}
}

// Submit hands a sample from any input to the position tracker.
func (a *App) Submit(s motion.Sample) bool {
	return a.tracker.Submit(s)
}

// ToggleMode flips the map view.
func (a *App) ToggleMode() heatmap.Mode {
	return a.renderer.Toggle()
}

// PlaceRouter marks router n at the current position.
func (a *App) PlaceRouter(n int) (heatmap.RouterMarker, error) {
	pos := a.tracker.Position()
	if err := a.markers.Place(n, pos.X, pos.Y); err != nil {
		return heatmap.RouterMarker{}, err
	}
	return a.markers.Snapshot().Routers[n-1], nil
}

// Recommend runs the placement advisor over every recorded point and drops
// the suggestion marker on the dead-zone centroid. Only one request runs
// at a time.
func (a *App) Recommend(ctx context.Context) (advisor.Recommendation, error) {
	if !a.recommending.CompareAndSwap(false, true) {
		return advisor.Recommendation{}, ErrRecommendBusy
	}
	defer a.recommending.Store(false)

	rec, err := a.advisor.Recommend(ctx, a.acc.Points(), a.markers.Snapshot())
	if rec.Found {
		a.markers.Suggest(rec.X, rec.Y)
	}
	return rec, err
}

// RecommendAsync starts Recommend in the background. The request is
// dropped when one is already running.
func (a *App) RecommendAsync(ctx context.Context) {
	if a.recommending.Load() {
		a.logger.Info("placement request already running")
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		rec, err := a.Recommend(ctx)
		switch {
		case errors.Is(err, ErrRecommendBusy):
		case err != nil:
			a.logger.Warn("placement request failed", "error", err)
		case rec.Found:
			a.logger.Info("placement suggestion",
				"x", int(rec.X), "y", int(rec.Y), "dead_zones", rec.DeadZones, "advice", rec.Advice)
		}
	}()
}

// Frame renders the map at the current position.
func (a *App) Frame() *image.RGBA {
	pos := a.tracker.Position()
	return a.renderer.Render(pos.X, pos.Y)
}

// Readings returns the advisor's rolling signal window.
func (a *App) Readings() []float64 {
	return a.advisor.Readings()
}

// Points returns a copy of the recorded path.
func (a *App) Points() []heatmap.SignalPoint {
	return a.acc.Points()
}
