// Package display shows the live heatmap in a desktop window.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

// ErrNoDisplay is returned by Run when the binary was built without a
// window backend.
var ErrNoDisplay = errors.New("display: built without window support (needs cgo)")

// HUD is the text overlay state.
type HUD struct {
	SignalDBm float64
	X, Y      float64
	Tracker   string
	Diagnosis string
	Mode      heatmap.Mode
	Points    int
	Capacity  int
}

// Controller is the running mapper as seen by the window.
type Controller interface {
	Frame() *image.RGBA
	HUD() HUD
	ToggleMode() heatmap.Mode
	PlaceRouter(n int) (heatmap.RouterMarker, error)
	// RecommendAsync starts a placement request without blocking the UI.
	RecommendAsync(ctx context.Context)
}

// Action is a user command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionToggleMode
	ActionRouter1
	ActionRouter2
	ActionRecommend
)

func (a Action) String() string {
	switch a {
	case ActionToggleMode:
		return "toggle-mode"
	case ActionRouter1:
		return "router-1"
	case ActionRouter2:
		return "router-2"
	case ActionRecommend:
		return "recommend"
	default:
		return "none"
	}
}

// Config configures the window.
type Config struct {
	Title   string
	Scale   float64       // window size relative to the grid
	Refresh time.Duration // minimum time between heatmap re-renders
	Logger  *slog.Logger
}

// DefaultConfig returns a 1:1 window refreshed at 10 Hz.
func DefaultConfig() Config {
	return Config{
		Title:   "Signal Splat",
		Scale:   1,
		Refresh: 100 * time.Millisecond,
	}
}

// trackerLine is the index of the tracker status in the top lines.
const trackerLine = 2

// Lines formats the HUD: status lines for the top-left corner and the
// diagnosis for the bottom.
func Lines(h HUD) (top []string, bottom string) {
	top = []string{
		fmt.Sprintf("Signal: %.0f dBm", h.SignalDBm),
		fmt.Sprintf("Pos: %d, %d", int(h.X), int(h.Y)),
		"Tracker: " + h.Tracker,
		fmt.Sprintf("Map: %s  %d/%d points", h.Mode, h.Points, h.Capacity),
		"[O] view  [1] [2] mark router  [Enter] recommend",
	}
	return top, "AI: " + h.Diagnosis
}

// Tracking reports whether the tracker status shows live tracking.
func (h HUD) Tracking() bool {
	return strings.Contains(h.Tracker, "Tracking")
}

// dispatch performs a. It never blocks on the model.
func dispatch(ctx context.Context, ctrl Controller, a Action, logger *slog.Logger) {
	switch a {
	case ActionToggleMode:
		mode := ctrl.ToggleMode()
		logger.Info("map view changed", "mode", mode.String())
	case ActionRouter1, ActionRouter2:
		n := 1
		if a == ActionRouter2 {
			n = 2
		}
		m, err := ctrl.PlaceRouter(n)
		if err != nil {
			logger.Warn("router marker rejected", "router", n, "error", err)
			return
		}
		logger.Info("router marked", "router", n, "x", int(m.X), "y", int(m.Y))
	case ActionRecommend:
		logger.Info("placement optimization requested")
		ctrl.RecommendAsync(ctx)
	}
}
