// Package advisor turns the signal history into operator guidance: a
// periodic one-line diagnosis from a language model, and a router placement
// suggestion from the centroid of dead-zone samples.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/inference"
)

// Status lines shown on the HUD.
const (
	StatusInitializing = "Initializing AI..."
	StatusOffline      = "AI Offline (Check Ollama)"
	StatusAnalyzing    = "Analyzing RF Topology..."
	StatusPerfect      = "Coverage is perfect. No changes needed."
	StatusCoreOffline  = "AI Core Offline."
)

const (
	DefaultWindowSize  = 20
	DefaultMinReadings = 10
	DefaultDeadZoneDBm = -75.0
)

// Prompts sent to the model.
const (
	DiagnosisInstruction = "You are a Wi-Fi Diagnostic Tool. Analyze the RSSI dBm history. " +
		"-90 is bad, -30 is good. Sudden drops mean interference. Output ONLY a 5-word status report."

	placementPrompt = `You are an Enterprise RF Engineer.
Current Setup: Router 1 at %s, Router 2 at %s.
A massive dead zone cluster is centered at Coordinates (X:%d, Y:%d).

Provide a 1-sentence recommendation on where to physically move the routers to cover this dead zone.
Keep it highly technical.`
)

// Config tunes the advisor.
type Config struct {
	WindowSize  int
	MinReadings int // diagnose only when the window holds more than this
	WarmUp      time.Duration
	Interval    time.Duration

	DeadZoneDBm   float64 // samples strictly below are dead zones
	MaxAdviceRune int     // placement advice is cut to this many runes

	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the demo cadence: 5s warm-up, then every 10s.
func DefaultConfig() Config {
	return Config{
		WindowSize:     DefaultWindowSize,
		MinReadings:    DefaultMinReadings,
		WarmUp:         5 * time.Second,
		Interval:       10 * time.Second,
		DeadZoneDBm:    DefaultDeadZoneDBm,
		MaxAdviceRune:  80,
		RequestTimeout: 20 * time.Second,
	}
}

// Recommendation is the result of a placement request.
type Recommendation struct {
	Found     bool    `json:"found"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	DeadZones int     `json:"dead_zones"`
	Advice    string  `json:"advice,omitempty"`
	Offline   bool    `json:"offline"`
}

// Advisor owns the rolling window and the status line. Run is the only
// writer of the periodic diagnosis; Recommend writes it on user request.
type Advisor struct {
	cfg      Config
	provider inference.Provider
	window   *RollingWindow
	logger   *slog.Logger

	mu     sync.RWMutex
	status string
}

// New creates an advisor backed by provider.
func New(cfg Config, provider inference.Provider) *Advisor {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAdviceRune <= 0 {
		cfg.MaxAdviceRune = def.MaxAdviceRune
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{
		cfg:      cfg,
		provider: provider,
		window:   NewRollingWindow(cfg.WindowSize),
		logger:   logger.With("component", "advisor"),
		status:   StatusInitializing,
	}
}

// AddReading feeds one RSSI reading into the rolling window.
func (a *Advisor) AddReading(signal float64) {
	a.window.Add(signal)
}

// Readings returns the rolling window oldest first.
func (a *Advisor) Readings() []float64 {
	return a.window.Values()
}

// Status returns the latest status line.
func (a *Advisor) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Advisor) setStatus(s string) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Run waits out the warm-up, then diagnoses on every interval until ctx is done.
func (a *Advisor) Run(ctx context.Context) {
	a.logger.Info("advisor online", "warm_up", a.cfg.WarmUp, "interval", a.cfg.Interval)
	defer a.logger.Info("advisor stopped")

	if !sleep(ctx, a.cfg.WarmUp) {
		return
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.Diagnose(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Diagnose asks the model for a status report when enough readings are
// buffered. Failures set the offline status and are not returned.
func (a *Advisor) Diagnose(ctx context.Context) {
	values := a.window.Values()
	if len(values) <= a.cfg.MinReadings {
		return
	}

	user := fmt.Sprintf("Data: %s\nSummary: %s", formatReadings(values), Summarize(values))
	text, err := a.ask(ctx, DiagnosisInstruction, user)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("diagnosis failed", "error", err)
		a.setStatus(StatusOffline)
		return
	}
	a.setStatus(text)
}

// Recommend computes the dead-zone centroid and asks the model how to move
// the routers. The centroid is returned even when the model is unreachable.
func (a *Advisor) Recommend(ctx context.Context, points []heatmap.SignalPoint, markers heatmap.MarkerSet) (Recommendation, error) {
	a.setStatus(StatusAnalyzing)

	x, y, ok := DeadZoneCentroid(points, a.cfg.DeadZoneDBm)
	if !ok {
		a.logger.Info("no dead zones detected")
		a.setStatus(StatusPerfect)
		return Recommendation{}, nil
	}

	rec := Recommendation{Found: true, X: x, Y: y, DeadZones: countBelow(points, a.cfg.DeadZoneDBm)}
	a.logger.Info("dead zone centroid", "x", x, "y", y, "samples", rec.DeadZones)

	prompt := fmt.Sprintf(placementPrompt,
		routerLabel(markers.Routers[0]), routerLabel(markers.Routers[1]), int(x), int(y))

	text, err := a.ask(ctx, "", prompt)
	if err != nil {
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
		a.logger.Warn("placement advice failed", "error", err)
		rec.Offline = true
		a.setStatus(StatusCoreOffline)
		return rec, nil
	}

	rec.Advice = text
	a.setStatus(truncate(text, a.cfg.MaxAdviceRune))
	return rec, nil
}

func (a *Advisor) ask(ctx context.Context, system, user string) (string, error) {
	if a.provider == nil {
		return "", inference.ErrProviderUnavailable
	}
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	return inference.Ask(ctx, a.provider, system, user)
}

func countBelow(points []heatmap.SignalPoint, threshold float64) int {
	n := 0
	for _, p := range points {
		if p.SignalDBm < threshold {
			n++
		}
	}
	return n
}

func routerLabel(r heatmap.RouterMarker) string {
	if !r.Active {
		return "Not Set"
	}
	return fmt.Sprintf("(%d, %d)", int(r.X), int(r.Y))
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
