package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/signal-splat/pkg/advisor"
	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/inference"
	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/sensors"
	"github.com/teslashibe/signal-splat/pkg/survey"
	"github.com/teslashibe/signal-splat/pkg/vision"
	"github.com/teslashibe/signal-splat/pkg/web"
	"github.com/teslashibe/signal-splat/pkg/wifi"
)

const providerCheckTimeout = 3 * time.Second

// App is the mapper orchestrator. It owns every component and their
// lifecycle; the sampler is the only writer of the accumulator.
type App struct {
	config Config
	logger *slog.Logger

	// Position
	tracker   *motion.Tracker
	estimator motion.Estimator
	link      *sensors.Link
	camera    vision.FrameSource
	flow      *vision.FlowTracker
	marker    *vision.MarkerTracker

	// Signal
	monitor *wifi.Monitor

	// Map
	acc      *heatmap.Accumulator
	markers  *heatmap.Markers
	renderer *heatmap.Renderer

	// Advice
	provider inference.Provider
	advisor  *advisor.Advisor

	// Sessions
	store    *survey.Store
	recorder *survey.Recorder
	session  survey.Session

	webServer *web.Server

	recommending atomic.Bool
	background   sync.WaitGroup
	closeOnce    sync.Once
}

// New creates a mapper with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		logger: logger.With("component", "app"),
	}, nil
}

// Init builds all components. Call it after New and before Run.
func (a *App) Init() error {
	if err := a.initMotion(); err != nil {
		return fmt.Errorf("motion init: %w", err)
	}
	a.initWifi()

	if err := a.initMap(); err != nil {
		return fmt.Errorf("map init: %w", err)
	}
	if err := a.initAdvisor(); err != nil {
		return fmt.Errorf("advisor init: %w", err)
	}
	if err := a.initSurvey(); err != nil {
		return fmt.Errorf("survey init: %w", err)
	}
	if err := a.initInputs(); err != nil {
		return fmt.Errorf("input init: %w", err)
	}
	if a.config.Web {
		a.initWeb()
	}

	a.logger.Info("mapper ready",
		"estimator", a.estimator.Name(),
		"simulated_wifi", a.config.Simulate,
		"web", a.config.Web,
		"session", a.session.ID)
	return nil
}

func (a *App) initMotion() error {
	est, err := motion.NewEstimator(a.config.Estimator, a.config.Motion)
	if err != nil {
		return err
	}
	a.estimator = est
	a.tracker = motion.NewTracker(a.config.Motion, est, a.config.Logger)
	return nil
}

func (a *App) initWifi() {
	var scanner wifi.Scanner
	ssid := a.config.SSID
	if a.config.Simulate {
		if ssid == "" {
			ssid = DefaultSimSSID
		}
		scanner = wifi.NewSimulatedScanner(ssid, a.config.SimRouterX, a.config.SimRouterY, a.position, a.config.SimSeed)
	} else {
		scanner = wifi.NewNMCLIScanner(a.config.Interface)
	}

	mc := a.config.Monitor
	mc.TargetSSID = ssid
	mc.Logger = a.config.Logger
	a.monitor = wifi.NewMonitor(scanner, mc)
}

func (a *App) initMap() error {
	a.acc = heatmap.NewAccumulator(a.config.Capacity)
	a.markers = heatmap.NewMarkers()
	r, err := heatmap.NewRenderer(a.acc, a.markers, a.config.Render)
	if err != nil {
		return err
	}
	a.renderer = r
	return nil
}

func (a *App) initAdvisor() error {
	provider := a.config.Provider
	if provider == nil {
		p, err := a.buildProvider()
		if err != nil {
			return err
		}
		provider = p
	}
	a.provider = provider
	a.checkProvider()

	ac := a.config.Advisor
	ac.Logger = a.config.Logger
	a.advisor = advisor.New(ac, provider)
	return nil
}

// buildProvider connects to the primary model endpoint and, when set, a
// fallback endpoint behind it.
func (a *App) buildProvider() (inference.Provider, error) {
	primary, err := inference.NewClient(
		inference.WithBaseURL(a.config.ModelURL),
		inference.WithModel(a.config.Model),
		inference.WithAPIKey(a.config.APIKey),
		inference.WithLogger(a.config.Logger),
	)
	if err != nil {
		return nil, err
	}
	if a.config.FallbackURL == "" {
		return primary, nil
	}
	fallback, err := inference.NewClient(
		inference.WithBaseURL(a.config.FallbackURL),
		inference.WithModel(a.config.Model),
		inference.WithAPIKey(a.config.APIKey),
		inference.WithLogger(a.config.Logger),
	)
	if err != nil {
		return nil, err
	}
	return inference.NewChain(a.config.Logger, primary, fallback)
}

// checkProvider logs once whether the model service answers. A failure is
// not fatal; the advisor reports itself offline until the model is reachable.
func (a *App) checkProvider() {
	ctx, cancel := context.WithTimeout(context.Background(), providerCheckTimeout)
	defer cancel()
	if err := a.provider.Health(ctx); err != nil {
		a.logger.Warn("language model unavailable", "url", a.config.ModelURL, "model", a.config.Model, "error", err)
		return
	}
	a.logger.Info("language model ready", "model", a.config.Model)
}

func (a *App) initSurvey() error {
	if a.config.DBPath == "" {
		return nil
	}
	store, err := survey.Open(a.config.DBPath, a.config.Logger)
	if err != nil {
		return err
	}
	a.store = store

	ctx := context.Background()
	if a.config.Replay != "" {
		n, err := survey.Replay(ctx, store, a.config.Replay, a.acc)
		if err != nil {
			return fmt.Errorf("replay %s: %w", a.config.Replay, err)
		}
		a.logger.Info("session replayed", "session", a.config.Replay, "points", n)
	}

	sess, err := store.StartSession(ctx, a.renderer.Mode().String(), a.estimator.Name(), a.config.SSID)
	if err != nil {
		return err
	}
	a.session = sess
	a.recorder = survey.NewRecorder(store, sess.ID, survey.RecorderConfig{Logger: a.config.Logger})
	a.recorder.Attach(a.acc)
	return nil
}

// initInputs opens the producers the estimator needs. The web /data route
// and the phone websocket are always available once the dashboard runs.
func (a *App) initInputs() error {
	if a.config.PhoneAddr != "" {
		lc := sensors.DefaultLinkConfig(a.config.PhoneAddr)
		lc.Logger = a.config.Logger
		link, err := sensors.NewLink(lc, a.tracker.Submit)
		if err != nil {
			return err
		}
		a.link = link
	}

	switch a.config.Estimator {
	case motion.KindFlow:
		fc := vision.DefaultFlowConfig()
		fc.Logger = a.config.Logger
		a.camera = a.openCamera(fc.Width, fc.Height)
		a.flow = vision.NewFlowTracker(fc, a.tracker.Submit)
	case motion.KindMarker:
		mc := vision.DefaultMarkerConfig()
		mc.SizeM = a.config.Motion.MarkerSizeM
		mc.Logger = a.config.Logger
		a.camera = a.openCamera(mc.Width, mc.Height)
		a.marker = vision.NewMarkerTracker(mc, a.tracker.Submit)
	}
	return nil
}

// openCamera never fails: a missing device leaves the tracker searching
// while the camera keeps retrying in the background.
func (a *App) openCamera(width, height int) *vision.Camera {
	cam, err := vision.NewCamera(a.config.Camera, width, height, a.config.Logger)
	if err != nil {
		a.logger.Warn("camera unavailable, retrying in the background",
			"device", a.config.Camera, "error", err)
	}
	return cam
}

func (a *App) initWeb() {
	a.webServer = web.NewServer(web.Config{
		Addr:        a.config.Addr(),
		StaticDir:   a.config.StaticDir,
		DeadZoneDBm: a.config.Advisor.DeadZoneDBm,
		Store:       a.store,
		Logger:      a.config.Logger,
	}, a)
}

// Run starts every worker and samples until ctx is cancelled. It returns
// the first worker error, or nil on a clean stop.
func (a *App) Run(ctx context.Context) error {
	if a.tracker == nil {
		return errors.New("app: Init must be called before Run")
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { a.tracker.Run(ctx); return nil })
	g.Go(func() error { a.monitor.Run(ctx); return nil })
	g.Go(func() error { a.advisor.Run(ctx); return nil })
	if a.recorder != nil {
		g.Go(func() error { a.recorder.Run(ctx); return nil })
	}
	if a.link != nil {
		g.Go(func() error {
			if err := a.link.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.flow != nil {
		g.Go(func() error { a.flow.Run(ctx, a.camera); return nil })
	}
	if a.marker != nil {
		g.Go(func() error { a.marker.Run(ctx, a.camera); return nil })
	}
	if a.webServer != nil {
		g.Go(func() error { return a.webServer.Run(ctx) })
	}
	g.Go(func() error { a.sampleLoop(ctx); return nil })

	err := g.Wait()
	a.background.Wait()
	return err
}

// sampleLoop records a map point every SampleInterval while tracking.
func (a *App) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.SampleInterval)
	defer ticker.Stop()

	full := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.sample() || full || !a.acc.Full() {
				continue
			}
			full = true
			a.logger.Warn("map is full, new points are dropped", "capacity", a.acc.Capacity())
		}
	}
}

// sample appends the current position and signal when the tracker is
// locked on, and feeds the same reading to the advisor. It reports whether
// a point was stored.
func (a *App) sample() bool {
	pos := a.tracker.Position()
	if pos.Status != motion.StatusTracking {
		return false
	}
	signal := a.monitor.Current()
	a.advisor.AddReading(signal)
	return a.acc.Append(pos.X, pos.Y, signal)
}

// Shutdown releases devices and the session store. It is safe to call
// more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		if a.flow != nil {
			a.flow.Close()
		}
		if a.marker != nil {
			a.marker.Close()
		}
		if a.camera != nil {
			if err := a.camera.Close(); err != nil {
				a.logger.Warn("camera close", "error", err)
			}
		}
		if a.provider != nil {
			a.provider.Close()
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Warn("session store close", "error", err)
			}
		}
		if a.acc != nil {
			a.logger.Info("mapper stopped", "points", a.acc.Count())
		}
	})
}

func (a *App) position() (x, y float64) {
	p := a.tracker.Position()
	return p.X, p.Y
}
