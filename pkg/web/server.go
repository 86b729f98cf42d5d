// Package web serves the signal-mapping dashboard and the phone sensor push
// endpoints.
package web

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/signal-splat/pkg/advisor"
	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/hub"
	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/survey"
)

// Status is the dashboard snapshot.
type Status struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Tracking  string  `json:"status"`
	SignalDBm float64 `json:"signal_dbm"`
	SSID      string  `json:"ssid"`
	Diagnosis string  `json:"diagnosis"`
	Points    int     `json:"points"`
	Capacity  int     `json:"capacity"`
	Mode      string  `json:"mode"`
	Session   string  `json:"session,omitempty"`
}

// Backend is the running mapper as seen by the server.
type Backend interface {
	Status() Status
	Submit(s motion.Sample) bool
	ToggleMode() heatmap.Mode
	PlaceRouter(n int) (heatmap.RouterMarker, error)
	Recommend(ctx context.Context) (advisor.Recommendation, error)
	Frame() *image.RGBA
	Readings() []float64
	Points() []heatmap.SignalPoint
}

// Config configures the server.
type Config struct {
	Addr           string
	StatusInterval time.Duration // status broadcast period
	FrameInterval  time.Duration // heatmap frame broadcast period
	RecommendLimit time.Duration // upper bound on a /api/recommend call
	StaticDir      string        // optional dashboard assets
	DeadZoneDBm    float64       // cutoff drawn on session plots
	Store          *survey.Store // optional; enables /api/sessions
	Logger         *slog.Logger
}

// DefaultConfig returns the demo settings; phones push to port 5000.
func DefaultConfig() Config {
	return Config{
		Addr:           ":5000",
		StatusInterval: 500 * time.Millisecond,
		FrameInterval:  time.Second,
		RecommendLimit: 30 * time.Second,
		DeadZoneDBm:    advisor.DefaultDeadZoneDBm,
	}
}

// Server is the dashboard server.
type Server struct {
	cfg     Config
	backend Backend
	app     *fiber.App
	logger  *slog.Logger

	statusHub *hub.Hub
	frameHub  *hub.Hub
	phones    *PhoneHub
}

// NewServer wires the routes.
func NewServer(cfg Config, backend Backend) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.RecommendLimit <= 0 {
		cfg.RecommendLimit = def.RecommendLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:       cfg,
		backend:   backend,
		logger:    logger,
		statusHub: hub.New("status", logger),
		frameHub:  hub.New("frames", logger),
		phones:    NewPhoneHub(backend.Submit, logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Signal Splat",
		DisableStartupMessage: true,
		BodyLimit:             1 << 20,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	// Sensor Logger posts here.
	app.Post("/data", s.handleData)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/mode/toggle", s.handleToggleMode)
	api.Post("/markers/:id", s.handlePlaceRouter)
	api.Post("/recommend", s.handleRecommend)
	api.Get("/heatmap.png", s.handleHeatmap)
	api.Get("/chart", s.handleChart)
	api.Get("/phones", s.handlePhones)
	api.Get("/sessions", s.handleSessions)
	api.Get("/sessions/:id/plot.png", s.handleSessionPlot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.subscribe(s.statusHub)))
	app.Get("/ws/frames", websocket.New(s.subscribe(s.frameHub)))
	s.phones.RegisterRoutes(app)

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Phones returns the phone connection hub.
func (s *Server) Phones() *PhoneHub {
	return s.phones
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.frameHub.Run(ctx)
	go s.broadcastLoop(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// broadcastLoop pushes status and frames to subscribers, skipping the work
// when nobody is listening.
func (s *Server) broadcastLoop(ctx context.Context) {
	status := time.NewTicker(s.cfg.StatusInterval)
	defer status.Stop()
	frames := time.NewTicker(s.cfg.FrameInterval)
	defer frames.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-status.C:
			if s.statusHub.ClientCount() > 0 {
				s.statusHub.BroadcastJSON(s.backend.Status())
			}
		case <-frames.C:
			if s.frameHub.ClientCount() == 0 {
				continue
			}
			png, err := heatmap.EncodePNG(s.backend.Frame())
			if err != nil {
				s.logger.Warn("frame encode failed", "error", err)
				continue
			}
			s.frameHub.BroadcastBinary(png)
		}
	}
}

func (s *Server) subscribe(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client, ok := hub.NewClient(h, c)
		if !ok {
			return
		}
		client.Run()
	}
}
