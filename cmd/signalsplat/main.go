// signalsplat paints a live Wi-Fi heatmap over the path you walk and asks a
// local language model where to move the routers.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/signal-splat/internal/config"
	"github.com/teslashibe/signal-splat/internal/log"
	"github.com/teslashibe/signal-splat/pkg/app"
	"github.com/teslashibe/signal-splat/pkg/display"
	"github.com/teslashibe/signal-splat/pkg/motion"
)

func main() {
	cfg, headless, level := parseFlags()

	log.Init(level)
	logger := log.L()
	cfg.Logger = logger

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(2)
	}
	if err := a.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	printBanner(logger, cfg)

	if headless {
		if err := a.Run(ctx); err != nil {
			logger.Error("runtime error", "error", err)
			os.Exit(1)
		}
		return
	}

	// The window must own the main thread; workers run beside it and the
	// window closing stops them.
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	dc := display.DefaultConfig()
	dc.Logger = logger
	err = display.Run(ctx, a, dc)
	if errors.Is(err, display.ErrNoDisplay) {
		logger.Warn("no window support in this build, running headless")
		err = nil
	} else {
		cancel()
	}
	if runErr := <-errc; runErr != nil {
		logger.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("display error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment variables set the flag defaults, so flags win.
func parseFlags() (app.Config, bool, string) {
	cfg := app.DefaultConfig()
	cfg.LoadEnvConfig()

	estimator := flag.String("estimator", string(cfg.Estimator), "position source: steps, flow, marker or ar")
	sim := flag.Bool("sim", cfg.Simulate, "simulate the Wi-Fi radio with a virtual router")
	iface := flag.String("iface", cfg.Interface, "wireless interface passed to nmcli")
	ssid := flag.String("ssid", cfg.SSID, "lock to this network (default: strongest visible)")
	port := flag.Int("port", cfg.Port, "dashboard and sensor push port")
	headless := flag.Bool("headless", false, "run without the heatmap window")
	noWeb := flag.Bool("no-web", false, "disable the dashboard and /data push endpoint")
	static := flag.String("static", "", "serve dashboard assets from this directory")
	db := flag.String("db", cfg.DBPath, "record the walk to this sqlite file")
	replay := flag.String("replay", "", "load a recorded session into the map first (needs -db)")
	phone := flag.String("phone", cfg.PhoneAddr, "SensorServer address (host:port) to pull motion sensors from")
	camera := flag.Int("camera", 0, "capture device for the flow and marker estimators")
	markerSize := flag.Float64("marker-size", cfg.Motion.MarkerSizeM, "marker edge length in metres")
	model := flag.String("model", cfg.Model, "chat model name")
	level := flag.String("log-level", config.String(config.EnvLogLevel, "info"), "debug, info, warn or error")
	flag.Parse()

	cfg.Estimator = motion.Kind(*estimator)
	if kind, err := motion.ParseKind(*estimator); err == nil {
		cfg.Estimator = kind
	}
	cfg.Simulate = *sim
	cfg.Interface = *iface
	cfg.SSID = *ssid
	cfg.Port = *port
	cfg.Web = !*noWeb
	cfg.StaticDir = *static
	cfg.DBPath = *db
	cfg.Replay = *replay
	cfg.PhoneAddr = *phone
	cfg.Camera = *camera
	cfg.Motion.MarkerSizeM = *markerSize
	cfg.Model = *model
	return cfg, *headless, *level
}

func printBanner(logger *slog.Logger, cfg app.Config) {
	logger.Info("signal splat ready", "estimator", cfg.Estimator, "dashboard", cfg.Web, "port", cfg.Port)
	switch cfg.Estimator {
	case motion.KindSteps, motion.KindAR:
		if cfg.PhoneAddr == "" {
			logger.Info("point Sensor Logger's HTTP push at this machine", "url", "http://<laptop-ip>"+cfg.Addr()+"/data")
		}
		logger.Info("hold the phone flat, point it straight ahead and start walking")
	case motion.KindMarker:
		logger.Info("show marker 1 to the camera (go run ./cmd/marker)")
	case motion.KindFlow:
		logger.Info("point the camera at a textured surface and walk")
	}
}
