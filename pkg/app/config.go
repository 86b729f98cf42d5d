// Package app wires the signal mapper together: the position tracker and
// its producers, the Wi-Fi monitor, the heatmap, the advisor, the optional
// session store and the dashboard.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/signal-splat/internal/config"
	"github.com/teslashibe/signal-splat/pkg/advisor"
	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/inference"
	"github.com/teslashibe/signal-splat/pkg/motion"
	"github.com/teslashibe/signal-splat/pkg/wifi"
)

// Default configuration values.
const (
	DefaultPort           = 5000
	DefaultSampleInterval = 200 * time.Millisecond
	DefaultSimSSID        = "SplatNet"
)

// Config holds all configuration for the mapper.
// Flag parsing is done in cmd/signalsplat; this struct is data only.
type Config struct {
	// Estimator picks how position is tracked.
	Estimator motion.Kind

	// Wi-Fi source. Simulate replaces nmcli with a virtual router at
	// (SimRouterX, SimRouterY) in display coordinates.
	Interface  string
	SSID       string
	Simulate   bool
	SimRouterX float64
	SimRouterY float64
	SimSeed    uint64

	// Inputs.
	PhoneAddr string // SensorServer host:port; empty disables the link
	Camera    int    // capture device for the flow and marker estimators

	// Dashboard.
	Web       bool
	Port      int
	StaticDir string

	// Session recording. Empty DBPath keeps points in memory only.
	DBPath string
	Replay string // session id loaded into the map before sampling starts

	// Language model. FallbackURL adds a second OpenAI-compatible endpoint
	// tried when the primary fails.
	ModelURL    string
	Model       string
	FallbackURL string
	APIKey      string

	SampleInterval time.Duration
	Capacity       int

	Motion  motion.Config
	Render  heatmap.RenderConfig
	Advisor advisor.Config
	Monitor wifi.MonitorConfig

	// Provider overrides the model client built from ModelURL.
	Provider inference.Provider

	Logger *slog.Logger
}

// DefaultConfig returns the demo setup: step counting fed by the phone, a
// real radio, the dashboard on :5000 and a local Ollama.
func DefaultConfig() Config {
	return Config{
		Estimator:      motion.KindSteps,
		SimRouterX:     200,
		SimRouterY:     150,
		SimSeed:        1,
		Web:            true,
		Port:           DefaultPort,
		ModelURL:       inference.DefaultBaseURL,
		Model:          inference.DefaultModel,
		SampleInterval: DefaultSampleInterval,
		Capacity:       heatmap.DefaultCapacity,
		Motion:         motion.DefaultConfig(),
		Render:         heatmap.DefaultRenderConfig(),
		Advisor:        advisor.DefaultConfig(),
		Monitor:        wifi.DefaultMonitorConfig(),
	}
}

// LoadEnvConfig applies environment overrides. Call it after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.ModelURL = config.String(config.EnvOllamaURL, c.ModelURL)
	c.Model = config.String(config.EnvOllamaModel, c.Model)
	c.FallbackURL = config.String(config.EnvFallbackURL, c.FallbackURL)
	c.APIKey = config.String(config.EnvAPIKey, c.APIKey)
	c.Interface = config.String(config.EnvInterface, c.Interface)
	c.SSID = config.String(config.EnvSSID, c.SSID)
	c.Port = config.Int(config.EnvPort, c.Port)
	c.DBPath = config.String(config.EnvDB, c.DBPath)
	c.PhoneAddr = config.String(config.EnvPhone, c.PhoneAddr)
	c.Simulate = config.Bool(config.EnvSimulate, c.Simulate)
	c.SampleInterval = config.Duration(config.EnvSample, c.SampleInterval)
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	if _, err := motion.ParseKind(string(c.Estimator)); err != nil {
		return &ConfigError{Field: "Estimator", Message: err.Error()}
	}
	if c.Web && (c.Port <= 0 || c.Port > 65535) {
		return &ConfigError{Field: "Port", Message: fmt.Sprintf("port %d is out of range", c.Port)}
	}
	if c.SampleInterval <= 0 {
		return &ConfigError{Field: "SampleInterval", Message: "sample interval must be positive"}
	}
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "map capacity must be positive"}
	}
	if c.Replay != "" && c.DBPath == "" {
		return &ConfigError{Field: "Replay", Message: "replaying a session needs a database (-db or SPLAT_DB)"}
	}
	if c.Provider == nil && c.ModelURL == "" {
		return &ConfigError{Field: "ModelURL", Message: "OLLAMA_URL must not be empty"}
	}
	if err := c.Motion.Validate(); err != nil {
		return &ConfigError{Field: "Motion", Message: err.Error()}
	}
	if err := c.Render.Validate(); err != nil {
		return &ConfigError{Field: "Render", Message: err.Error()}
	}
	return nil
}

// Addr is the dashboard listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
