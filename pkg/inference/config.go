package inference

import (
	"log/slog"
	"time"
)

// Local Ollama endpoint used when nothing else is configured.
const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "llama3"
)

const (
	defaultMaxTokens   = 256
	defaultTemperature = 0.3
	defaultTimeout     = 30 * time.Second
	defaultRetryDelay  = 200 * time.Millisecond
)

// Config describes one OpenAI-compatible endpoint and the request
// defaults sent to it.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	MaxTokens   int
	Temperature float64

	// Timeout bounds a single HTTP exchange. A failed exchange is retried
	// MaxRetries times, waiting RetryDelay longer before each attempt.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option  { return func(c *Config) { c.APIKey = key } }
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }
func WithMaxTokens(n int) Option    { return func(c *Config) { c.MaxTokens = n } }

func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how many extra attempts a failed request gets. Zero
// disables retries.
func WithRetry(n int, delay time.Duration) Option {
	return func(c *Config) { c.MaxRetries, c.RetryDelay = n, delay }
}

func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// DefaultConfig points at a local Ollama with short, low-temperature replies.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		Timeout:     defaultTimeout,
		MaxRetries:  1,
		RetryDelay:  defaultRetryDelay,
		Logger:      slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, o := range opts {
		o(c)
	}
}

func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return ErrNoBaseURL
	case c.Model == "":
		return ErrNoModel
	}
	return nil
}
