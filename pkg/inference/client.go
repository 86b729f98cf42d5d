package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/teslashibe/signal-splat/internal/httpc"
)

const providerClient = "client"

// Client talks to an OpenAI-compatible endpoint such as Ollama's /v1.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. With no options it targets a local Ollama.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "inference.client", "model", cfg.Model),
	}, nil
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Chat sends one completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	var out completionResponse
	if err := c.roundTrip(ctx, http.MethodPost, "/chat/completions", c.payload(req), &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, WrapError(providerClient, ErrEmptyResponse)
	}

	latency := time.Since(start)
	c.logger.Debug("chat completed", "latency_ms", latency.Milliseconds(), "tokens", out.Usage.TotalTokens)

	choice := out.Choices[0]
	return &ChatResponse{
		Message:      NewAssistantMessage(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
		Model:        out.Model,
		Latency:      latency,
	}, nil
}

// Models lists the model ids the server can serve.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out modelList
	if err := c.roundTrip(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Health checks that the server answers and lists the configured model.
// Ollama reports pulled models as "name:tag", so "llama3" matches
// "llama3:latest".
func (c *Client) Health(ctx context.Context) error {
	ids, err := c.Models(ctx)
	if err != nil {
		return err
	}
	want := c.config.Model
	if slices.ContainsFunc(ids, func(id string) bool {
		return id == want || strings.HasPrefix(id, want+":")
	}) {
		return nil
	}
	return WrapError(providerClient, fmt.Errorf("%w: %s", ErrModelNotPulled, want))
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) payload(req *ChatRequest) completionRequest {
	p := completionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	if req == nil {
		return p
	}
	p.Messages = req.Messages
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		p.Temperature = req.Temperature
	}
	return p
}

// roundTrip sends in as JSON and decodes a 200 response into out. Transport
// failures and retryable statuses are retried with a linear backoff; any
// other status is returned as an *APIError.
func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return WrapError(providerClient, fmt.Errorf("marshal request: %w", err))
		}
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return WrapError(providerClient, ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := c.send(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return WrapError(providerClient, ctx.Err())
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return err
		}
		lastErr = err
		c.logger.Warn("request failed", "path", path, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return WrapError(providerClient, fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(providerClient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseError reads an OpenAI-style {"error":{"message","code"}} body and
// falls back to the raw text.
func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
		Provider:   providerClient,
	}
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		apiErr.Code = body.Error.Code
	}
	return apiErr
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

var _ Provider = (*Client)(nil)
