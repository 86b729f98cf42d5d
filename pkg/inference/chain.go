package inference

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Chain falls back across providers, e.g. a local Ollama followed by a LAN
// inference box. Each call starts at the provider that answered last.
type Chain struct {
	providers []Provider
	preferred atomic.Int32
	logger    *slog.Logger
}

// NewChain creates a chain. At least one provider is required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// Chat asks the preferred provider first, then the rest in order.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := int(c.preferred.Load())
	n := len(c.providers)
	errs := make([]error, 0, n)

	for k := range n {
		i := (start + k) % n
		resp, err := c.providers[i].Chat(ctx, req)
		if err == nil {
			if i != start {
				c.preferred.Store(int32(i))
				c.logger.Info("switched provider", "from", start, "to", i)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("provider failed", "provider", i, "error", err)
	}
	return nil, &ChainError{Errors: errs}
}

// Health succeeds when any provider is healthy and prefers the first one
// that is.
func (c *Chain) Health(ctx context.Context) error {
	var last error
	for i, p := range c.providers {
		if err := p.Health(ctx); err != nil {
			last = err
			continue
		}
		c.preferred.Store(int32(i))
		return nil
	}
	return WrapError("chain", last)
}

// Close closes every provider and returns the last error.
func (c *Chain) Close() error {
	var last error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			last = err
		}
	}
	return last
}

// Providers returns the providers in fallback order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Preferred returns the index of the provider tried first.
func (c *Chain) Preferred() int {
	return int(c.preferred.Load())
}

var _ Provider = (*Chain)(nil)
