package inference

import (
	"context"
	"sync"
)

// Mock is a scripted Provider for tests.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthFunc func(ctx context.Context) error

	mu       sync.Mutex
	counts   map[string]int
	requests []ChatRequest
}

// NewMock answers every chat with "Mock response".
func NewMock() *Mock {
	return Reply("Mock response")
}

// Reply answers every chat with text.
func Reply(text string) *Mock {
	return &Mock{
		ChatFunc: func(context.Context, *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Message: NewAssistantMessage(text), FinishReason: "stop"}, nil
		},
	}
}

// WithError fails every chat and health check with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.count("Chat")
	if req != nil {
		m.requests = append(m.requests, *req)
	}
	m.mu.Unlock()

	if m.ChatFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.count("Health")
	m.mu.Unlock()

	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.count("Close")
	m.mu.Unlock()
	return nil
}

// count must be called with mu held.
func (m *Mock) count(method string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

// CallCount returns how often method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// LastRequest returns the latest chat request, or nil.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = nil
	m.requests = nil
}

var _ Provider = (*Mock)(nil)
