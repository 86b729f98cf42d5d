package inference

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	failing := WithError(errors.New("provider 1 failed"))
	working := Reply("From working provider")

	chain, err := NewChain(nil, failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	resp, err := chain.Chat(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})
	if err != nil {
		t.Fatalf("Chain chat failed: %v", err)
	}
	if resp.Message.Content != "From working provider" {
		t.Errorf("Unexpected response: %s", resp.Message.Content)
	}
	if failing.CallCount("Chat") != 1 || working.CallCount("Chat") != 1 {
		t.Error("Expected each provider to be tried once")
	}

	if _, err := chain.Chat(context.Background(), &ChatRequest{}); err != nil {
		t.Fatalf("Second chat failed: %v", err)
	}
	if failing.CallCount("Chat") != 1 {
		t.Error("Chain should start from the provider that answered last")
	}
	if chain.Preferred() != 1 {
		t.Errorf("Expected preferred provider 1, got %d", chain.Preferred())
	}
}

func TestChainAllFail(t *testing.T) {
	errOne := errors.New("provider 1 failed")
	p1 := WithError(errOne)
	p2 := WithError(errors.New("provider 2 failed"))

	chain, _ := NewChain(nil, p1, p2)
	defer chain.Close()

	_, err := chain.Chat(context.Background(), &ChatRequest{})

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !errors.Is(err, errOne) {
		t.Error("ChainError should expose every provider error")
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &Mock{ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		cancel()
		return nil, ctx.Err()
	}}
	second := NewMock()

	chain, _ := NewChain(nil, first, second)
	_, err := chain.Chat(ctx, &ChatRequest{})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if second.CallCount("Chat") != 0 {
		t.Error("Second provider should not be tried after cancellation")
	}
}

func TestChainHealth(t *testing.T) {
	ctx := context.Background()

	chain, _ := NewChain(nil, WithError(errors.New("unhealthy")), NewMock())
	if err := chain.Health(ctx); err != nil {
		t.Errorf("Health check should pass with one healthy provider: %v", err)
	}
	if chain.Preferred() != 1 {
		t.Errorf("Health should prefer the healthy provider, got %d", chain.Preferred())
	}

	chain, _ = NewChain(nil, WithError(errors.New("unhealthy 1")), WithError(errors.New("unhealthy 2")))
	if err := chain.Health(ctx); err == nil {
		t.Error("Health check should fail when all providers are unhealthy")
	}
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain(nil)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestChainProviders(t *testing.T) {
	chain, _ := NewChain(nil, NewMock(), NewMock())
	if n := len(chain.Providers()); n != 2 {
		t.Errorf("Expected 2 providers, got %d", n)
	}
}
