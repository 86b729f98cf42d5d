// Package inference is the port to the advisory text service.
//
// The advisor only needs short chat completions, so the Provider interface
// is narrowed to Chat plus health and lifecycle. Client speaks the
// OpenAI-compatible API that Ollama, vLLM and hosted services expose; it
// defaults to a local Ollama instance.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:11434/v1"),
//	    inference.WithModel("llama3"),
//	)
//	defer client.Close()
//
//	text, err := inference.Ask(ctx, client,
//	    "Output ONLY a 5-word status report.",
//	    "Data: [-61, -64, -70]",
//	)
package inference

import (
	"context"
	"strings"
	"time"
)

// Provider generates short text completions.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// Health reports whether the provider can answer right now.
	Health(ctx context.Context) error
	Close() error
}

// ChatRequest is one completion request. Zero fields use the provider's
// configured defaults.
type ChatRequest struct {
	Messages    []Message // system instruction first
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	Latency      time.Duration
}

// Usage is the token accounting reported by the server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Ask sends a system instruction and one user message and returns the
// trimmed reply text. An empty reply is ErrEmptyResponse.
func Ask(ctx context.Context, p Provider, system, user string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, NewSystemMessage(system))
	}
	msgs = append(msgs, NewUserMessage(user))

	resp, err := p.Chat(ctx, &ChatRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
