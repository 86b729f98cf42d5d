package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoBaseURL           = errors.New("inference: base URL required")
	ErrNoModel             = errors.New("inference: model required")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
	ErrEmptyResponse       = errors.New("inference: empty response")

	// ErrModelNotPulled is returned by Health when the service is up but
	// does not list the configured model.
	ErrModelNotPulled = errors.New("inference: model not available on server")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	status := fmt.Sprintf("%d", e.StatusCode)
	if e.Code != "" {
		status += " " + e.Code
	}
	return fmt.Sprintf("inference [%s]: status %s: %s", e.Provider, status, e.Message)
}

// IsNotFound reports a 404. Ollama answers chats for an unpulled model with one.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRetryable reports rate limiting and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags err with provider. A nil err stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects the failure of every provider in a chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "inference chain: no providers tried"
	}
	return fmt.Sprintf("inference chain: %d providers failed, last: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap lets errors.Is and errors.As see every provider error.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
