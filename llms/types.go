// Package llms implements the completion provider clients: a remote
// OpenAI-style client with credential rotation and rate accounting, and a
// MacLink client for local model runtimes with discovery and health
// monitoring.
package llms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// PROVIDER INTERFACE AND SHARED TYPES
// ============================================================================

// Provider names for selection and stats.
const (
	ProviderOpenAI  = "openai"
	ProviderMacLink = "maclink"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrNoActiveKey   = errors.New("no active API key")
	ErrUnavailable   = errors.New("provider unavailable")
)

// Turn is one conversation turn sent as context with a request.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Prompt        string
	Model         string
	SystemMessage string
	History       []Turn
	MaxTokens     int
	Temperature   float64
	TopP          float64
	Stop          []string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      string
	Model        string
	TokensUsed   int
	FinishReason string
	Duration     time.Duration
	Metadata     map[string]interface{}
}

// Provider generates completions for a family of models.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Available() bool
	Models() []string
}

// ProviderError is a typed error raised by provider operations.
type ProviderError struct {
	Provider   string
	Operation  string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Provider, e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider, operation, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
