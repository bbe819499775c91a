// Package llm abstracts the chat completion collaborator behind a
// provider-agnostic interface.
package llm

import (
	"context"
	"fmt"
)

// Message is a single chat message in provider-agnostic form.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Options holds optional generation parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // override the provider default
}

// Option configures a single Chat call.
type Option func(*Options)

// WithTemperature overrides the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithModel overrides the default model for one call.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// Provider is the contract for a chat completion backend.
type Provider interface {
	// Chat sends a message history to the model and returns the reply text.
	Chat(ctx context.Context, history []Message, opts ...Option) (string, error)
}

// RequestError reports a failed completion request. Status is the HTTP
// status code when the server answered, zero on transport-level failures.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
