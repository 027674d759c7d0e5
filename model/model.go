// Package model sends chat-style requests to hosted language models.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options control a single model request.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// ErrNotConfigured is returned when a provider has no API key.
var ErrNotConfigured = errors.New("model API key not configured")

// APIError is a non-200 answer from an upstream API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Provider is implemented by every model backend.
type Provider interface {
	// Complete returns the full response text.
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
	// Stream calls emit for every non-empty text delta, in order.
	// An error from emit stops the stream and is returned.
	Stream(ctx context.Context, msgs []Message, opts Options, emit func(string) error) error
	Close()
}

// API types understood by New.
const (
	APIChatCompletions = "chat_completions"
	APIResponses       = "responses"
	APIGemini          = "gemini"
)

// New returns the provider for apiType. An empty apiKey yields ErrNotConfigured.
func New(ctx context.Context, apiType, baseURL, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if apiType == APIGemini {
		return NewGemini(ctx, apiKey)
	}
	return NewClient(baseURL, apiKey, apiType), nil
}
