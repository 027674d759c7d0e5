package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to an OpenAI-compatible API (Groq, OpenAI, OpenRouter, ...).
type Client struct {
	baseURL string
	apiKey  string
	apiType string // "responses" or "chat_completions"
	client  *http.Client
	// streams have no overall deadline; the request context bounds them
	streamClient *http.Client
}

// NewClient creates a client for the given endpoint.
func NewClient(baseURL, apiKey, apiType string) *Client {
	if apiType == "" {
		apiType = APIChatCompletions
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		apiType:      apiType,
		client:       &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// Complete sends a buffered request and returns the response text.
func (c *Client) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	if c.apiType == APIResponses {
		return c.completeResponses(ctx, msgs, opts)
	}
	return c.completeChat(ctx, msgs, opts)
}

// Close is a no-op (no subprocess to manage).
func (c *Client) Close() {}

// --- Chat Completions API ---

type chatCompletionsRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message Message `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) completeChat(ctx context.Context, msgs []Message, opts Options) (string, error) {
	body, err := c.post(ctx, c.client, "/chat/completions", chatCompletionsRequest{
		Model:       opts.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	var result chatCompletionsResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(data))
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// Stream sends a streamed chat-completions request and relays content deltas.
// The responses API has no delta relay here; its full answer is emitted once.
func (c *Client) Stream(ctx context.Context, msgs []Message, opts Options, emit func(string) error) error {
	if c.apiType == APIResponses {
		text, err := c.completeResponses(ctx, msgs, opts)
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return emit(text)
	}

	body, err := c.post(ctx, c.streamClient, "/chat/completions", chatCompletionsRequest{
		Model:       opts.Model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer body.Close()
	return RelayDeltas(body, emit)
}

// --- Responses API ---

type responsesRequest struct {
	Model       string    `json:"model"`
	Input       []Message `json:"input"`
	MaxTokens   int       `json:"max_output_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type responsesResponse struct {
	Output []responsesOutput `json:"output"`
	Error  *apiError         `json:"error,omitempty"`
}

type responsesOutput struct {
	Type    string             `json:"type"`
	Content []responsesContent `json:"content,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) completeResponses(ctx context.Context, msgs []Message, opts Options) (string, error) {
	body, err := c.post(ctx, c.client, "/responses", responsesRequest{
		Model:       opts.Model,
		Input:       msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	var result responsesResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(data))
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	for _, out := range result.Output {
		if out.Type != "message" {
			continue
		}
		for _, part := range out.Content {
			if part.Type == "output_text" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// post sends a JSON request and returns the body of a 200 response.
// Any other status is reported as *APIError.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}
