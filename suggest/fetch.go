package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	vibelet "github.com/vibecode/vibelet"
)

// CompletionPath is the route of the completion endpoint.
const CompletionPath = "/api/code-completion"

// Fetcher obtains a suggestion for a completion request.
type Fetcher interface {
	Fetch(ctx context.Context, req *vibelet.CompletionRequest) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *vibelet.CompletionRequest) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *vibelet.CompletionRequest) (string, error) {
	return f(ctx, req)
}

// Completer is an in-process completion engine.
type Completer interface {
	Complete(ctx context.Context, req *vibelet.CompletionRequest) *vibelet.CompletionResponse
}

// Local fetches suggestions from an in-process engine, applying the same
// validation as the HTTP endpoint.
func Local(c Completer) Fetcher {
	return FetcherFunc(func(ctx context.Context, req *vibelet.CompletionRequest) (string, error) {
		if err := req.Validate(); err != nil {
			return "", err
		}
		return c.Complete(ctx, req).Suggestion, nil
	})
}

// HTTPFetcher posts completion requests to a vibeletd server.
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher creates a fetcher for the server at baseURL.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		url:    strings.TrimRight(baseURL, "/") + CompletionPath,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch sends req and returns the suggestion text.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *vibelet.CompletionRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("API responded with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out vibelet.CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	return out.Suggestion, nil
}
