package model

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientCompleteChat(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer k" {
			t.Errorf("unexpected authorization %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"done"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "")
	text, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{
		Model:       "m",
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "done" {
		t.Errorf("expected done, got %q", text)
	}
	if got.Model != "m" || got.MaxTokens != 300 || got.Temperature != 0.2 || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestClientCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k", APIChatCompletions).Complete(context.Background(), nil, Options{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Body != "slow down" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestClientCompleteResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":"ok"}]}]}`)
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, "k", APIResponses).Complete(context.Background(), nil, Options{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Errorf("expected ok, got %q", text)
	}
}

func TestClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream flag")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	var got []string
	err := NewClient(srv.URL, "k", "").Stream(context.Background(), nil, Options{}, func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equal(got, []string{"a", "b"}) {
		t.Errorf("got %q", got)
	}
}

func TestNewWithoutKey(t *testing.T) {
	if _, err := New(context.Background(), APIChatCompletions, "http://x", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	p, err := New(context.Background(), APIChatCompletions, "http://x", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*Client); !ok {
		t.Errorf("expected *Client, got %T", p)
	}
}

func TestGeminiRequestMapping(t *testing.T) {
	contents, cfg := geminiRequest([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}, Options{MaxTokens: 10, Temperature: 0.5})

	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("unexpected roles %s, %s", contents[0].Role, contents[1].Role)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("unexpected system instruction %+v", cfg.SystemInstruction)
	}
	if cfg.MaxOutputTokens != 10 || cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
