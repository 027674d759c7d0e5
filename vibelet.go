// Package vibelet defines the request/response types for the vibelet HTTP API
// and the code context shared by the completion pipeline.
// Messages are JSON-encoded; field names follow the browser editor's camelCase.
package vibelet

import (
	"encoding/json"
	"errors"
	"time"
)

// Position is a zero-based line/column pair inside a document.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CodeContext is derived from a document and cursor for a single completion request.
type CodeContext struct {
	// Language is a display label such as "TypeScript" or "Python".
	Language string `json:"language"`
	// Framework is a display label such as "React", or "None".
	Framework string `json:"framework"`
	// BeforeContext holds the lines above the cursor line, newline-joined.
	BeforeContext string `json:"beforeContext"`
	// CurrentLine is the full text of the cursor line.
	CurrentLine string `json:"currentLine"`
	// AfterContext holds the lines below the cursor line, newline-joined.
	AfterContext   string   `json:"afterContext"`
	CursorPosition Position `json:"cursorPosition"`
	IsInFunction   bool     `json:"isInFunction"`
	IsInClass      bool     `json:"isInClass"`
	IsAfterComment bool     `json:"isAfterComment"`
	// IncompletePatterns classifies the text right before the cursor. Never nil.
	IncompletePatterns []string `json:"incompletePatterns"`
	// RelatedSnippets are similar code chunks from the same playground, when indexed.
	RelatedSnippets []string `json:"relatedSnippets,omitempty"`
}

// CompletionRequest is sent by the editor to request an inline suggestion.
type CompletionRequest struct {
	FileContent    string `json:"fileContent"`
	CursorLine     int    `json:"cursorLine"`
	CursorColumn   int    `json:"cursorColumn"`
	SuggestionType string `json:"suggestionType"`
	FileName       string `json:"fileName,omitempty"`
	// PlaygroundID selects the related-code index warmed for that playground.
	PlaygroundID string `json:"playgroundId,omitempty"`
}

// ErrInvalidCompletionRequest is returned by Validate for malformed input.
var ErrInvalidCompletionRequest = errors.New("invalid input parameters")

// Validate checks the required fields of a completion request.
func (r *CompletionRequest) Validate() error {
	if r == nil || r.FileContent == "" || r.CursorLine < 0 || r.CursorColumn < 0 || r.SuggestionType == "" {
		return ErrInvalidCompletionRequest
	}
	return nil
}

// CompletionMetadata describes how a suggestion was produced.
type CompletionMetadata struct {
	Language    string    `json:"language"`
	Framework   string    `json:"framework"`
	Position    Position  `json:"position"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// CompletionResponse is returned for a successful completion request.
type CompletionResponse struct {
	Suggestion string             `json:"suggestion"`
	Context    CodeContext        `json:"context"`
	Metadata   CompletionMetadata `json:"metadata"`
}

// ChatMessage is a single prior turn in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is sent by the chat panel. Message and History are kept raw so
// that type errors can be reported (message) or tolerated (history).
type ChatRequest struct {
	Message json.RawMessage `json:"message"`
	History json.RawMessage `json:"history,omitempty"`
	Stream  bool            `json:"stream,omitempty"`
	Mode    string          `json:"mode,omitempty"`
	Model   string          `json:"model,omitempty"`
}

// ErrInvalidChatMessage is returned when the chat message is missing or not a string.
var ErrInvalidChatMessage = errors.New("message is required and must be a string")

// Text returns the chat message as a string.
func (r *ChatRequest) Text() (string, error) {
	if r == nil || len(r.Message) == 0 {
		return "", ErrInvalidChatMessage
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err != nil || s == "" {
		return "", ErrInvalidChatMessage
	}
	return s, nil
}

// ChatResponse is returned for a non-streamed chat request.
type ChatResponse struct {
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamFrame is the payload of one downstream server-sent event.
type StreamFrame struct {
	Text string `json:"text"`
}

// ErrorResponse is the JSON body of every non-2xx HTTP response.
type ErrorResponse struct {
	// Error is a short human-readable description.
	Error string `json:"error"`
	// Message carries the underlying error text for internal failures.
	Message string `json:"message,omitempty"`
	// Details carries upstream failure details for chat errors.
	Details   string     `json:"details,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TemplateResponse is returned for a playground template lookup.
type TemplateResponse struct {
	Success      bool            `json:"success"`
	TemplateJSON json.RawMessage `json:"templateJson"`
}

// ContextRequest warms the related-code index for a playground.
type ContextRequest struct {
	PlaygroundID string            `json:"playgroundId"`
	Files        map[string]string `json:"files"`
}

// ContextResponse acknowledges a ContextRequest.
type ContextResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// MountResponse is returned after a template has been written into the sandbox.
type MountResponse struct {
	Success bool `json:"success"`
	Files   int  `json:"files"`
}
