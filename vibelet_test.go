package vibelet

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCompletionRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
		ok   bool
	}{
		{"valid", CompletionRequest{FileContent: "x", CursorLine: 0, CursorColumn: 0, SuggestionType: "completion"}, true},
		{"empty content", CompletionRequest{FileContent: "", SuggestionType: "completion"}, false},
		{"negative line", CompletionRequest{FileContent: "x", CursorLine: -1, SuggestionType: "completion"}, false},
		{"negative column", CompletionRequest{FileContent: "x", CursorColumn: -1, SuggestionType: "completion"}, false},
		{"missing type", CompletionRequest{FileContent: "x"}, false},
	}
	for _, tt := range tests {
		err := tt.req.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidCompletionRequest) {
			t.Errorf("%s: expected ErrInvalidCompletionRequest, got %v", tt.name, err)
		}
	}
}

func TestCompletionRequestJSONKeys(t *testing.T) {
	var req CompletionRequest
	raw := `{"fileContent":"a","cursorLine":2,"cursorColumn":3,"suggestionType":"completion","fileName":"x.ts"}`
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatal(err)
	}
	if req.CursorLine != 2 || req.CursorColumn != 3 || req.FileName != "x.ts" {
		t.Errorf("unexpected decode: %+v", req)
	}
}

func TestCodeContextIncompletePatternsEmptyNotNull(t *testing.T) {
	cc := CodeContext{IncompletePatterns: []string{}}
	data, err := json.Marshal(cc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"incompletePatterns":[]`) {
		t.Errorf("expected incompletePatterns:[], got %s", data)
	}
	if strings.Contains(string(data), `"relatedSnippets"`) {
		t.Errorf("expected relatedSnippets to be omitted, got %s", data)
	}
}

func TestChatRequestText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`{"message":"hi"}`, "hi", true},
		{`{"message":""}`, "", false},
		{`{"message":42}`, "", false},
		{`{"message":{"text":"hi"}}`, "", false},
		{`{}`, "", false},
	}
	for _, tt := range tests {
		var req ChatRequest
		if err := json.Unmarshal([]byte(tt.raw), &req); err != nil {
			t.Fatal(err)
		}
		got, err := req.Text()
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("Text(%s) = %q, %v; want %q", tt.raw, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidChatMessage) {
			t.Errorf("Text(%s): expected ErrInvalidChatMessage, got %v", tt.raw, err)
		}
	}
}

func TestErrorResponseOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: "Invalid input parameters"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if s != `{"error":"Invalid input parameters"}` {
		t.Errorf("unexpected error body %s", s)
	}
}

func TestStreamFrameShape(t *testing.T) {
	data, err := json.Marshal(StreamFrame{Text: "Hel"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"text":"Hel"}` {
		t.Errorf("unexpected frame %s", data)
	}
}
