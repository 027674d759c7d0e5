package generate

import (
	"log/slog"
	"os"
	"strings"
	"text/template"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/analyze"
	defaults "github.com/vibecode/vibelet/default"
)

// PromptData holds the data passed to the prompt template.
type PromptData struct {
	Language        string
	Framework       string
	RelatedSnippets []string
	BeforeContext   string
	// BeforeCursor and AfterCursor split the cursor line at the cursor column.
	BeforeCursor string
	AfterCursor  string
	AfterContext string
}

// NewPromptData derives template data from a code context.
func NewPromptData(cc vibelet.CodeContext) PromptData {
	before, after := analyze.SplitAt(cc.CurrentLine, cc.CursorPosition.Column)
	return PromptData{
		Language:        cc.Language,
		Framework:       cc.Framework,
		RelatedSnippets: cc.RelatedSnippets,
		BeforeContext:   cc.BeforeContext,
		BeforeCursor:    before,
		AfterCursor:     after,
		AfterContext:    cc.AfterContext,
	}
}

// BuildPrompt renders the built-in completion prompt for cc.
// The result depends only on cc.
func BuildPrompt(cc vibelet.CodeContext) string {
	return RenderPrompt("", cc)
}

// RenderPrompt renders tmplSrc, or the built-in prompt when tmplSrc is empty.
// A template that fails to parse or execute falls back to the built-in one.
func RenderPrompt(tmplSrc string, cc vibelet.CodeContext) string {
	if tmplSrc == "" {
		tmplSrc = defaults.DefaultPrompt
	}
	data := NewPromptData(cc)

	t, err := template.New("prompt").Parse(tmplSrc)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
		t = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		t = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))
		buf.Reset()
		t.Execute(&buf, data)
	}

	return strings.TrimRight(buf.String(), " \t\n")
}

// loadCustomPrompt loads a custom prompt template.
// Returns empty string if no custom prompt exists.
func loadCustomPrompt() string {
	promptPath := vibelet.PromptPath()
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", promptPath)
	return string(data)
}
