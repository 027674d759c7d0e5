package generate

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vibecode/vibelet/model"
)

// Texts returned in place of a model suggestion.
const (
	FallbackSuggestion = "// AI suggestion unavailable"
	EmptySuggestion    = "// No suggestion generated"
)

// Outcome records how a suggestion was obtained.
type Outcome int

const (
	OutcomeSuggested Outcome = iota
	OutcomeCached
	OutcomeNotConfigured
	OutcomeUpstreamError
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuggested:
		return "suggested"
	case OutcomeCached:
		return "cached"
	case OutcomeNotConfigured:
		return "not_configured"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeEmpty:
		return "empty"
	}
	return "unknown"
}

// Suggestion is the result of RequestSuggestion. Text is always usable as
// the public suggestion string; Outcome and Err say how it came about.
type Suggestion struct {
	Text    string
	Outcome Outcome
	Err     error
}

var reFence = regexp.MustCompile("```\\w*\\n?([\\s\\S]*?)```")
var reLeadingReturn = regexp.MustCompile(`^return\s+`)

// Sanitize cleans raw model output: the inner text of the first fenced block
// when fences are present, then a leading "return " is dropped, then the
// result is trimmed.
func Sanitize(raw string) string {
	s := raw
	if strings.Contains(s, "```") {
		if m := reFence.FindStringSubmatch(s); m != nil {
			s = strings.TrimSpace(m[1])
		}
	}
	s = reLeadingReturn.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// RequestSuggestion sends prompt as the only user message and returns the
// sanitized suggestion. It never returns an error: failures become
// FallbackSuggestion with the cause in Err.
func (e *Engine) RequestSuggestion(ctx context.Context, prompt string) Suggestion {
	if e.provider == nil {
		return Suggestion{Text: FallbackSuggestion, Outcome: OutcomeNotConfigured, Err: model.ErrNotConfigured}
	}

	opts := e.options()
	if text, ok := e.cache.Get(opts.Model, prompt); ok {
		return Suggestion{Text: text, Outcome: OutcomeCached}
	}

	raw, err := e.provider.Complete(ctx, []model.Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("completion error", "error", err)
		}
		return Suggestion{Text: FallbackSuggestion, Outcome: OutcomeUpstreamError, Err: err}
	}

	outcome := OutcomeSuggested
	if raw == "" {
		raw = EmptySuggestion
		outcome = OutcomeEmpty
	}
	text := Sanitize(raw)
	if outcome == OutcomeSuggested {
		e.cache.Set(opts.Model, prompt, text)
	}
	return Suggestion{Text: text, Outcome: outcome}
}

func (e *Engine) options() model.Options {
	opts := model.Options{Temperature: 0.2, MaxTokens: 300}
	if e.config != nil {
		opts.Model = e.config.Generation.Model
		if e.config.Generation.MaxTokens > 0 {
			opts.MaxTokens = e.config.Generation.MaxTokens
		}
		if e.config.Generation.Temperature >= 0 {
			opts.Temperature = e.config.Generation.Temperature
		}
	}
	if e.modelName != "" {
		opts.Model = e.modelName
	}
	return opts
}
