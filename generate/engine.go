// Package generate turns a completion request into an inline code suggestion.
package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/analyze"
	"github.com/vibecode/vibelet/index"
	"github.com/vibecode/vibelet/model"
)

// RelatedSnippetCount is the number of indexed snippets attached to a prompt.
const RelatedSnippetCount = 3

// Engine orchestrates context extraction and model inference for completions.
type Engine struct {
	provider     model.Provider
	modelName    string
	cache        *SuggestionCache
	snippets     *index.Store
	config       *vibelet.Config
	customPrompt string // loaded custom prompt template (empty = use default)
	now          func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithProvider replaces the provider built from config.
func WithProvider(p model.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithSnippets attaches a related-code index store.
func WithSnippets(s *index.Store) Option {
	return func(e *Engine) { e.snippets = s }
}

// WithClock overrides the clock used for response metadata.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPrompt overrides the prompt template.
func WithPrompt(tmpl string) Option {
	return func(e *Engine) { e.customPrompt = tmpl }
}

// NewEngine creates a completion engine from cfg. A nil cfg loads the config
// file, falling back to defaults.
func NewEngine(ctx context.Context, cfg *vibelet.Config, opts ...Option) *Engine {
	if cfg == nil {
		var err error
		cfg, err = vibelet.LoadConfig()
		if err != nil {
			slog.Warn("failed to load config, using defaults", "error", err)
			cfg = vibelet.DefaultConfig()
		}
	}

	e := &Engine{
		modelName:    vibelet.ResolveGenerationModel(cfg),
		cache:        NewSuggestionCache(time.Duration(cfg.Generation.CacheTTLSeconds) * time.Second),
		config:       cfg,
		customPrompt: loadCustomPrompt(),
		now:          time.Now,
	}
	if e.customPrompt == "" {
		slog.Debug("no custom prompt, using built-in default")
	}

	provider, err := model.New(ctx,
		cfg.Generation.APIType,
		vibelet.ResolveGenerationBaseURL(cfg),
		vibelet.ResolveGenerationAPIKey(cfg),
	)
	switch {
	case errors.Is(err, model.ErrNotConfigured):
		slog.Warn("generation API key not configured; set VIBELET_GENERATION_API_KEY or GROQ_API_KEY")
	case err != nil:
		slog.Error("failed to create generation client", "error", err)
	default:
		e.provider = provider
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configured reports whether the engine can reach a model.
func (e *Engine) Configured() bool { return e.provider != nil }

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.provider != nil {
		e.provider.Close()
	}
	e.cache.Close()
}

// WarmContext indexes a playground's files in the background so that later
// completions can include related snippets.
func (e *Engine) WarmContext(ctx context.Context, playgroundID string, files map[string]string) <-chan struct{} {
	if e.snippets == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return e.snippets.Warm(ctx, playgroundID, files)
}

// BuildPrompt renders the engine's prompt template for cc.
func (e *Engine) BuildPrompt(cc vibelet.CodeContext) string {
	return RenderPrompt(e.customPrompt, cc)
}

// CompleteResult carries the intermediate artifacts of a completion.
type CompleteResult struct {
	Response   *vibelet.CompletionResponse
	Prompt     string
	Suggestion Suggestion
}

// Complete processes a validated completion request. Model failures are
// reported through the fallback suggestion text, never as an error.
func (e *Engine) Complete(ctx context.Context, req *vibelet.CompletionRequest) *vibelet.CompletionResponse {
	return e.CompleteVerbose(ctx, req).Response
}

// CompleteVerbose is Complete that also returns the prompt and outcome.
func (e *Engine) CompleteVerbose(ctx context.Context, req *vibelet.CompletionRequest) CompleteResult {
	cc := analyze.Extract(req.FileContent, req.CursorLine, req.CursorColumn, req.FileName)
	cc.RelatedSnippets = e.relatedSnippets(ctx, req.PlaygroundID, cc)

	prompt := e.BuildPrompt(cc)
	slog.Debug("prompt", "language", cc.Language, "framework", cc.Framework, "prompt", prompt)

	s := e.RequestSuggestion(ctx, prompt)
	slog.Debug("suggestion", "outcome", s.Outcome, "text", s.Text)

	return CompleteResult{
		Response: &vibelet.CompletionResponse{
			Suggestion: s.Text,
			Context:    cc,
			Metadata: vibelet.CompletionMetadata{
				Language:    cc.Language,
				Framework:   cc.Framework,
				Position:    cc.CursorPosition,
				GeneratedAt: e.now().UTC(),
			},
		},
		Prompt:     prompt,
		Suggestion: s,
	}
}

// relatedSnippets searches the playground's index with the text before the
// cursor. It returns nil while the index is still building.
func (e *Engine) relatedSnippets(ctx context.Context, playgroundID string, cc vibelet.CodeContext) []string {
	if e.snippets == nil || playgroundID == "" {
		return nil
	}
	before, _ := analyze.SplitAt(cc.CurrentLine, cc.CursorPosition.Column)
	query := strings.TrimSpace(cc.BeforeContext + "\n" + before)
	return e.snippets.Search(ctx, playgroundID, query, RelatedSnippetCount)
}
