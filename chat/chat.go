// Package chat answers free-form questions from the playground's assistant panel.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	vibelet "github.com/vibecode/vibelet"
	defaults "github.com/vibecode/vibelet/default"
	"github.com/vibecode/vibelet/model"
)

// DefaultHistoryLimit is the number of prior turns forwarded upstream.
const DefaultHistoryLimit = 10

// Service builds chat conversations and relays them to the model.
type Service struct {
	provider     model.Provider
	opts         model.Options
	historyLimit int
	systemPrompt string
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithProvider replaces the provider built from config.
func WithProvider(p model.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithClock overrides the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat service from cfg. Chat connection settings fall
// back to the generation ones.
func NewService(ctx context.Context, cfg *vibelet.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = vibelet.DefaultConfig()
	}
	s := &Service{
		opts: model.Options{
			Model:       cfg.Chat.Model,
			MaxTokens:   cfg.Chat.MaxTokens,
			Temperature: cfg.Chat.Temperature,
		},
		historyLimit: cfg.Chat.HistoryLimit,
		systemPrompt: defaults.ChatSystemPrompt,
		now:          time.Now,
	}
	if s.opts.Model == "" {
		s.opts.Model = vibelet.ResolveGenerationModel(cfg)
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}

	provider, err := model.New(ctx,
		vibelet.ResolveChatAPIType(cfg),
		vibelet.ResolveChatBaseURL(cfg),
		vibelet.ResolveChatAPIKey(cfg),
	)
	switch {
	case errors.Is(err, model.ErrNotConfigured):
		slog.Warn("chat API key not configured; set VIBELET_GENERATION_API_KEY or GROQ_API_KEY")
	case err != nil:
		slog.Error("failed to create chat client", "error", err)
	default:
		s.provider = provider
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the model name reported in chat responses.
func (s *Service) Model() string { return s.opts.Model }

// Close releases the provider.
func (s *Service) Close() {
	if s.provider != nil {
		s.provider.Close()
	}
}

// ParseHistory decodes a client-supplied history. Entries that are not
// objects with a string role of "user" or "assistant" and a string content
// are dropped. Anything other than a JSON array yields an empty history.
func ParseHistory(raw json.RawMessage) []model.Message {
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []model.Message{}
	}

	msgs := make([]model.Message, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, ok := obj["role"].(string)
		if !ok || (role != "user" && role != "assistant") {
			continue
		}
		content, ok := obj["content"].(string)
		if !ok {
			continue
		}
		msgs = append(msgs, model.Message{Role: role, Content: content})
	}
	return msgs
}

// Recent returns the last limit messages.
func Recent(msgs []model.Message, limit int) []model.Message {
	if limit >= 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}

// BuildMessages assembles the upstream conversation: system prompt, the most
// recent history, then the new user message.
func (s *Service) BuildMessages(message string, history []model.Message) []model.Message {
	recent := Recent(history, s.historyLimit)
	msgs := make([]model.Message, 0, len(recent)+2)
	msgs = append(msgs, model.Message{Role: "system", Content: s.systemPrompt})
	msgs = append(msgs, recent...)
	msgs = append(msgs, model.Message{Role: "user", Content: message})
	return msgs
}

func (s *Service) configured() error {
	if s.provider == nil {
		return fmt.Errorf("%w: set VIBELET_GENERATION_API_KEY or GROQ_API_KEY", model.ErrNotConfigured)
	}
	return nil
}

// Respond returns the full assistant answer.
func (s *Service) Respond(ctx context.Context, message string, history json.RawMessage) (*vibelet.ChatResponse, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	msgs := s.BuildMessages(message, ParseHistory(history))
	slog.Debug("chat request", "messages", len(msgs), "stream", false)

	text, err := s.provider.Complete(ctx, msgs, s.opts)
	if err != nil {
		return nil, err
	}
	return &vibelet.ChatResponse{
		Response:  text,
		Model:     s.opts.Model,
		Timestamp: s.now().UTC(),
	}, nil
}

// Stream relays the assistant answer to emit as it is generated.
func (s *Service) Stream(ctx context.Context, message string, history json.RawMessage, emit func(string) error) error {
	if err := s.configured(); err != nil {
		return err
	}
	msgs := s.BuildMessages(message, ParseHistory(history))
	slog.Debug("chat request", "messages", len(msgs), "stream", true)
	return s.provider.Stream(ctx, msgs, s.opts, emit)
}
