package model

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli *genai.Client
}

// NewGemini creates a Gemini API client authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli}, nil
}

// Complete generates a full response.
func (g *GeminiClient) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	contents, cfg := geminiRequest(msgs, opts)
	resp, err := g.cli.Models.GenerateContent(ctx, opts.Model, contents, cfg)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// Stream relays every text chunk produced by GenerateContentStream.
func (g *GeminiClient) Stream(ctx context.Context, msgs []Message, opts Options, emit func(string) error) error {
	contents, cfg := geminiRequest(msgs, opts)
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, opts.Model, contents, cfg) {
		if err != nil {
			return err
		}
		if text := responseText(resp); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *GeminiClient) Close() {}

// geminiRequest maps chat messages onto genai contents. System messages become
// the system instruction and "assistant" turns use the "model" role.
func geminiRequest(msgs []Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.Temperature)),
		MaxOutputTokens: int32(opts.MaxTokens),
	}

	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return contents, cfg
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
