package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client. It only
// focuses on the API call itself; rate limiting, retries, and logging are
// applied via Middleware.
type GeminiClient struct {
	cli      *genai.Client
	model    string
	tokenCap int
}

func NewGeminiClient(ctx context.Context, model string, tokenCap int) (*GeminiClient, error) {
	// The genai client reads GEMINI_API_KEY from the environment.
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if tokenCap <= 0 {
		tokenCap = 12000
	}
	return &GeminiClient{cli: cli, model: model, tokenCap: tokenCap}, nil
}

func (g *GeminiClient) Name() string           { return "gemini:" + g.model }
func (g *GeminiClient) Close() error           { return nil }
func (g *GeminiClient) TokenCapacity() int     { return g.tokenCap }
func (g *GeminiClient) CountTokens(text string) int {
	return EstimateTokens(text)
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "text/plain"},
	)
	if err != nil {
		return "", classifyGenaiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyCompletion
	}
	txt := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(txt) == "" {
		return "", ErrEmptyCompletion
	}
	return txt, nil
}

// classifyGenaiError maps API failures onto the package error taxonomy.
// Unrecognized errors stay as-is and are treated as transient transport
// failures by the retry layer.
func classifyGenaiError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return &RateLimitedError{Err: err}
	case strings.Contains(msg, "400") || strings.Contains(msg, "INVALID_ARGUMENT"):
		return &RejectedError{Reason: "invalid request", Err: err}
	case strings.Contains(msg, "SAFETY") || strings.Contains(msg, "blocked"):
		return &RejectedError{Reason: "content rejected", Err: err}
	default:
		return err
	}
}
