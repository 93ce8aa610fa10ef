package llm

import (
	"context"
	"errors"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient calls the Chat Completions API. It also serves
// OpenAI-compatible endpoints (set baseURL for self-hosted backends).
type OpenAIClient struct {
	cli      *openai.Client
	model    string
	tokenCap int
}

// NewOpenAIClient creates a client. Empty apiKey falls back to
// OPENAI_API_KEY; empty baseURL uses the default endpoint.
func NewOpenAIClient(apiKey, baseURL, model string, tokenCap int) *OpenAIClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if tokenCap <= 0 {
		tokenCap = 12000
	}
	return &OpenAIClient{cli: openai.NewClientWithConfig(cfg), model: model, tokenCap: tokenCap}
}

func (c *OpenAIClient) Name() string       { return "openai:" + c.model }
func (c *OpenAIClient) Close() error       { return nil }
func (c *OpenAIClient) TokenCapacity() int { return c.tokenCap }
func (c *OpenAIClient) CountTokens(text string) int {
	return EstimateTokens(text)
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	txt := resp.Choices[0].Message.Content
	if strings.TrimSpace(txt) == "" {
		return "", ErrEmptyCompletion
	}
	return txt, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.HTTPStatusCode {
	case 429:
		return &RateLimitedError{Err: err}
	case 400, 404, 422:
		return &RejectedError{Reason: "invalid request", Err: err}
	default:
		return err
	}
}
