package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FakeClient returns deterministic stub text for offline runs and tests.
type FakeClient struct {
	tokenCap int
}

func NewFakeClient(cap int) *FakeClient {
	if cap <= 0 {
		cap = 4096
	}
	return &FakeClient{tokenCap: cap}
}

func (f *FakeClient) Name() string       { return "fake" }
func (f *FakeClient) Close() error       { return nil }
func (f *FakeClient) TokenCapacity() int { return f.tokenCap }
func (f *FakeClient) CountTokens(text string) int {
	return EstimateTokens(text)
}

// Generate returns a short stub keyed on a digest of the prompt, so equal
// prompts always produce equal text.
func (f *FakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(prompt))
	first := prompt
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if len(first) > 60 {
		first = first[:60]
	}
	return "Stub explanation " + hex.EncodeToString(sum[:6]) + ": " + first, nil
}

// EstimateTokens is the shared rough heuristic (~4 bytes per token).
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}
