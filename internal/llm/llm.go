// Package llm is the boundary to the external text-generation service.
// Concrete clients stay thin wrappers around one API call; cross-cutting
// concerns (rate limiting, retries, logging) are applied via Middleware.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the request/response boundary to one generation backend.
type Client interface {
	Name() string
	// Generate returns explanation text for the prompt, or a typed failure.
	Generate(ctx context.Context, prompt string) (string, error)
	// CountTokens estimates the token cost of text for chunking decisions.
	CountTokens(text string) int
	// TokenCapacity is the maximum input size the backend accepts.
	TokenCapacity() int
	Close() error
}

// ErrEmptyCompletion reports a response with no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// RateLimitedError is a transient failure; callers back off and retry.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("llm: rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}
func (e *RateLimitedError) Unwrap() error { return e.Err }

// RejectedError is a permanent failure (content rejected, invalid request);
// retrying cannot resolve it.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("llm: request rejected (%s): %v", e.Reason, e.Err)
}
func (e *RejectedError) Unwrap() error { return e.Err }

// IsPermanent reports whether err will not resolve with retries.
// Anything else (rate limits, timeouts, transport errors) is transient.
func IsPermanent(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}
