package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"repopilot/internal/llm"
	t "repopilot/internal/types"
)

// Request lifecycle: pending → in-flight → {succeeded, retrying, failed};
// retrying returns to in-flight when the backoff expires. Terminal states
// are succeeded and failed.
type requestState string

const (
	statePending   requestState = "pending"
	stateInFlight  requestState = "in-flight"
	stateRetrying  requestState = "retrying"
	stateSucceeded requestState = "succeeded"
	stateFailed    requestState = "failed"
)

// errOversized terminates a request whose chunk count exceeds the ceiling.
var errOversized = errors.New("orchestrator: node exceeds chunking ceiling")

func oversized(err error) bool { return errors.Is(err, errOversized) }

// generationRequest is the ephemeral unit of work for one fingerprint.
type generationRequest struct {
	node     *t.StructuralNode
	fp       t.Fingerprint
	attempts int
	state    requestState
}

func newRequest(node *t.StructuralNode, fp t.Fingerprint) *generationRequest {
	return &generationRequest{node: node, fp: fp, state: statePending}
}

// run drives the state machine to a terminal state. It returns the stored
// cache entry on success. Build cancellation surfaces as the context error.
func (r *generationRequest) run(ctx context.Context, o *Orchestrator) (t.CacheEntry, error) {
	maxAttempts := o.maxAttempts()
	for {
		r.state = stateInFlight
		r.attempts++

		text, composite, err := r.generateOnce(ctx, o)
		if err == nil {
			r.state = stateSucceeded
			return r.store(ctx, o, text, composite), nil
		}
		if ctx.Err() != nil {
			r.state = stateFailed
			return t.CacheEntry{}, ctx.Err()
		}
		if llm.IsPermanent(err) || errors.Is(err, errOversized) {
			r.state = stateFailed
			return t.CacheEntry{}, err
		}
		if r.attempts >= maxAttempts {
			r.state = stateFailed
			return t.CacheEntry{}, err
		}

		r.state = stateRetrying
		wait := llm.Backoff(o.baseDelay(), r.attempts-1)
		var rl *llm.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > wait {
			wait = rl.RetryAfter
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.state = stateFailed
			return t.CacheEntry{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// generateOnce performs one attempt: a single call for nodes that fit the
// backend's input budget, otherwise one call per chunk with the results
// concatenated in original order.
func (r *generationRequest) generateOnce(ctx context.Context, o *Orchestrator) (string, bool, error) {
	code := r.node.Raw
	budget := inputBudget(o.Client)

	if o.Client.CountTokens(code) <= budget {
		text, err := r.call(ctx, o, renderPrompt(r.node, code, 0, 1))
		return text, false, err
	}

	chunks := splitChunks(code, o.Client, budget)
	if len(chunks) > o.maxChunks() {
		return "", false, errOversized
	}
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := r.call(ctx, o, renderPrompt(r.node, chunk, i, len(chunks)))
		if err != nil {
			return "", false, err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, chunkBoundary), true, nil
}

func (r *generationRequest) call(ctx context.Context, o *Orchestrator, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.requestTimeout())
	defer cancel()
	return o.Client.Generate(callCtx, prompt)
}

// store caches the result under the request's own fingerprint. Insert-if-
// absent means a racing request's entry wins and this one adopts it.
func (r *generationRequest) store(ctx context.Context, o *Orchestrator, text string, composite bool) t.CacheEntry {
	entry := t.CacheEntry{
		Fingerprint: r.fp,
		Explanation: text,
		Model:       o.Client.Name(),
		CreatedAt:   time.Now().UTC(),
		Composite:   composite,
		Truncated:   r.node.Truncated,
	}
	winner, _, err := o.Store.PutIfAbsent(ctx, entry)
	if err != nil {
		// Store write failures degrade to always-regenerate.
		o.logf("cache store failed for %s: %v", short(r.fp), err)
		return entry
	}
	return winner
}

// chunkBoundary separates independently generated segments of a composite
// explanation.
const chunkBoundary = "\n\n---\n\n"

// inputBudget leaves headroom for the prompt scaffolding around the code.
func inputBudget(c llm.Client) int {
	budget := c.TokenCapacity() - c.TokenCapacity()/8
	if budget < 1 {
		budget = 1
	}
	return budget
}

// splitChunks slices text on line boundaries so that each chunk stays under
// the token budget. A single line over budget becomes its own chunk.
func splitChunks(text string, c llm.Client, budget int) []string {
	lines := strings.SplitAfter(text, "\n")
	var chunks []string
	var cur strings.Builder
	curTokens := 0
	for _, line := range lines {
		lt := c.CountTokens(line)
		if cur.Len() > 0 && curTokens+lt > budget {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curTokens = 0
		}
		cur.WriteString(line)
		curTokens += lt
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
