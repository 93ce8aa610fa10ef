package llm

import (
	"context"
	"log"
	"sync"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns.
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit paces Generate calls to at most rps per second, with a burst
// allowance served without waiting. If rps <= 0 the middleware passes
// through.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, pace: newPacer(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	pace *pacer
}

func (c *rateLimited) Name() string             { return c.next.Name() }
func (c *rateLimited) CountTokens(s string) int { return c.next.CountTokens(s) }
func (c *rateLimited) TokenCapacity() int       { return c.next.TokenCapacity() }
func (c *rateLimited) Close() error             { return c.next.Close() }

func (c *rateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.pace.wait(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, prompt)
}

// pacer hands out send slots one interval apart. Each caller reserves the
// next slot under the lock, then waits outside it, so concurrent callers
// line up without a feeder goroutine.
type pacer struct {
	interval time.Duration
	slack    time.Duration // burst allowance, expressed as time credit

	mu   sync.Mutex
	next time.Time
}

func newPacer(rps float64, burst int) *pacer {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rps)
	return &pacer{interval: interval, slack: time.Duration(burst-1) * interval}
}

// wait blocks until the caller's reserved slot arrives or ctx is canceled.
// A canceled wait does not release the slot.
func (p *pacer) wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if floor := now.Add(-p.slack); slot.Before(floor) {
		slot = floor
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		return sleep(ctx, d)
	}
	return nil
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent failures short-circuit; context cancellation stops
// the backoff wait immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string             { return r.next.Name() }
func (r *retrying) CountTokens(s string) int { return r.next.CountTokens(s) }
func (r *retrying) TokenCapacity() int       { return r.next.TokenCapacity() }
func (r *retrying) Close() error             { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if IsPermanent(err) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}
		if err := sleep(ctx, Backoff(r.base, i)); err != nil {
			return "", err
		}
	}
	return "", last
}

// Backoff returns the wait before retry attempt i (0-based): base * 2^i.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -------- Logging --------

// WithLogging logs request size and errors. Pass nil for log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *log.Logger
}

func (l *logging) Name() string             { return l.next.Name() }
func (l *logging) CountTokens(s string) int { return l.next.CountTokens(s) }
func (l *logging) TokenCapacity() int       { return l.next.TokenCapacity() }
func (l *logging) Close() error             { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, prompt string) (string, error) {
	l.log.Printf("llm request (%s): %d bytes", l.next.Name(), len(prompt))
	out, err := l.next.Generate(ctx, prompt)
	if err != nil {
		l.log.Printf("llm error (%s): %v", l.next.Name(), err)
	}
	return out, err
}
