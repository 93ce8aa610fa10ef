// Package orchestrator schedules generation requests for structural nodes
// that lack a valid cache entry. It enforces a bounded concurrency limit,
// deduplicates in-flight requests per fingerprint, retries transient
// failures with backoff, and chunks nodes that exceed the backend's input
// size.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"repopilot/internal/cache"
	"repopilot/internal/fingerprint"
	"repopilot/internal/llm"
	t "repopilot/internal/types"
)

type Orchestrator struct {
	Client llm.Client
	Store  cache.Store

	// Concurrency bounds simultaneous generation calls; <=0 means 4.
	Concurrency int
	// RequestTimeout applies per external call; <=0 means 90s. A timeout is
	// a transient failure and goes through the retry path.
	RequestTimeout time.Duration
	// MaxAttempts bounds retries per request; <=0 means 4.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff; <=0 means 500ms.
	BaseDelay time.Duration
	// MaxChunks is the hard ceiling for oversized-node chunking; beyond it
	// the request fails permanently. <=0 means 32.
	MaxChunks int

	Logf func(format string, args ...any)

	// sf guarantees at most one in-flight generation per fingerprint even
	// when several resolves share this orchestrator.
	sf singleflight.Group
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 4
}

func (o *Orchestrator) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 4
}

func (o *Orchestrator) baseDelay() time.Duration {
	if o.BaseDelay > 0 {
		return o.BaseDelay
	}
	return 500 * time.Millisecond
}

func (o *Orchestrator) requestTimeout() time.Duration {
	if o.RequestTimeout > 0 {
		return o.RequestTimeout
	}
	return 90 * time.Second
}

func (o *Orchestrator) maxChunks() int {
	if o.MaxChunks > 0 {
		return o.MaxChunks
	}
	return 32
}

// group is the unit of scheduling: every node sharing one fingerprint.
type group struct {
	fp  t.Fingerprint
	ids []t.NodeID
	// exemplar is the first node seen with this fingerprint; its text and
	// metadata feed the prompt. Equal fingerprints imply equal digested
	// content, so any member serves.
	exemplar *t.StructuralNode
}

// Resolve walks the tree, reuses cached explanations, and generates the rest.
// The returned map holds one resolution per explainable node (files, types,
// functions, and blobs); directories and the root are synthesized later by
// the assembler. Node-local failures land in the map as error markers; only
// build cancellation returns an error.
func (o *Orchestrator) Resolve(ctx context.Context, tr *t.Tree, ix *fingerprint.Index) (map[t.NodeID]t.Resolution, error) {
	if ix == nil {
		ix = fingerprint.New(fingerprint.Config{})
	}

	out := map[t.NodeID]t.Resolution{}
	var order []t.Fingerprint
	groups := map[t.Fingerprint]*group{}

	// Traversal and fingerprinting are synchronous and deterministic; only
	// generation calls below suspend.
	tr.Walk(func(n *t.StructuralNode) {
		switch n.Kind {
		case t.KindRoot, t.KindDirectory:
			return
		case t.KindBlob:
			out[n.ID] = blobResolution(n)
			return
		}
		fp := ix.Node(tr, n.ID)
		g, ok := groups[fp]
		if !ok {
			g = &group{fp: fp, exemplar: n}
			groups[fp] = g
			order = append(order, fp)
		}
		g.ids = append(g.ids, n.ID)
	})

	var pending []*group
	for _, fp := range order {
		g := groups[fp]
		entry, ok, err := o.Store.Get(ctx, g.fp)
		if err != nil {
			// An unavailable store degrades to a miss, never an abort.
			o.logf("cache lookup failed for %s: %v", short(g.fp), err)
		}
		if ok {
			res := t.Resolution{
				Explanation: entry.Explanation,
				Model:       entry.Model,
				FromCache:   true,
				Composite:   entry.Composite,
			}
			for _, id := range g.ids {
				out[id] = res
			}
			continue
		}
		pending = append(pending, g)
	}

	if len(pending) == 0 {
		return out, ctx.Err()
	}

	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency())
	for _, g := range pending {
		g := g
		eg.Go(func() error {
			res := o.resolveGroup(gctx, g)
			if err := gctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			for _, id := range g.ids {
				out[id] = res
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveGroup runs one generation request for the group's fingerprint, with
// in-flight deduplication across concurrent builds.
func (o *Orchestrator) resolveGroup(ctx context.Context, g *group) t.Resolution {
	v, err, _ := o.sf.Do(string(g.fp), func() (any, error) {
		req := newRequest(g.exemplar, g.fp)
		return req.run(ctx, o)
	})
	if err != nil {
		return failureResolution(err)
	}
	entry := v.(t.CacheEntry)
	return t.Resolution{
		Explanation: entry.Explanation,
		Model:       entry.Model,
		Composite:   entry.Composite,
	}
}

func blobResolution(n *t.StructuralNode) t.Resolution {
	if n.ParseNote != "" {
		return t.Resolution{Marker: t.MarkerParseError, Detail: n.ParseNote}
	}
	return t.Resolution{Marker: t.MarkerUnsupported, Detail: "no language adapter for this file"}
}

func failureResolution(err error) t.Resolution {
	if oversized(err) {
		return t.Resolution{Marker: t.MarkerTruncated, Detail: err.Error()}
	}
	return t.Resolution{Marker: t.MarkerGenerationFailed, Detail: err.Error()}
}

func short(fp t.Fingerprint) string {
	if len(fp) > 12 {
		return string(fp[:12])
	}
	return string(fp)
}
