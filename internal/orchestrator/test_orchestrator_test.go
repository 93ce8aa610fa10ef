package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repopilot/internal/cache/memory"
	"repopilot/internal/fingerprint"
	"repopilot/internal/lang"
	"repopilot/internal/llm"
	"repopilot/internal/model"
	"repopilot/internal/scan"
	t "repopilot/internal/types"
)

// countingClient records every prompt and lets tests script failures.
type countingClient struct {
	mu      sync.Mutex
	prompts []string
	// fail decides the error for one call given the prompt and the 1-based
	// call number for that prompt text. Nil means always succeed.
	fail     func(prompt string, attempt int) error
	seen     map[string]int
	tokenCap int
}

func newCountingClient() *countingClient {
	return &countingClient{seen: map[string]int{}, tokenCap: 1 << 20}
}

func (c *countingClient) Name() string             { return "counting" }
func (c *countingClient) Close() error             { return nil }
func (c *countingClient) TokenCapacity() int       { return c.tokenCap }
func (c *countingClient) CountTokens(s string) int { return len(s) }

func (c *countingClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.seen[prompt]++
	attempt := c.seen[prompt]
	c.mu.Unlock()
	if c.fail != nil {
		if err := c.fail(prompt, attempt); err != nil {
			return "", err
		}
	}
	return "explains: " + firstLine(prompt), nil
}

func (c *countingClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// fileTree builds a flat root-plus-files tree; enough structure for
// scheduling tests without involving the language adapters.
func fileTree(files map[string]string) *t.Tree {
	tr := &t.Tree{RootID: ".", Nodes: map[t.NodeID]*t.StructuralNode{}}
	tr.Nodes["."] = &t.StructuralNode{ID: ".", Kind: t.KindRoot, Name: "."}
	var paths []string
	for p := range files {
		paths = append(paths, p)
	}
	// map order is random; keep child order stable
	for i := 0; i < len(paths); i++ {
		for j := i + 1; j < len(paths); j++ {
			if paths[j] < paths[i] {
				paths[i], paths[j] = paths[j], paths[i]
			}
		}
	}
	for _, p := range paths {
		id := t.NodeID(p)
		tr.Nodes[id] = &t.StructuralNode{
			ID:     id,
			Kind:   t.KindFile,
			Name:   p,
			Span:   t.Span{Path: p, StartLine: 1},
			Raw:    files[p],
			Parent: tr.RootID,
		}
		tr.Nodes["."].Children = append(tr.Nodes["."].Children, id)
	}
	return tr
}

func newOrchestrator(te *testing.T, client llm.Client) (*Orchestrator, *memory.Store) {
	te.Helper()
	store, err := memory.New(0)
	require.NoError(te, err)
	return &Orchestrator{
		Client:    client,
		Store:     store,
		BaseDelay: time.Millisecond,
		Logf:      te.Logf,
	}, store
}

func TestResolve_OneCallPerDistinctFingerprint(te *testing.T) {
	client := newCountingClient()
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{
		"a/one.py":   "def run():\n    return 0\n",
		"b/two.py":   "def run():\n    return 0\n", // identical content
		"c/three.py": "def other():\n    return 1\n",
	})

	res, err := o.Resolve(context.Background(), tr, fingerprint.New(fingerprint.Config{}))
	require.NoError(te, err)
	require.Equal(te, 2, client.calls(), "identical content shares one generation")

	require.Equal(te, res["a/one.py"].Explanation, res["b/two.py"].Explanation)
	require.NotEqual(te, res["a/one.py"].Explanation, res["c/three.py"].Explanation)
	for _, r := range res {
		require.False(te, r.Failed())
	}
}

func TestResolve_IdenticalBodiesShareOneGeneration(te *testing.T) {
	client := newCountingClient()
	o, _ := newOrchestrator(te, client)

	b := &model.Builder{Registry: lang.Default()}
	tr, err := b.Build(context.Background(), []scan.SourceFile{{
		Path:    "a.py",
		Content: []byte("def foo():\n    return 0\n\n\ndef bar():\n    return 0\n"),
	}})
	require.NoError(te, err)

	res, err := o.Resolve(context.Background(), tr, fingerprint.New(fingerprint.Config{}))
	require.NoError(te, err)

	// One call for the file node, one shared by the two functions that
	// differ only in name.
	require.Equal(te, 2, client.calls())
	require.NotEmpty(te, res["a.py#0"].Explanation)
	require.Equal(te, res["a.py#0"].Explanation, res["a.py#1"].Explanation)
}

func TestResolve_SecondRunServedEntirelyFromCache(te *testing.T) {
	client := newCountingClient()
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})
	ix := fingerprint.Config{}

	_, err := o.Resolve(context.Background(), tr, fingerprint.New(ix))
	require.NoError(te, err)
	firstCalls := client.calls()
	require.Equal(te, 2, firstCalls)

	res, err := o.Resolve(context.Background(), tr, fingerprint.New(ix))
	require.NoError(te, err)
	require.Equal(te, firstCalls, client.calls(), "no generation on an unchanged tree")
	for id, r := range res {
		require.True(te, r.FromCache, string(id))
	}
}

func TestResolve_BlobsNeverReachTheClient(te *testing.T) {
	client := newCountingClient()
	o, _ := newOrchestrator(te, client)
	tr := fileTree(nil)
	tr.Nodes["img.png"] = &t.StructuralNode{
		ID: "img.png", Kind: t.KindBlob, Name: "img.png", Parent: tr.RootID,
	}
	tr.Nodes["broken.py"] = &t.StructuralNode{
		ID: "broken.py", Kind: t.KindBlob, Name: "broken.py", Parent: tr.RootID,
		ParseNote: "syntax errors",
	}
	tr.Nodes["."].Children = []t.NodeID{"broken.py", "img.png"}

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err)
	require.Zero(te, client.calls())
	require.Equal(te, t.MarkerUnsupported, res["img.png"].Marker)
	require.Equal(te, t.MarkerParseError, res["broken.py"].Marker)
	require.Equal(te, "syntax errors", res["broken.py"].Detail)
}

func TestResolve_PermanentFailureIsIsolated(te *testing.T) {
	client := newCountingClient()
	client.fail = func(prompt string, attempt int) error {
		if strings.Contains(prompt, "poison.py") {
			return &llm.RejectedError{Reason: "content", Err: errors.New("blocked")}
		}
		return nil
	}
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{
		"good.py":   "x = 1\n",
		"poison.py": "y = 2\n",
	})

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err, "node failures never abort the build")

	require.False(te, res["good.py"].Failed())
	require.Equal(te, t.MarkerGenerationFailed, res["poison.py"].Marker)
	require.Empty(te, res["poison.py"].Explanation, "marker and text are exclusive")

	// Permanent errors are not retried.
	c := 0
	client.mu.Lock()
	for _, p := range client.prompts {
		if strings.Contains(p, "poison.py") {
			c++
		}
	}
	client.mu.Unlock()
	require.Equal(te, 1, c)
}

func TestResolve_TransientFailureRetriesThenSucceeds(te *testing.T) {
	client := newCountingClient()
	client.fail = func(prompt string, attempt int) error {
		if attempt <= 2 {
			return &llm.RateLimitedError{Err: errors.New("429")}
		}
		return nil
	}
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{"a.py": "x = 1\n"})

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err)
	require.False(te, res["a.py"].Failed())
	require.Equal(te, 3, client.calls())
}

func TestResolve_RetriesExhaustedYieldsMarker(te *testing.T) {
	client := newCountingClient()
	client.fail = func(string, int) error { return errors.New("down") }
	o, _ := newOrchestrator(te, client)
	o.MaxAttempts = 2
	tr := fileTree(map[string]string{"a.py": "x = 1\n"})

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err)
	require.Equal(te, t.MarkerGenerationFailed, res["a.py"].Marker)
	require.Equal(te, 2, client.calls())
}

func TestResolve_OversizedNodeIsChunked(te *testing.T) {
	client := newCountingClient()
	client.tokenCap = 40 // CountTokens is len(); forces several chunks
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{
		"big.py": strings.Repeat("line of source text\n", 6),
	})

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err)
	r := res["big.py"]
	require.False(te, r.Failed())
	require.True(te, r.Composite)

	parts := strings.Split(r.Explanation, chunkBoundary)
	require.Equal(te, client.calls(), len(parts))
	require.Greater(te, len(parts), 1)
	// Segments carry their position so readers can follow the original order.
	require.Contains(te, client.prompts[0], "segment 1 of")
}

func TestResolve_ChunkCeilingFailsWithTruncatedMarker(te *testing.T) {
	client := newCountingClient()
	client.tokenCap = 40
	o, _ := newOrchestrator(te, client)
	o.MaxChunks = 2
	tr := fileTree(map[string]string{
		"huge.py": strings.Repeat("line of source text\n", 50),
	})

	res, err := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, err)
	require.Equal(te, t.MarkerTruncated, res["huge.py"].Marker)
	require.Zero(te, client.calls(), "no calls once the ceiling is known")
}

// flakyStore errors on reads to exercise the degrade-to-miss path.
type flakyStore struct {
	*memory.Store
}

func (s *flakyStore) Get(context.Context, t.Fingerprint) (t.CacheEntry, bool, error) {
	return t.CacheEntry{}, false, errors.New("store offline")
}

func TestResolve_StoreReadErrorDegradesToMiss(te *testing.T) {
	client := newCountingClient()
	inner, err := memory.New(0)
	require.NoError(te, err)
	o := &Orchestrator{
		Client:    client,
		Store:     &flakyStore{Store: inner},
		BaseDelay: time.Millisecond,
		Logf:      te.Logf,
	}
	tr := fileTree(map[string]string{"a.py": "x = 1\n"})

	res, rerr := o.Resolve(context.Background(), tr, nil)
	require.NoError(te, rerr)
	require.False(te, res["a.py"].Failed())
	require.Equal(te, 1, client.calls())
}

func TestResolve_CanceledContextAborts(te *testing.T) {
	client := newCountingClient()
	o, _ := newOrchestrator(te, client)
	tr := fileTree(map[string]string{"a.py": "x = 1\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Resolve(ctx, tr, nil)
	require.Error(te, err)
}
