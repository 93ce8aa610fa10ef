// Package assemble merges cached and freshly generated explanations back
// onto the structural tree. The output is isomorphic in shape to the input
// tree, every node carries exactly one of explanation text or an error
// marker, and partial failures never block unrelated subtrees.
package assemble

import (
	"sort"
	"strings"
	"time"

	t "repopilot/internal/types"
)

// Assemble produces the final explanation tree for one build. Roll-up
// summaries for directories and the root are computed after all children
// are resolved, by concatenating the children's first-line summaries.
func Assemble(tr *t.Tree, res map[t.NodeID]t.Resolution) *t.ExplanationTree {
	stats := t.Stats{Languages: map[string]int{}}
	deps := map[string]int{}

	root := build(tr, tr.RootID, res, &stats, deps)
	stats.TopDependencies = topDeps(deps, 10)

	return &t.ExplanationTree{
		Root:        root,
		Stats:       stats,
		GeneratedAt: time.Now().UTC(),
	}
}

func build(tr *t.Tree, id t.NodeID, res map[t.NodeID]t.Resolution, stats *t.Stats, deps map[string]int) *t.ExplainedNode {
	n := tr.Node(id)
	out := &t.ExplainedNode{
		ID:       n.ID,
		Kind:     n.Kind,
		Name:     n.Name,
		Language: n.Language,
		Span:     n.Span,
	}

	for _, c := range n.Children {
		out.Children = append(out.Children, build(tr, c, res, stats, deps))
	}

	switch n.Kind {
	case t.KindFile, t.KindBlob:
		stats.TotalFiles++
		stats.TotalLines += n.Span.EndLine
		if n.Language != "" {
			stats.Languages[n.Language]++
		}
		for _, imp := range n.Imports {
			deps[rootModule(imp)]++
		}
	}

	if r, ok := res[n.ID]; ok {
		out.Explanation = r.Explanation
		out.Marker = r.Marker
		out.Detail = r.Detail
		if r.FromCache {
			stats.CacheHits++
		} else if !r.Failed() {
			stats.Generated++
		}
		if r.Failed() {
			stats.Failed++
		}
		return out
	}

	// No direct resolution (directories, the root): synthesize a roll-up so
	// no tree node is ever explanation-less.
	out.Explanation = rollUp(out)
	out.RollUp = true
	return out
}

// rollUp concatenates immediate children's first-line summaries.
func rollUp(n *t.ExplainedNode) string {
	var b strings.Builder
	label := "Directory"
	if n.Kind == t.KindRoot {
		label = "Repository"
	}
	b.WriteString(label)
	if n.Name != "" && n.Name != "." {
		b.WriteString(" " + n.Name)
	}
	b.WriteString(" containing " + itoa(len(n.Children)) + " entries.")
	for _, c := range n.Children {
		line := c.FirstLine()
		if line == "" && c.Marker != "" {
			line = "explanation unavailable: " + string(c.Marker)
		}
		if line == "" {
			continue
		}
		b.WriteString("\n- " + c.Name + ": " + line)
	}
	return b.String()
}

// rootModule reduces an import reference to its leading module segment.
func rootModule(imp string) string {
	imp = strings.Trim(imp, `"'`)
	for _, sep := range []string{"/", "."} {
		if i := strings.Index(imp, sep); i > 0 {
			return imp[:i]
		}
	}
	return imp
}

func topDeps(deps map[string]int, n int) []string {
	type kv struct {
		name  string
		count int
	}
	all := make([]kv, 0, len(deps))
	for name, count := range deps {
		all = append(all, kv{name, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].name < all[j].name
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, len(all))
	for i, kv := range all {
		out[i] = kv.name
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [12]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
