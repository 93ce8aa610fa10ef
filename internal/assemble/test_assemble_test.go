package assemble

import (
	"testing"

	"github.com/stretchr/testify/require"

	t "repopilot/internal/types"
)

// demoTree: root -> pkg/ -> {a.py, b.py}, plus a top-level blob.
func demoTree() *t.Tree {
	tr := &t.Tree{RootID: ".", Nodes: map[t.NodeID]*t.StructuralNode{}}
	add := func(n *t.StructuralNode) {
		tr.Nodes[n.ID] = n
		p := tr.Nodes[n.Parent]
		p.Children = append(p.Children, n.ID)
	}
	tr.Nodes["."] = &t.StructuralNode{ID: ".", Kind: t.KindRoot, Name: "."}
	add(&t.StructuralNode{ID: "data.bin", Kind: t.KindBlob, Name: "data.bin", Parent: ".",
		Span: t.Span{Path: "data.bin"}})
	add(&t.StructuralNode{ID: "pkg", Kind: t.KindDirectory, Name: "pkg", Parent: ".",
		Span: t.Span{Path: "pkg"}})
	add(&t.StructuralNode{ID: "pkg/a.py", Kind: t.KindFile, Name: "a.py", Language: "python",
		Parent: "pkg", Span: t.Span{Path: "pkg/a.py", StartLine: 1, EndLine: 10},
		Imports: []string{"os", "requests"}})
	add(&t.StructuralNode{ID: "pkg/b.py", Kind: t.KindFile, Name: "b.py", Language: "python",
		Parent: "pkg", Span: t.Span{Path: "pkg/b.py", StartLine: 1, EndLine: 5},
		Imports: []string{"requests"}})
	return tr
}

func demoResolutions() map[t.NodeID]t.Resolution {
	return map[t.NodeID]t.Resolution{
		"data.bin": {Marker: t.MarkerUnsupported, Detail: "no language adapter for this file"},
		"pkg/a.py": {Explanation: "Loads settings.\nReads env vars too.", Model: "fake"},
		"pkg/b.py": {Explanation: "Sends requests.", Model: "fake", FromCache: true},
	}
}

func TestAssemble_ShapeMatchesInput(te *testing.T) {
	tr := demoTree()
	out := Assemble(tr, demoResolutions())

	require.Equal(te, t.KindRoot, out.Root.Kind)
	require.Len(te, out.Root.Children, 2)
	var pkg *t.ExplainedNode
	for _, c := range out.Root.Children {
		if c.Name == "pkg" {
			pkg = c
		}
	}
	require.NotNil(te, pkg)
	require.Len(te, pkg.Children, 2)
	require.Equal(te, tr.Node("pkg").Children[0], pkg.Children[0].ID)
}

func TestAssemble_EveryNodeExplainedOrMarked(te *testing.T) {
	out := Assemble(demoTree(), demoResolutions())

	var visit func(n *t.ExplainedNode)
	visit = func(n *t.ExplainedNode) {
		hasText := n.Explanation != ""
		hasMarker := n.Marker != ""
		require.True(te, hasText || hasMarker, string(n.ID))
		require.False(te, hasText && hasMarker, string(n.ID))
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(out.Root)
}

func TestAssemble_RollUpSummarizesChildren(te *testing.T) {
	out := Assemble(demoTree(), demoResolutions())

	var pkg *t.ExplainedNode
	for _, c := range out.Root.Children {
		if c.Name == "pkg" {
			pkg = c
		}
	}
	require.True(te, pkg.RollUp)
	require.Contains(te, pkg.Explanation, "Directory pkg containing 2 entries.")
	require.Contains(te, pkg.Explanation, "- a.py: Loads settings.")
	require.Contains(te, pkg.Explanation, "- b.py: Sends requests.")
	require.NotContains(te, pkg.Explanation, "Reads env vars", "roll-up uses first lines only")

	require.True(te, out.Root.RollUp)
	require.Contains(te, out.Root.Explanation, "Repository containing 2 entries.")
	require.Contains(te, out.Root.Explanation, "- data.bin: explanation unavailable: unsupported-language")
}

func TestAssemble_Stats(te *testing.T) {
	out := Assemble(demoTree(), demoResolutions())
	s := out.Stats

	require.Equal(te, 3, s.TotalFiles)
	require.Equal(te, 15, s.TotalLines)
	require.Equal(te, 2, s.Languages["python"])
	require.Equal(te, 1, s.Generated)
	require.Equal(te, 1, s.CacheHits)
	require.Equal(te, 1, s.Failed)
	// requests appears twice, os once; counts break ties before names.
	require.Equal(te, []string{"requests", "os"}, s.TopDependencies)
}

func TestRootModule(te *testing.T) {
	require.Equal(te, "pathlib", rootModule("pathlib.Path"))
	require.Equal(te, "github", rootModule("github.com/acme/tool"))
	require.Equal(te, "os", rootModule("os"))
}
