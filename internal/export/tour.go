package export

import (
	"fmt"
	"strings"

	t "repopilot/internal/types"
)

// Tour renders the guided repository tour: overview stats, the explained
// structure, and the dependency list.
func Tour(tree *t.ExplanationTree) string {
	var b strings.Builder
	b.WriteString("# Repository Tour\n\n")

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "This repository contains **%d files** with **%d lines of code**.\n\n",
		tree.Stats.TotalFiles, tree.Stats.TotalLines)
	fmt.Fprintf(&b, "- Explanations generated: %d\n", tree.Stats.Generated)
	fmt.Fprintf(&b, "- Served from cache: %d\n", tree.Stats.CacheHits)
	if tree.Stats.Failed > 0 {
		fmt.Fprintf(&b, "- Unavailable: %d\n", tree.Stats.Failed)
	}
	b.WriteString("\n## Structure\n\n")
	writeNode(&b, tree.Root, 0)

	if len(tree.Stats.TopDependencies) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, dep := range tree.Stats.TopDependencies {
			b.WriteString("- `" + dep + "`\n")
		}
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *t.ExplainedNode, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.Kind == t.KindRoot:
		// children only; the root roll-up already went into the overview
	case n.Marker != "":
		fmt.Fprintf(b, "%s- **%s** — explanation unavailable: %s\n", indent, n.Name, n.Marker)
	case n.Kind == t.KindDirectory:
		fmt.Fprintf(b, "%s- **%s/**\n", indent, n.Name)
	default:
		fmt.Fprintf(b, "%s- **%s** — %s\n", indent, n.Name, n.FirstLine())
	}
	childDepth := depth
	if n.Kind != t.KindRoot {
		childDepth++
	}
	for _, c := range n.Children {
		writeNode(b, c, childDepth)
	}
}
