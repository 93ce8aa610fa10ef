package orchestrator

import (
	"fmt"
	"strings"

	t "repopilot/internal/types"
)

// renderPrompt builds the generation payload for one node (or one chunk of
// an oversized node). Identity lives in the fingerprint; the prompt only
// needs enough context for useful prose, so nodes sharing a fingerprint
// share the exemplar's rendered prompt and its result.
func renderPrompt(n *t.StructuralNode, code string, chunk, totalChunks int) string {
	var b strings.Builder
	b.WriteString("You are a senior software engineer writing documentation for a code reading tool.\n")
	switch n.Kind {
	case t.KindFile:
		fmt.Fprintf(&b, "Explain the purpose and contents of the file %q", n.Span.Path)
	case t.KindType:
		fmt.Fprintf(&b, "Explain the %s type/class %q defined in %q", n.Language, n.Name, n.Span.Path)
	case t.KindFunction:
		fmt.Fprintf(&b, "Explain the %s function %q defined in %q", n.Language, n.Name, n.Span.Path)
	default:
		fmt.Fprintf(&b, "Explain the following source excerpt from %q", n.Span.Path)
	}
	if totalChunks > 1 {
		fmt.Fprintf(&b, " (segment %d of %d; explain this segment on its own)", chunk+1, totalChunks)
	}
	b.WriteString(".\n")
	b.WriteString("Start with a single-sentence summary on the first line, then add short detail paragraphs.\n")
	if n.Truncated {
		b.WriteString("The text was truncated at ingest; note that the tail is missing.\n")
	}
	b.WriteString("\n```")
	b.WriteString(n.Language)
	b.WriteString("\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String()
}
