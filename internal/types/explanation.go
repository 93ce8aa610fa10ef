package types

import "time"

// ExplainedNode pairs one structural node with its resolved explanation or
// error marker. The explanation tree is isomorphic in shape to the
// structural tree it was assembled from.
type ExplainedNode struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Language string   `json:"language,omitempty"`
	Span     Span     `json:"span"`

	Explanation string     `json:"explanation,omitempty"`
	Marker      MarkerKind `json:"marker,omitempty"`
	Detail      string     `json:"detail,omitempty"`

	// RollUp marks an explanation synthesized from immediate children
	// (directories and the root have no generated explanation of their own).
	RollUp bool `json:"roll_up,omitempty"`

	Children []*ExplainedNode `json:"children,omitempty"`
}

// FirstLine returns the first line of the node's explanation, for roll-ups
// and compact listings.
func (n *ExplainedNode) FirstLine() string {
	if n == nil {
		return ""
	}
	s := n.Explanation
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// Stats summarizes one build for output consumers.
type Stats struct {
	TotalFiles      int            `json:"total_files"`
	TotalLines      int            `json:"total_lines"`
	Languages       map[string]int `json:"languages,omitempty"`
	TopDependencies []string       `json:"top_dependencies,omitempty"`
	Generated       int            `json:"generated"`
	CacheHits       int            `json:"cache_hits"`
	Failed          int            `json:"failed"`
}

// ExplanationTree is the final artifact of one build. It is immutable once
// returned; output consumers read it, nothing mutates back into the core.
type ExplanationTree struct {
	Root        *ExplainedNode `json:"root"`
	Stats       Stats          `json:"stats"`
	GeneratedAt time.Time      `json:"generated_at"`
}
