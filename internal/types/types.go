package types

import "time"

// Node kinds --------------------------------------------------------------------

type NodeKind string

const (
	KindRoot      NodeKind = "root"
	KindDirectory NodeKind = "directory"
	KindFile      NodeKind = "file"
	KindType      NodeKind = "type"
	KindFunction  NodeKind = "function"
	// KindBlob marks a file that could not be parsed structurally
	// (unsupported language, binary content, or a parse failure).
	KindBlob NodeKind = "blob"
)

// NodeID identifies a structural node within one build. IDs are derived from
// the repo-relative path plus an insertion ordinal, never from content, so a
// rename changes the ID while an edit does not.
type NodeID string

// Span locates a node in its source file (1-indexed, inclusive).
type Span struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// StructuralNode is one unit of code in the unified cross-language tree.
type StructuralNode struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Language string   `json:"language,omitempty"`
	Span     Span     `json:"span"`

	// Raw is the source text extracted for the span. It may be truncated;
	// Truncated records that explicitly, the text is never silently dropped.
	Raw       string `json:"raw,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// NameOffset and NameLen locate the declaration's name token within Raw.
	// NameLen is zero when Raw carries no name token (files, blobs, dirs).
	NameOffset int `json:"name_offset,omitempty"`
	NameLen    int `json:"name_len,omitempty"`

	// ParseNote is set when a file degraded to a blob because its adapter
	// failed; empty otherwise.
	ParseNote string `json:"parse_note,omitempty"`

	// Imports holds module/package references extracted from a file node.
	Imports []string `json:"imports,omitempty"`

	Parent   NodeID   `json:"parent,omitempty"` // empty for root
	Children []NodeID `json:"children,omitempty"`
}

// Tree is the structural model for one build: a root plus an ID-addressed
// node table. Child order is source-appearance order.
type Tree struct {
	RootID NodeID                     `json:"root_id"`
	Nodes  map[NodeID]*StructuralNode `json:"nodes"`
}

// Node returns the node for id, or nil.
func (tr *Tree) Node(id NodeID) *StructuralNode {
	if tr == nil {
		return nil
	}
	return tr.Nodes[id]
}

// Walk visits nodes depth-first in child order starting at the root.
// Traversal order is deterministic for a deterministic tree.
func (tr *Tree) Walk(fn func(*StructuralNode)) {
	if tr == nil {
		return
	}
	var rec func(id NodeID)
	rec = func(id NodeID) {
		n := tr.Nodes[id]
		if n == nil {
			return
		}
		fn(n)
		for _, c := range n.Children {
			rec(c)
		}
	}
	rec(tr.RootID)
}

// Fingerprints & cache -----------------------------------------------------------

// Fingerprint is a hex-encoded digest over a node's kind, text, and its
// children's fingerprints, computed bottom-up. Equal fingerprints mean a
// cached explanation is valid without regeneration.
type Fingerprint string

// CacheEntry maps a fingerprint to a generated explanation. Entries are
// immutable once written; a changed fingerprint is a new entry.
type CacheEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Explanation string      `json:"explanation"`
	Model       string      `json:"model"`
	CreatedAt   time.Time   `json:"created_at"`
	// Composite marks an explanation assembled from independently generated
	// chunks of an oversized node.
	Composite bool `json:"composite"`
	Truncated bool `json:"truncated"`
}

// Resolutions --------------------------------------------------------------------

// MarkerKind classifies why a node carries no explanation text.
type MarkerKind string

const (
	MarkerUnsupported      MarkerKind = "unsupported-language"
	MarkerParseError       MarkerKind = "parse-error"
	MarkerGenerationFailed MarkerKind = "generation-failed"
	MarkerTruncated        MarkerKind = "truncated"
)

// Resolution is the outcome for one node: either explanation text or an
// error marker, never both.
type Resolution struct {
	Explanation string     `json:"explanation,omitempty"`
	Marker      MarkerKind `json:"marker,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	Model       string     `json:"model,omitempty"`
	FromCache   bool       `json:"from_cache,omitempty"`
	Composite   bool       `json:"composite,omitempty"`
}

// Failed reports whether the resolution is an error marker.
func (r Resolution) Failed() bool { return r.Marker != "" }
