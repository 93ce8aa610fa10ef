// Package fingerprint computes content digests for structural nodes. A node's
// fingerprint covers its kind, its raw text, and its children's fingerprints
// bottom-up, so any change below a node propagates to every ancestor while
// siblings are unaffected.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	t "repopilot/internal/types"
)

// Config selects what the digest covers.
type Config struct {
	// IncludeNames folds declaration names into the digest. The default
	// (false) masks the name token out of the raw text, so identically-bodied
	// declarations that differ only in name share one fingerprint and one
	// cached explanation.
	IncludeNames bool
}

// Index memoizes fingerprints per node identifier within one build, so a node
// reached through multiple traversal paths is digested exactly once.
type Index struct {
	cfg  Config
	memo map[t.NodeID]t.Fingerprint
}

func New(cfg Config) *Index {
	return &Index{cfg: cfg, memo: map[t.NodeID]t.Fingerprint{}}
}

// Node returns the fingerprint for id, computing descendants post-order as
// needed.
func (ix *Index) Node(tr *t.Tree, id t.NodeID) t.Fingerprint {
	if fp, ok := ix.memo[id]; ok {
		return fp
	}
	n := tr.Node(id)
	if n == nil {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(n.Kind))
	h.Write([]byte{0})
	if ix.cfg.IncludeNames {
		h.Write([]byte(n.Name))
		h.Write([]byte{0})
		h.Write([]byte(n.Raw))
	} else {
		h.Write([]byte(maskedRaw(n)))
	}
	h.Write([]byte{0})
	for _, c := range n.Children {
		h.Write([]byte(ix.Node(tr, c)))
		h.Write([]byte{0})
	}
	fp := t.Fingerprint(hex.EncodeToString(h.Sum(nil)))
	ix.memo[id] = fp
	return fp
}

// maskedRaw returns the node's raw text with its declaration name token
// replaced by a placeholder. Nodes without a name token (files, blobs,
// directories) digest their raw text unchanged.
func maskedRaw(n *t.StructuralNode) string {
	if n.NameLen <= 0 || n.NameOffset < 0 || n.NameOffset+n.NameLen > len(n.Raw) {
		return n.Raw
	}
	return n.Raw[:n.NameOffset] + "\x00" + n.Raw[n.NameOffset+n.NameLen:]
}

// All computes every node's fingerprint and returns the full map.
func (ix *Index) All(tr *t.Tree) map[t.NodeID]t.Fingerprint {
	ix.Node(tr, tr.RootID)
	out := make(map[t.NodeID]t.Fingerprint, len(ix.memo))
	for id, fp := range ix.memo {
		out[id] = fp
	}
	return out
}
