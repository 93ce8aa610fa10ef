// Package model builds the unified structural tree for one repository
// snapshot: repository root, directories, files, and the type/function
// fragments reported by the language adapters.
package model

import (
	"context"
	"path"
	"sort"
	"strconv"

	"repopilot/internal/lang"
	"repopilot/internal/scan"
	t "repopilot/internal/types"
)

// Builder turns a snapshot's file list into a structural tree.
type Builder struct {
	Registry *lang.Registry
	// MaxNodeBytes caps the raw text stored per node; <=0 means 256 KiB.
	// Oversized nodes keep a truncated prefix with an explicit flag.
	MaxNodeBytes int
}

const defaultMaxNodeBytes = 256 << 10

// Build constructs the tree. Rebuilding from identical (path, content) input
// yields identical identifiers and shape; node IDs are path+ordinal, never
// content-derived.
func (b *Builder) Build(ctx context.Context, files []scan.SourceFile) (*t.Tree, error) {
	maxBytes := b.MaxNodeBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxNodeBytes
	}

	sorted := append([]scan.SourceFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tr := &t.Tree{
		RootID: t.NodeID("."),
		Nodes:  map[t.NodeID]*t.StructuralNode{},
	}
	tr.Nodes[tr.RootID] = &t.StructuralNode{ID: tr.RootID, Kind: t.KindRoot, Name: "."}

	for _, f := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dirID := b.ensureDir(tr, path.Dir(f.Path))
		b.addFile(ctx, tr, dirID, f, maxBytes)
	}
	return tr, nil
}

// ensureDir creates directory nodes for every path segment, returning the ID
// of the innermost one.
func (b *Builder) ensureDir(tr *t.Tree, dir string) t.NodeID {
	if dir == "." || dir == "" {
		return tr.RootID
	}
	id := t.NodeID(dir)
	if tr.Nodes[id] != nil {
		return id
	}
	parent := b.ensureDir(tr, path.Dir(dir))
	n := &t.StructuralNode{
		ID:     id,
		Kind:   t.KindDirectory,
		Name:   path.Base(dir),
		Span:   t.Span{Path: dir},
		Parent: parent,
	}
	tr.Nodes[id] = n
	link(tr, parent, id)
	return id
}

func (b *Builder) addFile(ctx context.Context, tr *t.Tree, dirID t.NodeID, f scan.SourceFile, maxBytes int) {
	id := t.NodeID(f.Path)
	node := &t.StructuralNode{
		ID:     id,
		Kind:   t.KindFile,
		Name:   path.Base(f.Path),
		Span:   t.Span{Path: f.Path, StartLine: 1, EndLine: countLines(f.Content)},
		Parent: dirID,
	}
	node.Raw, node.Truncated = clip(string(f.Content), maxBytes)
	node.Truncated = node.Truncated || f.Truncated
	tr.Nodes[id] = node
	link(tr, dirID, id)

	if f.Binary {
		node.Kind = t.KindBlob
		node.Raw = ""
		return
	}

	tag := b.Registry.Detect(f.Path, f.Content)
	if tag == lang.TagUnsupported {
		node.Kind = t.KindBlob
		return
	}
	node.Language = string(tag)

	res, err := b.Registry.Parse(ctx, tag, f.Content)
	if err != nil {
		// A failing file degrades to a whole-file blob with a note; the
		// rest of the repository build continues.
		node.Kind = t.KindBlob
		node.ParseNote = err.Error()
		return
	}
	node.Imports = dedupe(res.Imports)
	if tag == lang.TagMarkdown {
		node.Raw = lang.StripImages(node.Raw)
	}
	b.splice(tr, node, res.Fragments, maxBytes)
}

// splice attaches fragments under the file node: types as file children,
// methods as children of their container type, free functions as file
// children. Ordinals follow fragment document order.
func (b *Builder) splice(tr *t.Tree, file *t.StructuralNode, frags []lang.Fragment, maxBytes int) {
	typeByName := map[string]t.NodeID{}
	for i, fr := range frags {
		id := t.NodeID(string(file.ID) + "#" + strconv.Itoa(i))
		parent := file.ID
		if fr.Container != "" {
			if tid, ok := typeByName[fr.Container]; ok {
				parent = tid
			}
		}
		n := &t.StructuralNode{
			ID:       id,
			Kind:     fr.Kind,
			Name:     fr.Name,
			Language: file.Language,
			Span:     t.Span{Path: file.Span.Path, StartLine: fr.StartLine, EndLine: fr.EndLine},
			Parent:   parent,
		}
		n.Raw, n.Truncated = clip(fr.Raw, maxBytes)
		if fr.NameLen > 0 && fr.NameOffset+fr.NameLen <= len(n.Raw) {
			n.NameOffset, n.NameLen = fr.NameOffset, fr.NameLen
		}
		tr.Nodes[id] = n
		link(tr, parent, id)
		if fr.Kind == t.KindType {
			if _, taken := typeByName[fr.Name]; !taken {
				typeByName[fr.Name] = id
			}
		}
	}
}

func link(tr *t.Tree, parent, child t.NodeID) {
	p := tr.Nodes[parent]
	p.Children = append(p.Children, child)
}

func clip(s string, maxBytes int) (string, bool) {
	if len(s) <= maxBytes {
		return s, false
	}
	return s[:maxBytes], true
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := 1
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	if b[len(b)-1] == '\n' {
		n--
	}
	return n
}

func dedupe(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := xs[:0]
	for _, x := range xs {
		if x == "" || seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	return out
}
