package lang

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	t "repopilot/internal/types"
)

// Tag identifies a supported language.
type Tag string

const (
	TagGo         Tag = "go"
	TagPython     Tag = "python"
	TagJavaScript Tag = "javascript"
	TagTypeScript Tag = "typescript"
	TagTSX        Tag = "tsx"
	TagRust       Tag = "rust"
	TagJava       Tag = "java"
	TagMarkdown   Tag = "markdown"
	TagText       Tag = "text"
	// TagUnsupported means no adapter claims the file; the builder degrades
	// it to a blob node instead of failing.
	TagUnsupported Tag = "unsupported"
)

// Fragment is one structural unit (type or function boundary) reported by an
// adapter, with its source span and extracted text.
type Fragment struct {
	Kind      t.NodeKind // KindType or KindFunction
	Name      string
	Container string // enclosing type name for methods; empty at top level
	StartLine int    // 1-indexed, inclusive
	EndLine   int
	Raw       string
	// NameOffset and NameLen locate Name within Raw, so digesting can treat
	// the name token separately from the declaration body.
	NameOffset int
	NameLen    int
}

// Result is the output of one file parse.
type Result struct {
	Fragments []Fragment
	Imports   []string
}

// Adapter is the per-language capability set. Adapters are registered with
// the registry and queried by tag; adding a language never touches existing
// adapters or the model builder.
type Adapter interface {
	// Extensions lists the lowercase file extensions the adapter claims,
	// including the leading dot.
	Extensions() []string
	// Sniff reports whether content looks like this language when the
	// extension was inconclusive (shebangs, marker tokens).
	Sniff(content []byte) bool
	// Parse extracts type/function boundaries and imports. A returned error
	// means the file could not be parsed structurally; callers degrade the
	// file to a blob, the repository build continues.
	Parse(ctx context.Context, content []byte) (Result, error)
}

// Registry maps language tags to adapters.
type Registry struct {
	adapters map[Tag]Adapter
	byExt    map[string]Tag
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Tag]Adapter{},
		byExt:    map[string]Tag{},
	}
}

// Register adds an adapter under tag. Later registrations win extension
// conflicts, so callers can override defaults.
func (r *Registry) Register(tag Tag, a Adapter) {
	r.adapters[tag] = a
	for _, ext := range a.Extensions() {
		r.byExt[strings.ToLower(ext)] = tag
	}
}

// Detect resolves a language tag for a file: extension first, content
// heuristic fallback. Sniffing runs in sorted tag order so a file two
// adapters claim resolves to the same tag on every run. Ambiguous files
// yield TagUnsupported, never an error.
func (r *Registry) Detect(filename string, content []byte) Tag {
	ext := strings.ToLower(filepath.Ext(filename))
	if tag, ok := r.byExt[ext]; ok {
		return tag
	}
	tags := make([]Tag, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		if r.adapters[tag].Sniff(content) {
			return tag
		}
	}
	return TagUnsupported
}

// Parse dispatches to the adapter registered for tag.
func (r *Registry) Parse(ctx context.Context, tag Tag, content []byte) (Result, error) {
	a, ok := r.adapters[tag]
	if !ok {
		return Result{}, &UnsupportedError{Tag: tag}
	}
	return a.Parse(ctx, content)
}

// Supported reports whether an adapter is registered for tag.
func (r *Registry) Supported(tag Tag) bool {
	_, ok := r.adapters[tag]
	return ok
}

// UnsupportedError reports a parse request for a tag with no adapter.
type UnsupportedError struct{ Tag Tag }

func (e *UnsupportedError) Error() string {
	return "lang: no adapter for " + string(e.Tag)
}

// Default returns a registry with every built-in adapter registered.
func Default() *Registry {
	r := NewRegistry()
	for tag, g := range grammars {
		r.Register(tag, newTreeSitterAdapter(g))
	}
	r.Register(TagMarkdown, markdownAdapter{})
	r.Register(TagText, textAdapter{})
	return r
}

// shebangLine returns the first line when it starts with "#!".
func shebangLine(content []byte) string {
	if len(content) < 2 || content[0] != '#' || content[1] != '!' {
		return ""
	}
	end := len(content)
	for i, b := range content {
		if b == '\n' {
			end = i
			break
		}
	}
	return string(content[:end])
}
