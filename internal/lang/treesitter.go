package lang

import (
	"context"
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	t "repopilot/internal/types"
)

var errSyntax = errors.New("lang: source has syntax errors")

// grammar describes one tree-sitter language: which node types delimit
// functions, types, methods inside types, and imports, plus how the adapter
// recognizes the language without an extension.
type grammar struct {
	language   *sitter.Language
	extensions []string
	shebangs   []string

	functionTypes []string
	typeTypes     []string
	methodTypes   []string
	importTypes   []string
}

var grammars = map[Tag]grammar{
	TagGo: {
		language:      golang.GetLanguage(),
		extensions:    []string{".go"},
		functionTypes: []string{"function_declaration", "method_declaration"},
		typeTypes:     []string{"type_declaration"},
		importTypes:   []string{"import_spec"},
	},
	TagPython: {
		language:      python.GetLanguage(),
		extensions:    []string{".py"},
		shebangs:      []string{"python"},
		functionTypes: []string{"function_definition"},
		typeTypes:     []string{"class_definition"},
		methodTypes:   []string{"function_definition"},
		importTypes:   []string{"import_statement", "import_from_statement"},
	},
	TagJavaScript: {
		language:      javascript.GetLanguage(),
		extensions:    []string{".js", ".jsx", ".mjs", ".cjs"},
		shebangs:      []string{"node"},
		functionTypes: []string{"function_declaration", "generator_function_declaration"},
		typeTypes:     []string{"class_declaration"},
		methodTypes:   []string{"method_definition"},
		importTypes:   []string{"import_statement"},
	},
	TagTypeScript: {
		language:      typescript.GetLanguage(),
		extensions:    []string{".ts", ".mts", ".cts"},
		functionTypes: []string{"function_declaration", "generator_function_declaration"},
		typeTypes:     []string{"class_declaration", "interface_declaration"},
		methodTypes:   []string{"method_definition"},
		importTypes:   []string{"import_statement"},
	},
	TagTSX: {
		language:      tsx.GetLanguage(),
		extensions:    []string{".tsx"},
		functionTypes: []string{"function_declaration", "generator_function_declaration"},
		typeTypes:     []string{"class_declaration", "interface_declaration"},
		methodTypes:   []string{"method_definition"},
		importTypes:   []string{"import_statement"},
	},
	TagRust: {
		language:      rust.GetLanguage(),
		extensions:    []string{".rs"},
		functionTypes: []string{"function_item"},
		typeTypes:     []string{"struct_item", "enum_item", "trait_item", "impl_item"},
		methodTypes:   []string{"function_item"},
		importTypes:   []string{"use_declaration"},
	},
	TagJava: {
		language:   java.GetLanguage(),
		extensions: []string{".java"},
		typeTypes:  []string{"class_declaration", "interface_declaration", "enum_declaration"},
		methodTypes: []string{
			"method_declaration", "constructor_declaration",
		},
		importTypes: []string{"import_declaration"},
	},
}

// treeSitterAdapter extracts type/function boundaries with one tree-sitter
// grammar. One adapter instance serves one language.
type treeSitterAdapter struct {
	g grammar
}

func newTreeSitterAdapter(g grammar) *treeSitterAdapter {
	return &treeSitterAdapter{g: g}
}

func (a *treeSitterAdapter) Extensions() []string { return a.g.extensions }

func (a *treeSitterAdapter) Sniff(content []byte) bool {
	line := shebangLine(content)
	if line == "" {
		return false
	}
	for _, marker := range a.g.shebangs {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func (a *treeSitterAdapter) Parse(ctx context.Context, content []byte) (Result, error) {
	// Parsers are not safe for concurrent use; one per call.
	parser := sitter.NewParser()
	parser.SetLanguage(a.g.language)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return Result{}, err
	}
	root := tree.RootNode()

	var res Result
	a.collectTypes(root, content, &res)
	a.collectFunctions(root, content, &res)
	a.collectImports(root, content, &res)

	if len(res.Fragments) == 0 && root.HasError() {
		return Result{}, errSyntax
	}
	sortFragments(res.Fragments)
	return res, nil
}

func (a *treeSitterAdapter) collectTypes(root *sitter.Node, src []byte, res *Result) {
	for _, n := range findNodes(root, a.g.typeTypes) {
		nn := nameNodeOf(n)
		if nn == nil {
			continue
		}
		name := string(src[nn.StartByte():nn.EndByte()])
		res.Fragments = append(res.Fragments, fragment(t.KindType, "", n, nn, src))
		for _, m := range findNodes(n, a.g.methodTypes) {
			if m == n {
				continue
			}
			mn := nameNodeOf(m)
			if mn == nil {
				continue
			}
			res.Fragments = append(res.Fragments, fragment(t.KindFunction, name, m, mn, src))
		}
	}
}

func (a *treeSitterAdapter) collectFunctions(root *sitter.Node, src []byte, res *Result) {
	seen := map[string]bool{}
	for _, f := range res.Fragments {
		seen[spanKey(f.StartLine, f.EndLine)] = true
	}
	for _, n := range findNodes(root, a.g.functionTypes) {
		nn := nameNodeOf(n)
		if nn == nil {
			continue
		}
		start, end := lines(n)
		if seen[spanKey(start, end)] {
			continue // already collected as a method
		}
		if enclosedByAny(n, a.g.typeTypes) {
			continue
		}
		res.Fragments = append(res.Fragments, fragment(t.KindFunction, "", n, nn, src))
	}
}

func (a *treeSitterAdapter) collectImports(root *sitter.Node, src []byte, res *Result) {
	for _, n := range findNodes(root, a.g.importTypes) {
		imp := cleanImport(string(src[n.StartByte():n.EndByte()]))
		if imp != "" {
			res.Imports = append(res.Imports, imp)
		}
	}
}

func fragment(kind t.NodeKind, container string, n, nn *sitter.Node, src []byte) Fragment {
	start, end := lines(n)
	return Fragment{
		Kind:       kind,
		Name:       string(src[nn.StartByte():nn.EndByte()]),
		Container:  container,
		StartLine:  start,
		EndLine:    end,
		Raw:        string(src[n.StartByte():n.EndByte()]),
		NameOffset: int(nn.StartByte() - n.StartByte()),
		NameLen:    int(nn.EndByte() - nn.StartByte()),
	}
}

func lines(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

func spanKey(start, end int) string {
	return itoa(start) + ":" + itoa(end)
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

// nameNodeOf returns a declaration's identifier node: the "name" field when
// the grammar exposes one, otherwise the first identifier-like child.
func nameNodeOf(n *sitter.Node) *sitter.Node {
	if nn := n.ChildByFieldName("name"); nn != nil {
		return nn
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "identifier", "type_identifier", "field_identifier":
			return c
		case "type_spec": // Go: type_declaration -> type_spec -> name
			if nn := c.ChildByFieldName("name"); nn != nil {
				return nn
			}
		}
	}
	return nil
}

// enclosedByAny reports whether any ancestor of n has one of the given types.
func enclosedByAny(n *sitter.Node, types []string) bool {
	if len(types) == 0 {
		return false
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		for _, tt := range types {
			if p.Type() == tt {
				return true
			}
		}
	}
	return false
}

// findNodes collects all nodes of the given types in document order.
func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}
	var out []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		for _, tt := range types {
			if n.Type() == tt {
				out = append(out, n)
				break
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

// cleanImport reduces an import statement's text to a module reference.
func cleanImport(s string) string {
	s = strings.TrimSpace(s)
	for _, kw := range []string{"import", "from", "use", "static"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, kw+" "))
	}
	s = strings.TrimSuffix(s, ";")
	if i := strings.IndexAny(s, " \t\n"); i > 0 {
		s = s[:i]
	}
	s = strings.Trim(s, `"'`)
	return s
}

func sortFragments(fs []Fragment) {
	// Insertion sort keeps document order stable for equal start lines.
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && less(fs[j], fs[j-1]); j-- {
			fs[j], fs[j-1] = fs[j-1], fs[j]
		}
	}
}

func less(a, b Fragment) bool {
	if a.StartLine != b.StartLine {
		return a.StartLine < b.StartLine
	}
	return a.EndLine > b.EndLine // outer fragment first
}
