package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// nodeRule maps a tree-sitter node kind to the chunk Kind it produces, plus
// the field tree-sitter exposes the symbol name under for that node type.
type nodeRule struct {
	kind      Kind
	nameField string // usually "name"; empty means "no symbol, use empty string"
}

// languageSpec parametrizes the generic tree-sitter extractor for one
// language: which grammar to load and which node kinds become chunks.
type languageSpec struct {
	language *sitter.Language
	rules    map[string]nodeRule
	// topLevelOnly, when true, only considers nodes whose nearest ancestor
	// chunk boundary is the file root — mirroring the teacher's
	// isTopLevel() checks so nested helper functions inside a method body
	// aren't double-counted as top-level chunks.
	topLevelOnly bool
}

// treeSitterExtractor is a generic Extractor grounded on the teacher's
// treeSitterParser: one parser instance per Parse call, walked with the
// same recursive visitor idiom, but emitting flat Drafts instead of the
// teacher's three-tier CodeExtraction.
type treeSitterExtractor struct {
	language string
	spec     languageSpec
}

func newTreeSitterExtractor(language string, spec languageSpec) *treeSitterExtractor {
	return &treeSitterExtractor{language: language, spec: spec}
}

func (e *treeSitterExtractor) Parse(source []byte) ([]Draft, []SoftError, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.spec.language)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, nil, &ParseError{Language: e.language, Message: "tree-sitter returned no tree"}
	}
	defer tree.Close()

	lines := strings.Split(string(source), "\n")

	var drafts []Draft
	var softErrors []SoftError

	walkTree(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Kind() == "ERROR" {
			softErrors = append(softErrors, SoftError{
				StartLine: int(n.StartPosition().Row) + 1,
				EndLine:   int(n.EndPosition().Row) + 1,
				Message:   "tree-sitter ERROR node",
			})
			return true
		}

		rule, ok := e.spec.rules[n.Kind()]
		if !ok {
			return true
		}

		if e.spec.topLevelOnly && !isTopLevelNode(n) {
			return true
		}

		symbol := ""
		if rule.nameField != "" {
			if nameNode := n.ChildByFieldName(rule.nameField); nameNode != nil {
				symbol = extractNodeText(nameNode, source)
			}
		}

		startLine := int(n.StartPosition().Row) + 1
		endLine := int(n.EndPosition().Row) + 1

		drafts = append(drafts, Draft{
			Kind:      rule.kind,
			Symbol:    symbol,
			StartLine: startLine,
			EndLine:   endLine,
			Code:      []byte(extractLines(lines, startLine, endLine)),
		})

		return true
	})

	if len(drafts) == 0 && len(softErrors) > 0 {
		return nil, softErrors, &ParseError{
			Language: e.language,
			Message:  "no chunks recovered from a tree containing error nodes",
		}
	}

	return drafts, softErrors, nil
}

// isTopLevelNode reports whether n's nearest chunk-shaped ancestor is the
// source_file root, so a closure or helper declared inside another chunk's
// body isn't also emitted as its own top-level chunk.
func isTopLevelNode(n *sitter.Node) bool {
	parent := n.Parent()
	for parent != nil {
		switch parent.Kind() {
		case "source_file", "program", "module", "translation_unit":
			return true
		case "function_declaration", "function_definition", "method_declaration",
			"class_declaration", "class_definition", "class_body", "impl_item",
			"trait_item", "interface_declaration", "struct_item":
			return false
		}
		parent = parent.Parent()
	}
	return true
}

// extractNodeText extracts the text content of a tree-sitter node.
func extractNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// extractLines extracts source lines from startLine to endLine (1-indexed,
// inclusive).
func extractLines(lines []string, startLine, endLine int) string {
	if startLine < 1 || endLine < 1 || startLine > len(lines) {
		return ""
	}
	start := startLine - 1
	end := endLine
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], "\n")
}

// walkTree recursively walks a tree-sitter tree, calling visitor for every
// node. Returning false from visitor skips that node's children.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visitor(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visitor)
	}
}
