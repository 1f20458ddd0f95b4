package extractor

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// GoExtractor implements LanguageExtractor for Go.
type GoExtractor struct{}

func (g *GoExtractor) GetLanguage() *sitter.Language {
	return golang.GetLanguage()
}

func (g *GoExtractor) GetQuery() string {
	return `
		(function_declaration) @func
		(method_declaration) @func
		(type_spec) @type
	`
}

func (g *GoExtractor) ExtractSymbol(captureName string, node *sitter.Node, sourceCode []byte, filepath string, packageName string) *CodeSymbol {
	var sym *CodeSymbol
	switch captureName {
	case "func":
		sym = g.extractFunctionSymbol(node, sourceCode, filepath)
	case "type":
		sym = g.extractTypeSymbol(node, sourceCode, filepath)
	}

	if sym != nil {
		sym.Package = packageName
		sym.QualifiedName = qualifiedName(packageName, sym.Receiver, sym.Name)
		sym.ID = BuildStableSymbolID(sym)
	}
	return sym
}

func (g *GoExtractor) extractFunctionSymbol(node *sitter.Node, sourceCode []byte, filepath string) *CodeSymbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(sourceCode)
	content := node.Content(sourceCode)

	kind := KindFunction
	receiver := ""
	if node.Type() == "method_declaration" {
		kind = KindMethod
		if receiverNode := node.ChildByFieldName("receiver"); receiverNode != nil {
			receiver = receiverTypeName(receiverNode.Content(sourceCode))
		}
	}

	signature := content
	bodyNode := node.ChildByFieldName("body")
	if bodyNode != nil {
		signature = strings.TrimSpace(string(sourceCode[node.StartByte():bodyNode.StartByte()]))
	}

	sym := &CodeSymbol{
		Name:      name,
		Kind:      kind,
		File:      filepath,
		Receiver:  receiver,
		Signature: signature,
		Doc:       g.extractDocComment(node, sourceCode),
		Content:   content,
		Span: Span{
			StartLine: int(node.StartPoint().Row + 1),
			EndLine:   int(node.EndPoint().Row + 1),
		},
	}

	if bodyNode != nil {
		sym.Calls = g.extractCalls(bodyNode, sourceCode)
		sym.TypeRefs = g.extractTypeRefs(bodyNode, sourceCode)
	}
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		sym.TypeRefs = mergeRefs(sym.TypeRefs, g.extractTypeRefs(paramsNode, sourceCode))
	}
	if resultNode := node.ChildByFieldName("result"); resultNode != nil {
		sym.TypeRefs = mergeRefs(sym.TypeRefs, g.extractTypeRefs(resultNode, sourceCode))
	}
	return sym
}

func (g *GoExtractor) extractTypeSymbol(node *sitter.Node, sourceCode []byte, filepath string) *CodeSymbol {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(sourceCode)

	// Span is the spec node itself, not the surrounding declaration, so
	// grouped `type (...)` blocks stay non-overlapping.
	doc := g.extractDocComment(node, sourceCode)
	if doc == "" {
		if parent := node.Parent(); parent != nil && parent.Type() == "type_declaration" && parent.NamedChildCount() == 1 {
			doc = g.extractDocComment(parent, sourceCode)
		}
	}

	sym := &CodeSymbol{
		Name:      name,
		Kind:      KindType,
		File:      filepath,
		Signature: firstLine(node.Content(sourceCode)),
		Doc:       doc,
		Content:   node.Content(sourceCode),
		Span: Span{
			StartLine: int(node.StartPoint().Row + 1),
			EndLine:   int(node.EndPoint().Row + 1),
		},
	}
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		sym.TypeRefs = g.extractTypeRefs(typeNode, sourceCode)
	}
	return sym
}

// goBuiltins are never recorded as outgoing call references.
var goBuiltins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
}

func (g *GoExtractor) extractCalls(body *sitter.Node, sourceCode []byte) []string {
	query, _ := sitter.NewQuery([]byte(`
		(call_expression function: (identifier) @callee)
		(call_expression function: (selector_expression field: (field_identifier) @callee))
	`), golang.GetLanguage())
	qc := sitter.NewQueryCursor()
	qc.Exec(query, body)

	seen := map[string]bool{}
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			name := c.Node.Content(sourceCode)
			if name == "" || goBuiltins[name] {
				continue
			}
			seen[name] = true
		}
	}
	return sortedKeys(seen)
}

func (g *GoExtractor) extractTypeRefs(node *sitter.Node, sourceCode []byte) []string {
	query, _ := sitter.NewQuery([]byte(`(type_identifier) @tyref`), golang.GetLanguage())
	qc := sitter.NewQueryCursor()
	qc.Exec(query, node)

	seen := map[string]bool{}
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			if name := c.Node.Content(sourceCode); name != "" {
				seen[name] = true
			}
		}
	}
	return sortedKeys(seen)
}

func (g *GoExtractor) extractDocComment(node *sitter.Node, sourceCode []byte) string {
	var commentLines []string
	currentNode := node
	for {
		prevSibling := currentNode.PrevSibling()
		if prevSibling == nil || (currentNode.StartPoint().Row-prevSibling.EndPoint().Row > 1) {
			break
		}
		if prevSibling.Type() != "comment" {
			break
		}
		commentLines = append([]string{prevSibling.Content(sourceCode)}, commentLines...)
		currentNode = prevSibling
	}
	return cleanDocComment(strings.Join(commentLines, "\n"))
}

// receiverTypeName reduces a receiver clause like "(u *User)" to "User".
func receiverTypeName(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), "()")
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return ""
	}
	typ := parts[len(parts)-1]
	typ = strings.TrimPrefix(typ, "*")
	if idx := strings.Index(typ, "["); idx != -1 {
		typ = typ[:idx]
	}
	return typ
}

func qualifiedName(pkg, receiver, name string) string {
	if receiver != "" {
		return pkg + "." + receiver + "." + name
	}
	return pkg + "." + name
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mergeRefs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := map[string]bool{}
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	return sortedKeys(seen)
}

func cleanDocComment(rawComment string) string {
	if rawComment == "" {
		return ""
	}
	lines := strings.Split(rawComment, "\n")
	var cleaned []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "//")
		l = strings.TrimPrefix(l, "/*")
		l = strings.TrimSuffix(l, "*/")
		cleaned = append(cleaned, strings.TrimSpace(l))
	}
	return strings.Join(cleaned, "\n")
}
