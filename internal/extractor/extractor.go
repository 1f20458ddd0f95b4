package extractor

import (
	"context"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor orchestrates the extraction process using language-specific extractors.
type Extractor struct {
	langExtractor LanguageExtractor
	langName      string
}

// NewExtractor creates a new extractor for a given language.
func NewExtractor(lang string) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "go":
		langExt = &GoExtractor{}
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return &Extractor{langExtractor: langExt, langName: lang}, nil
}

// ExtractFromFile parses a single source file and extracts all top-level
// symbols. A syntax error anywhere in the file yields a ParseError; a file
// never produces a partial symbol list.
func (e *Extractor) ExtractFromFile(filepath string) ([]*CodeSymbol, error) {
	sourceCode, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filepath, err)
	}
	return e.Extract(filepath, sourceCode)
}

// Extract parses in-memory source, used both for on-disk indexing and for
// re-checking generated file contents before they are written anywhere.
func (e *Extractor) Extract(filepath string, sourceCode []byte) ([]*CodeSymbol, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, sourceCode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filepath, err)
	}

	if errNode := findErrorNode(tree.RootNode()); errNode != nil {
		return nil, &ParseError{
			Path: filepath,
			Line: int(errNode.StartPoint().Row + 1),
			Msg:  "invalid syntax",
		}
	}

	packageName := e.detectPackageName(tree.RootNode(), sourceCode)
	if e.langName == "go" && packageName == "" {
		return nil, &ParseError{Path: filepath, Line: 1, Msg: "missing package clause"}
	}

	var symbols []*CodeSymbol

	// Byte ranges of the captured nodes back the disjointness check: line
	// spans would falsely overlap for sibling declarations sharing a line,
	// e.g. a single-line grouped type block.
	type byteSpan struct {
		name       string
		line       int
		start, end uint32
	}
	var spans []byteSpan

	query, err := sitter.NewQuery([]byte(e.langExtractor.GetQuery()), e.langExtractor.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}

	qc := sitter.NewQueryCursor()
	qc.Exec(query, tree.RootNode())

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			captureName := query.CaptureNameForId(c.Index)
			sym := e.langExtractor.ExtractSymbol(captureName, c.Node, sourceCode, filepath, packageName)
			if sym != nil {
				symbols = append(symbols, sym)
				spans = append(spans, byteSpan{
					name:  sym.Name,
					line:  sym.Span.StartLine,
					start: c.Node.StartByte(),
					end:   c.Node.EndByte(),
				})
			}
		}
	}

	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Span.StartLine != symbols[j].Span.StartLine {
			return symbols[i].Span.StartLine < symbols[j].Span.StartLine
		}
		return symbols[i].Name < symbols[j].Name
	})

	// Span invariant: no two symbols in one file overlap.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.start < prev.end {
			return nil, &ParseError{
				Path: filepath,
				Line: cur.line,
				Msg:  fmt.Sprintf("symbols %s and %s have overlapping spans", prev.name, cur.name),
			}
		}
	}

	return symbols, nil
}

func (e *Extractor) detectPackageName(root *sitter.Node, sourceCode []byte) string {
	// Simple package detection for Go. Can be moved to LanguageExtractor if needed.
	if e.langName == "go" {
		pkgQuery, _ := sitter.NewQuery([]byte(`(package_clause (package_identifier) @pkg)`), e.langExtractor.GetLanguage())
		pqc := sitter.NewQueryCursor()
		pqc.Exec(pkgQuery, root)
		if m, ok := pqc.NextMatch(); ok {
			return m.Captures[0].Node.Content(sourceCode)
		}
	}
	return ""
}

func findErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return node
}
