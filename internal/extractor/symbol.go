package extractor

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind classifies an extracted symbol.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindType     Kind = "type"
)

// Span is an inclusive line range inside one source file.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

func (s Span) Overlaps(o Span) bool {
	return s.StartLine <= o.EndLine && o.StartLine <= s.EndLine
}

// CodeSymbol is the universal container for any extracted code symbol.
type CodeSymbol struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	Kind          Kind     `json:"kind"`
	File          string   `json:"file"`
	Package       string   `json:"package"`
	Span          Span     `json:"span"`
	Receiver      string   `json:"receiver,omitempty"`
	Signature     string   `json:"signature"`
	Doc           string   `json:"doc,omitempty"`
	Content       string   `json:"content"`
	Calls         []string `json:"calls,omitempty"`
	TypeRefs      []string `json:"type_refs,omitempty"`
}

// ParseError reports a malformed source artifact. Indexing aborts on the
// first one; a snapshot is never built from partially parsed input.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Msg)
}

// LanguageExtractor defines the interface that each language parser must implement.
type LanguageExtractor interface {
	GetLanguage() *sitter.Language
	GetQuery() string
	ExtractSymbol(captureName string, node *sitter.Node, sourceCode []byte, filepath string, packageName string) *CodeSymbol
}
