package index

import (
	"sort"
	"strings"

	"reqsync/internal/design"
	"reqsync/internal/extractor"
)

// Snapshot is the immutable result of one indexing pass: the design tree,
// the symbol table, and the resolved call/reference graph. Identical inputs
// produce a structurally identical snapshot.
type Snapshot struct {
	CodeRoot string
	Design   *design.Document
	Symbols  []*extractor.CodeSymbol

	byID    map[string]*extractor.CodeSymbol
	byName  map[string][]string
	calls   map[string][]string
	callers map[string][]string
}

func newSnapshot(codeRoot string, doc *design.Document, symbols []*extractor.CodeSymbol) *Snapshot {
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].File != symbols[j].File {
			return symbols[i].File < symbols[j].File
		}
		if symbols[i].Span.StartLine != symbols[j].Span.StartLine {
			return symbols[i].Span.StartLine < symbols[j].Span.StartLine
		}
		return symbols[i].Name < symbols[j].Name
	})

	s := &Snapshot{
		CodeRoot: codeRoot,
		Design:   doc,
		Symbols:  symbols,
		byID:     make(map[string]*extractor.CodeSymbol, len(symbols)),
		byName:   make(map[string][]string),
		calls:    make(map[string][]string),
		callers:  make(map[string][]string),
	}

	for _, sym := range symbols {
		s.byID[sym.ID] = sym
		s.addName(sym.Name, sym.ID)
		s.addName(sym.QualifiedName, sym.ID)
		if sym.Receiver != "" {
			s.addName(sym.Receiver+"."+sym.Name, sym.ID)
		}
	}
	s.resolveReferences()
	return s
}

func (s *Snapshot) addName(name, id string) {
	key := strings.ToLower(name)
	for _, existing := range s.byName[key] {
		if existing == id {
			return
		}
	}
	s.byName[key] = append(s.byName[key], id)
}

// resolveReferences turns per-symbol call and type reference names into
// ID-keyed adjacency. A name with several candidates in the same package
// resolves to those; otherwise to every candidate, sorted for determinism.
func (s *Snapshot) resolveReferences() {
	for _, sym := range s.Symbols {
		targets := map[string]bool{}
		for _, name := range sym.Calls {
			for _, id := range s.resolveName(name, sym.Package) {
				if id != sym.ID {
					targets[id] = true
				}
			}
		}
		for _, name := range sym.TypeRefs {
			for _, id := range s.resolveName(name, sym.Package) {
				if id != sym.ID {
					targets[id] = true
				}
			}
		}
		if len(targets) == 0 {
			continue
		}
		ids := make([]string, 0, len(targets))
		for id := range targets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		s.calls[sym.ID] = ids
		for _, id := range ids {
			s.callers[id] = append(s.callers[id], sym.ID)
		}
	}
	for id := range s.callers {
		sort.Strings(s.callers[id])
	}
}

func (s *Snapshot) resolveName(name, pkg string) []string {
	candidates := s.byName[strings.ToLower(name)]
	if len(candidates) <= 1 {
		return candidates
	}
	var samePkg []string
	for _, id := range candidates {
		if sym, ok := s.byID[id]; ok && sym.Package == pkg {
			samePkg = append(samePkg, id)
		}
	}
	if len(samePkg) > 0 {
		return samePkg
	}
	return candidates
}

// Symbol looks up a symbol by ID.
func (s *Snapshot) Symbol(id string) (*extractor.CodeSymbol, bool) {
	sym, ok := s.byID[id]
	return sym, ok
}

// SymbolsNamed returns symbols matching a name exactly, case-insensitively.
// Plain names, qualified names, and Receiver.Method forms all match.
func (s *Snapshot) SymbolsNamed(name string) []*extractor.CodeSymbol {
	ids := s.byName[strings.ToLower(strings.TrimSpace(name))]
	out := make([]*extractor.CodeSymbol, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

// NodesNamed returns design sections whose title matches exactly,
// case-insensitively.
func (s *Snapshot) NodesNamed(title string) []*design.Node {
	if s.Design == nil {
		return nil
	}
	want := strings.ToLower(strings.TrimSpace(title))
	var out []*design.Node
	for _, n := range s.Design.Nodes() {
		if strings.ToLower(n.Title) == want {
			out = append(out, n)
		}
	}
	return out
}

// Calls returns the symbol IDs a symbol references, sorted.
func (s *Snapshot) Calls(id string) []string {
	return s.calls[id]
}

// Callers returns the symbol IDs referencing a symbol, sorted.
func (s *Snapshot) Callers(id string) []string {
	return s.callers[id]
}

// Node is a convenience passthrough to the design document.
func (s *Snapshot) Node(id string) (*design.Node, bool) {
	if s.Design == nil {
		return nil, false
	}
	return s.Design.Node(id)
}
