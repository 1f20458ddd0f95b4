package trace

import (
	"regexp"
	"strings"

	"reqsync/internal/design"
	"reqsync/internal/extractor"
)

var (
	reqTagRe  = regexp.MustCompile(`\[(REQ-[A-Za-z0-9_.\-]+)\]`)
	camelRe   = regexp.MustCompile(`[A-Z]?[a-z0-9]+|[A-Z]+(?:[A-Z][a-z])?`)
	wordSplit = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// Build constructs the traceability graph from a design document and the
// extracted code symbols.
//
// Explicit links (confidence 1.0) come from two sources: a backtick code
// reference in a section that names a symbol, and a requirement tag shared
// between a section and a symbol's doc comment. Keyword overlap produces
// heuristic links, always below 1.0.
func Build(doc *design.Document, symbols []*extractor.CodeSymbol, threshold float64) *Graph {
	g := NewGraph(threshold)
	if doc == nil {
		return g
	}

	type symEntry struct {
		sym      *extractor.CodeSymbol
		keywords map[string]bool
		tags     map[string]bool
	}
	entries := make([]symEntry, 0, len(symbols))
	for _, sym := range symbols {
		entries = append(entries, symEntry{
			sym:      sym,
			keywords: symbolKeywords(sym),
			tags:     docTags(sym.Doc),
		})
	}

	for _, node := range doc.Nodes() {
		refs := make(map[string]bool, len(node.CodeRefs))
		for _, r := range node.CodeRefs {
			refs[strings.ToLower(r)] = true
		}
		tags := make(map[string]bool, len(node.Tags))
		for _, tag := range node.Tags {
			tags[tag] = true
		}
		nodeWords := sectionKeywords(node)

		for _, e := range entries {
			switch {
			case matchesRef(refs, e.sym):
				g.Add(Link{NodeID: node.ID, SymbolID: e.sym.ID, Confidence: 1.0, Source: SourceExplicit})
			case sharesTag(tags, e.tags):
				g.Add(Link{NodeID: node.ID, SymbolID: e.sym.ID, Confidence: 1.0, Source: SourceExplicit})
			default:
				matches := overlap(nodeWords, e.keywords)
				if matches == 0 {
					continue
				}
				conf := CalibrateLinkConfidence(matches, len(e.keywords))
				g.Add(Link{NodeID: node.ID, SymbolID: e.sym.ID, Confidence: conf, Source: SourceHeuristic})
			}
		}
	}
	return g
}

// CalibrateLinkConfidence scores a heuristic keyword match. More of the
// symbol's name covered means higher confidence; the result never reaches
// the explicit 1.0 band.
func CalibrateLinkConfidence(matches, symbolKeywords int) float64 {
	base := 0.45 + 0.12*float64(matches)
	if symbolKeywords > 0 && matches == symbolKeywords {
		base += 0.15
	}
	return clamp(base, 0.1, 0.95)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func matchesRef(refs map[string]bool, sym *extractor.CodeSymbol) bool {
	if len(refs) == 0 {
		return false
	}
	if refs[strings.ToLower(sym.Name)] || refs[strings.ToLower(sym.QualifiedName)] {
		return true
	}
	if sym.Receiver != "" && refs[strings.ToLower(sym.Receiver+"."+sym.Name)] {
		return true
	}
	return false
}

func sharesTag(nodeTags map[string]bool, symTags map[string]bool) bool {
	for tag := range symTags {
		if nodeTags[tag] {
			return true
		}
	}
	return false
}

func docTags(doc string) map[string]bool {
	if doc == "" {
		return nil
	}
	tags := map[string]bool{}
	for _, m := range reqTagRe.FindAllStringSubmatch(doc, -1) {
		tags[m[1]] = true
	}
	return tags
}

// symbolKeywords splits an identifier into lowercase word parts:
// TransferFunds -> {transfer, funds}.
func symbolKeywords(sym *extractor.CodeSymbol) map[string]bool {
	words := map[string]bool{}
	for _, part := range identifierWords(sym.Name) {
		words[part] = true
	}
	if sym.Receiver != "" {
		for _, part := range identifierWords(sym.Receiver) {
			words[part] = true
		}
	}
	return words
}

func identifierWords(name string) []string {
	var out []string
	for _, chunk := range strings.Split(name, "_") {
		for _, m := range camelRe.FindAllString(chunk, -1) {
			if len(m) > 2 {
				out = append(out, strings.ToLower(m))
			}
		}
	}
	return out
}

func sectionKeywords(node *design.Node) map[string]bool {
	words := map[string]bool{}
	for _, w := range wordSplit.Split(node.Title+" "+node.Body, -1) {
		for _, part := range identifierWords(w) {
			words[part] = true
		}
	}
	return words
}

func overlap(nodeWords, symWords map[string]bool) int {
	n := 0
	for w := range symWords {
		if nodeWords[w] {
			n++
		}
	}
	return n
}
