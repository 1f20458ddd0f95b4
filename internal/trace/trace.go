package trace

import "sort"

// Source records how a link was established.
type Source string

const (
	// SourceExplicit links come from literal symbol references in the
	// design text and always carry confidence 1.0.
	SourceExplicit Source = "explicit"
	// SourceHeuristic links come from keyword overlap and are always
	// below 1.0.
	SourceHeuristic Source = "heuristic"
)

// Link connects a design node to a code symbol.
type Link struct {
	NodeID     string  `json:"node_id"`
	SymbolID   string  `json:"symbol_id"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Graph is the bidirectional traceability index. It is keyed purely by IDs
// and can be rebuilt from a snapshot at any time.
type Graph struct {
	links     []Link
	byNode    map[string][]int
	bySymbol  map[string][]int
	threshold float64
}

// NewGraph creates an empty graph. Links with confidence below the
// threshold are advisory: they participate in lookups but cannot anchor an
// impact set on their own.
func NewGraph(threshold float64) *Graph {
	return &Graph{
		byNode:    make(map[string][]int),
		bySymbol:  make(map[string][]int),
		threshold: threshold,
	}
}

func (g *Graph) Add(link Link) {
	idx := len(g.links)
	g.links = append(g.links, link)
	g.byNode[link.NodeID] = append(g.byNode[link.NodeID], idx)
	g.bySymbol[link.SymbolID] = append(g.bySymbol[link.SymbolID], idx)
}

// Links returns every link in insertion order, for persistence.
func (g *Graph) Links() []Link {
	out := make([]Link, len(g.links))
	copy(out, g.links)
	return out
}

// SymbolsFor returns the links of a design node, highest confidence first,
// ties broken by insertion order.
func (g *Graph) SymbolsFor(nodeID string) []Link {
	return g.ordered(g.byNode[nodeID])
}

// NodesFor returns the links of a code symbol, highest confidence first,
// ties broken by insertion order.
func (g *Graph) NodesFor(symbolID string) []Link {
	return g.ordered(g.bySymbol[symbolID])
}

// Advisory reports whether a link is below the confidence threshold.
func (g *Graph) Advisory(link Link) bool {
	return link.Confidence < g.threshold
}

// Threshold returns the configured confidence floor.
func (g *Graph) Threshold() float64 {
	return g.threshold
}

func (g *Graph) ordered(indices []int) []Link {
	if len(indices) == 0 {
		return nil
	}
	idxs := make([]int, len(indices))
	copy(idxs, indices)
	sort.SliceStable(idxs, func(a, b int) bool {
		la, lb := g.links[idxs[a]], g.links[idxs[b]]
		if la.Confidence != lb.Confidence {
			return la.Confidence > lb.Confidence
		}
		return idxs[a] < idxs[b]
	})
	out := make([]Link, len(idxs))
	for i, idx := range idxs {
		out[i] = g.links[idx]
	}
	return out
}
