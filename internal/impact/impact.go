package impact

import (
	"fmt"
	"sort"
	"strings"

	"reqsync/internal/index"
	"reqsync/internal/intent"
	"reqsync/internal/patch"
	"reqsync/internal/trace"
)

// Set is the resolved impact of one intent: the design nodes and code
// symbols it must touch. Ambiguous sets rest on heuristic evidence only and
// cannot justify full coverage on their own.
type Set struct {
	Intent    *intent.ChangeIntent `json:"intent"`
	NodeIDs   []string             `json:"node_ids"`
	SymbolIDs []string             `json:"symbol_ids"`
	Ambiguous bool                 `json:"ambiguous"`
}

// AmbiguityError reports an intent that could not be resolved to a
// confident, non-empty impact set. It aborts the intent, never downgrades
// to a no-op.
type AmbiguityError struct {
	IntentID string
	Reason   string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("intent %s cannot be mapped: %s", e.IntentID, e.Reason)
}

// Analyzer resolves impact sets by reachability over the traceability
// graph, bounded by the configured traversal depth.
type Analyzer struct {
	snap  *index.Snapshot
	graph *trace.Graph
	depth int
}

// NewAnalyzer creates an analyzer. Depth 1 means direct trace links only;
// greater depths additionally walk the call/reference graph, one hop per
// extra level.
func NewAnalyzer(snap *index.Snapshot, graph *trace.Graph, depth int) *Analyzer {
	if depth < 1 {
		depth = 1
	}
	return &Analyzer{snap: snap, graph: graph, depth: depth}
}

// Resolve computes the impact set of one intent.
func (a *Analyzer) Resolve(ci *intent.ChangeIntent) (*Set, error) {
	if len(ci.UnknownRefs) > 0 {
		return nil, &AmbiguityError{
			IntentID: ci.ID,
			Reason:   fmt.Sprintf("requirement names unknown symbols: %s", strings.Join(ci.UnknownRefs, ", ")),
		}
	}

	symbols := map[string]bool{}
	nodes := map[string]bool{}
	explicit := false

	switch {
	case ci.Target != "" && ci.TargetKd == intent.TargetSymbol:
		symbols[ci.Target] = true
		explicit = true
	case ci.Target != "" && ci.TargetKd == intent.TargetNode:
		nodes[ci.Target] = true
		explicit = true
	default:
		a.seedFromHints(ci, symbols, nodes)
	}

	if len(symbols) == 0 && len(nodes) == 0 {
		return nil, &AmbiguityError{
			IntentID: ci.ID,
			Reason:   "no design section or code symbol matches the requirement",
		}
	}

	// Hop 1: direct trace links of every seed.
	confident := a.expandTrace(symbols, nodes)

	// Extra depth walks the call/reference graph around included symbols.
	// Growth and confidence are tracked separately: a confident link found
	// on a later hop still counts, and advisory links keep the expansion
	// going until it stops adding members.
	for hop := 2; hop <= a.depth; hop++ {
		before := len(symbols) + len(nodes)
		a.expandCalls(symbols)
		if a.expandTrace(symbols, nodes) {
			confident = true
		}
		if len(symbols)+len(nodes) == before {
			break
		}
	}

	set := &Set{
		Intent:    ci,
		NodeIDs:   sortedIDs(nodes),
		SymbolIDs: sortedIDs(symbols),
		Ambiguous: !explicit && !confident,
	}
	return set, nil
}

// ResolveAll resolves every intent and then checks the sets pairwise for
// span conflicts. Conflicting intents are reported together. A set resting
// on heuristic evidence alone aborts the intent: the caller must re-run
// with an explicit binding rather than have an unconfident guess committed.
func (a *Analyzer) ResolveAll(intents []*intent.ChangeIntent) ([]*Set, error) {
	var sets []*Set
	for _, ci := range intents {
		set, err := a.Resolve(ci)
		if err != nil {
			return nil, err
		}
		if set.Ambiguous {
			return nil, &AmbiguityError{
				IntentID: ci.ID,
				Reason:   "only heuristic trace links support the mapping; bind the intent to an explicit target",
			}
		}
		sets = append(sets, set)
	}
	if err := a.DetectConflicts(sets); err != nil {
		return nil, err
	}
	return sets, nil
}

// DetectConflicts reports two sets claiming the same code span. Symbol
// spans are disjoint within a file, so a shared symbol is exactly a shared
// span.
func (a *Analyzer) DetectConflicts(sets []*Set) error {
	claimed := map[string]string{} // symbol ID -> intent ID
	for _, set := range sets {
		for _, symID := range set.SymbolIDs {
			prev, ok := claimed[symID]
			if !ok {
				claimed[symID] = set.Intent.ID
				continue
			}
			ids := []string{prev, set.Intent.ID}
			sort.Strings(ids)
			sym, _ := a.snap.Symbol(symID)
			file := ""
			detail := fmt.Sprintf("both claim symbol %s", symID)
			if sym != nil {
				file = sym.File
				detail = fmt.Sprintf("both claim %s (lines %d-%d)", sym.Name, sym.Span.StartLine, sym.Span.EndLine)
			}
			return &patch.ConflictError{IntentIDs: ids, File: file, Detail: detail}
		}
	}
	return nil
}

func (a *Analyzer) seedFromHints(ci *intent.ChangeIntent, symbols, nodes map[string]bool) {
	for _, hint := range ci.Hints {
		for _, sym := range a.snap.SymbolsNamed(hint) {
			symbols[sym.ID] = true
		}
		for _, node := range a.snap.NodesNamed(hint) {
			nodes[node.ID] = true
		}
	}
}

// expandTrace adds the trace-linked counterparts of every current member.
// It reports whether any included link was explicit or above the threshold.
func (a *Analyzer) expandTrace(symbols, nodes map[string]bool) bool {
	confident := false
	for _, symID := range sortedIDs(symbols) {
		for _, link := range a.graph.NodesFor(symID) {
			nodes[link.NodeID] = true
			if link.Source == trace.SourceExplicit || !a.graph.Advisory(link) {
				confident = true
			}
		}
	}
	for _, nodeID := range sortedIDs(nodes) {
		for _, link := range a.graph.SymbolsFor(nodeID) {
			symbols[link.SymbolID] = true
			if link.Source == trace.SourceExplicit || !a.graph.Advisory(link) {
				confident = true
			}
		}
	}
	return confident
}

func (a *Analyzer) expandCalls(symbols map[string]bool) bool {
	grew := false
	for _, symID := range sortedIDs(symbols) {
		for _, id := range a.snap.Calls(symID) {
			if !symbols[id] {
				symbols[id] = true
				grew = true
			}
		}
		for _, id := range a.snap.Callers(symID) {
			if !symbols[id] {
				symbols[id] = true
				grew = true
			}
		}
	}
	return grew
}

func sortedIDs(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
