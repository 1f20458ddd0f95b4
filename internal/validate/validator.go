package validate

import (
	"fmt"
	"sort"
	"strings"

	"reqsync/internal/design"
	"reqsync/internal/impact"
	"reqsync/internal/index"
	"reqsync/internal/intent"
	"reqsync/internal/patch"
	"reqsync/internal/trace"
)

// Validator applies accepted patches to an in-memory copy, re-indexes it,
// and checks intent coverage and referential integrity. Disk is never
// touched here.
type Validator struct {
	indexer   *index.Indexer
	threshold float64
}

func NewValidator(threshold float64) (*Validator, error) {
	idx, err := index.NewIndexer(nil)
	if err != nil {
		return nil, err
	}
	return &Validator{indexer: idx, threshold: threshold}, nil
}

// Validate returns the report and, when the checks pass, the patched file
// set ready for an atomic commit. A failing report blocks the commit; the
// returned file set is nil in that case.
func (v *Validator) Validate(runID string, old *index.Snapshot, files *patch.FileSet, patches []*patch.Patch, sets []*impact.Set) (*Report, *patch.FileSet, error) {
	report := NewReport(runID)

	patched := files.Clone()
	if err := patched.Apply(patches); err != nil {
		return nil, nil, fmt.Errorf("failed to apply patches in memory: %w", err)
	}

	newSnap, err := v.reindex(old, patched)
	if err != nil {
		// A structurally invalid result is a validation failure, not an
		// engine crash: report it and block the commit.
		report.Pass = false
		report.Notes = append(report.Notes, fmt.Sprintf("re-indexing patched artifacts failed: %v", err))
		for _, set := range sets {
			report.Intents = append(report.Intents, IntentResult{IntentID: set.Intent.ID, Status: StatusOrphaned})
		}
		return report, nil, nil
	}

	newTrace := trace.Build(newSnap.Design, newSnap.Symbols, v.threshold)
	report.Notes = append(report.Notes, fmt.Sprintf("rebuilt trace graph with %d links", len(newTrace.Links())))

	for _, set := range sets {
		report.Intents = append(report.Intents, v.checkIntent(set, old, newSnap))
	}
	report.Dangling = v.findDangling(old, newSnap)

	report.Pass = len(report.Dangling) == 0
	for _, res := range report.Intents {
		if res.Status != StatusCovered {
			report.Pass = false
		}
	}

	if !report.Pass {
		return report, nil, nil
	}
	return report, patched, nil
}

func (v *Validator) reindex(old *index.Snapshot, patched *patch.FileSet) (*index.Snapshot, error) {
	designFile := ""
	if old.Design != nil {
		designFile = old.Design.File
	}

	designContent := ""
	codeFiles := map[string]string{}
	for _, path := range patched.Paths() {
		content, _ := patched.Content(path)
		if path == designFile {
			designContent = content
			continue
		}
		codeFiles[path] = content
	}
	return v.indexer.BuildInMemory(old.CodeRoot, designFile, designContent, codeFiles)
}

// checkIntent verifies the intent's target set still exists in the patched
// snapshot: symbols by qualified name (absence expected for removals),
// design sections by their place in the hierarchy.
func (v *Validator) checkIntent(set *impact.Set, old, now *index.Snapshot) IntentResult {
	total := 0
	addressed := 0
	var missing []string

	for _, symID := range set.SymbolIDs {
		oldSym, ok := old.Symbol(symID)
		if !ok {
			continue
		}
		total++
		present := len(now.SymbolsNamed(oldSym.QualifiedName)) > 0
		ok = present
		if set.Intent.Kind == intent.KindRemove {
			ok = !present
		}
		if ok {
			addressed++
		} else {
			missing = append(missing, oldSym.QualifiedName)
		}
	}

	for _, nodeID := range set.NodeIDs {
		oldNode, ok := old.Node(nodeID)
		if !ok {
			continue
		}
		total++
		if nodeSurvives(oldNode, now.Design) {
			addressed++
		} else {
			missing = append(missing, strings.Join(oldNode.Path, "/"))
		}
	}

	res := IntentResult{IntentID: set.Intent.ID, Missing: missing}
	switch {
	case total == 0 || addressed == total:
		res.Status = StatusCovered
	case addressed > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusOrphaned
	}
	return res
}

func nodeSurvives(old *design.Node, doc *design.Document) bool {
	if doc == nil {
		return false
	}
	want := strings.Join(old.Path, "/")
	for _, n := range doc.Nodes() {
		if n.Level == old.Level && strings.Join(n.Path, "/") == want {
			return true
		}
	}
	return false
}

// findDangling reports references that point at symbols the patch set
// removed: call references from code and backtick references from the
// design document.
func (v *Validator) findDangling(old, now *index.Snapshot) []DanglingRef {
	removed := map[string]bool{}
	for _, sym := range old.Symbols {
		if len(now.SymbolsNamed(sym.QualifiedName)) == 0 {
			removed[strings.ToLower(sym.Name)] = true
			removed[strings.ToLower(sym.QualifiedName)] = true
			if sym.Receiver != "" {
				removed[strings.ToLower(sym.Receiver+"."+sym.Name)] = true
			}
		}
	}
	if len(removed) == 0 {
		return nil
	}
	// A name that still resolves somewhere is not dangling.
	alive := func(name string) bool {
		return len(now.SymbolsNamed(name)) > 0
	}

	var out []DanglingRef
	for _, sym := range now.Symbols {
		for _, call := range sym.Calls {
			if removed[strings.ToLower(call)] && !alive(call) {
				out = append(out, DanglingRef{FromID: sym.ID, Ref: call, Kind: "call"})
			}
		}
	}
	if now.Design != nil {
		for _, node := range now.Design.Nodes() {
			for _, ref := range node.CodeRefs {
				if removed[strings.ToLower(ref)] && !alive(ref) {
					out = append(out, DanglingRef{FromID: node.ID, Ref: ref, Kind: "design_ref"})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromID != out[j].FromID {
			return out[i].FromID < out[j].FromID
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}
