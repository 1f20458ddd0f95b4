package synth

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reqsync/internal/impact"
	"reqsync/internal/index"
)

// Step deploys one package's changed files. Steps are ordered so that a
// package is deployed after every changed package it calls into.
type Step struct {
	Package  string
	Symbols  []string
	Files    []string
	Rollback string
}

// Plan is the derived deployment document for one run.
type Plan struct {
	RunID       string
	CreatedAt   time.Time
	Steps       []Step
	FilesByType map[string][]string
	Checklist   []string
}

// BuildPlan orders the changed packages dependencies-first using the call
// graph restricted to changed symbols. A cycle between changed packages is
// an error; it is never broken silently.
func BuildPlan(runID string, snap *index.Snapshot, sets []*impact.Set) (*Plan, error) {
	plan := &Plan{
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
		FilesByType: map[string][]string{},
	}

	symbolsByPkg := map[string]map[string]bool{}
	filesByPkg := map[string]map[string]bool{}
	changed := map[string]string{} // symbol ID -> package
	var allFiles []string

	for _, set := range sets {
		for _, symID := range set.SymbolIDs {
			sym, ok := snap.Symbol(symID)
			if !ok {
				continue
			}
			if symbolsByPkg[sym.Package] == nil {
				symbolsByPkg[sym.Package] = map[string]bool{}
				filesByPkg[sym.Package] = map[string]bool{}
			}
			symbolsByPkg[sym.Package][sym.QualifiedName] = true
			filesByPkg[sym.Package][sym.File] = true
			changed[sym.ID] = sym.Package
			allFiles = append(allFiles, sym.File)
		}
		if len(set.NodeIDs) > 0 && snap.Design != nil {
			allFiles = append(allFiles, snap.Design.File)
		}
		for _, criterion := range set.Intent.AcceptanceCriteria {
			plan.Checklist = append(plan.Checklist, criterion)
		}
		plan.Checklist = append(plan.Checklist, fmt.Sprintf("Confirm %s: %s", set.Intent.ID, set.Intent.Rationale))
	}

	// deps[a][b] means package a calls into package b, so b deploys first.
	deps := map[string]map[string]bool{}
	for symID, pkg := range changed {
		for _, calleeID := range snap.Calls(symID) {
			calleePkg, ok := changed[calleeID]
			if !ok || calleePkg == pkg {
				continue
			}
			if deps[pkg] == nil {
				deps[pkg] = map[string]bool{}
			}
			deps[pkg][calleePkg] = true
		}
	}

	order, err := topoSort(sortedPkgs(symbolsByPkg), deps)
	if err != nil {
		return nil, err
	}

	for _, pkg := range order {
		files := sortedSet(filesByPkg[pkg])
		plan.Steps = append(plan.Steps, Step{
			Package:  pkg,
			Symbols:  sortedSet(symbolsByPkg[pkg]),
			Files:    files,
			Rollback: fmt.Sprintf("Restore the previous versions of %s from backup and redeploy the package.", strings.Join(files, ", ")),
		})
	}

	for _, file := range uniqueSorted(allFiles) {
		kind := fileKind(file)
		plan.FilesByType[kind] = append(plan.FilesByType[kind], file)
	}
	return plan, nil
}

// topoSort is Kahn's algorithm over package dependency edges, with sorted
// tie-breaking for deterministic output.
func topoSort(pkgs []string, deps map[string]map[string]bool) ([]string, error) {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for _, pkg := range pkgs {
		indegree[pkg] = 0
	}
	for pkg, targets := range deps {
		for target := range targets {
			indegree[pkg]++
			dependents[target] = append(dependents[target], pkg)
		}
	}

	var ready []string
	for _, pkg := range pkgs {
		if indegree[pkg] == 0 {
			ready = append(ready, pkg)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		pkg := ready[0]
		ready = ready[1:]
		order = append(order, pkg)
		next := append([]string(nil), dependents[pkg]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(pkgs) {
		var cyclic []string
		for _, pkg := range pkgs {
			if indegree[pkg] > 0 {
				cyclic = append(cyclic, pkg)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("deployment order is undefined: dependency cycle between packages %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}

func fileKind(file string) string {
	switch filepath.Ext(file) {
	case ".go":
		return "source"
	case ".md":
		return "docs"
	case ".yaml", ".yml", ".json", ".env", ".toml":
		return "config"
	default:
		return "other"
	}
}

// Markdown renders the plan as a deployment guide.
func (p *Plan) Markdown() string {
	var b strings.Builder
	b.WriteString("# Deployment Plan\n\n")
	b.WriteString("- Run: " + p.RunID + "\n")
	b.WriteString("- Generated: " + p.CreatedAt.Format("2006-01-02") + "\n\n")

	b.WriteString("## Affected Files\n\n")
	for _, kind := range []string{"source", "docs", "config", "other"} {
		files := p.FilesByType[kind]
		if len(files) == 0 {
			continue
		}
		fmt.Fprintf(&b, "**%s:**\n", kind)
		for _, file := range files {
			fmt.Fprintf(&b, "- `%s`\n", file)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Steps\n\n")
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "%d. Deploy package `%s` (%s)\n", i+1, step.Package, strings.Join(step.Symbols, ", "))
		for _, file := range step.Files {
			fmt.Fprintf(&b, "   - `%s`\n", file)
		}
		fmt.Fprintf(&b, "   - Rollback: %s\n", step.Rollback)
	}

	b.WriteString("\n## Verification\n\n")
	for i, item := range p.Checklist {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

func sortedPkgs(m map[string]map[string]bool) []string {
	out := make([]string, 0, len(m))
	for pkg := range m {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func uniqueSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
