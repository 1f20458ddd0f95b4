package generate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"reqsync/internal/design"
	"reqsync/internal/extractor"
	"reqsync/internal/impact"
	"reqsync/internal/index"
	"reqsync/internal/patch"
)

// Engine wraps the untrusted Generator behind the structural-constraint
// checker: proposals are validated against an immutable snapshot, retried a
// bounded number of times with the violations named, and only then turned
// into patches.
type Engine struct {
	gen     Generator
	snap    *index.Snapshot
	files   *patch.FileSet
	ext     *extractor.Extractor
	retries int
}

// NewEngine creates an engine. retries is the number of additional attempts
// after the first (default 2 elsewhere); files is the current artifact
// contents the structural checks replay proposals against.
func NewEngine(gen Generator, snap *index.Snapshot, files *patch.FileSet, retries int) (*Engine, error) {
	ext, err := extractor.NewExtractor("go")
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		retries = 0
	}
	return &Engine{gen: gen, snap: snap, files: files, ext: ext, retries: retries}, nil
}

// GeneratePatches runs generation for every impact set in parallel. Each
// task reads only the immutable snapshot and writes its own patch; a single
// serialized overlap check follows the gather.
func (e *Engine) GeneratePatches(ctx context.Context, sets []*impact.Set) ([]*patch.Patch, error) {
	patches := make([]*patch.Patch, len(sets))

	g, gctx := errgroup.WithContext(ctx)
	for i, set := range sets {
		g.Go(func() error {
			p, err := e.generateForSet(gctx, set)
			if err != nil {
				return err
			}
			patches[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := patch.DetectOverlap(patches); err != nil {
		return nil, err
	}
	return patches, nil
}

func (e *Engine) generateForSet(ctx context.Context, set *impact.Set) (*patch.Patch, error) {
	req, err := e.buildRequest(set)
	if err != nil {
		return nil, err
	}

	attempts := 1 + e.retries
	var lastViolations []string
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proposal, err := e.gen.ProposePatch(ctx, req)
		if err != nil {
			// Backend unavailability is fatal for the intent, not a skip.
			return nil, &FailureError{IntentID: set.Intent.ID, Attempts: attempt, Err: err}
		}

		violations := e.checkProposal(set, req, proposal)
		if len(violations) == 0 {
			return e.toPatch(set, req, proposal), nil
		}

		lastViolations = violations
		req.Violations = violations
	}

	return nil, &FailureError{IntentID: set.Intent.ID, Attempts: attempts, Violations: lastViolations}
}

func (e *Engine) buildRequest(set *impact.Set) (Request, error) {
	req := Request{
		Intent: set.Intent,
		Constraints: []string{
			"Design patches must preserve the heading hierarchy and leave sections outside the targets untouched.",
			"Code patches must remain syntactically valid Go.",
			"Signatures of symbols outside the targets must not change.",
		},
	}

	for _, nodeID := range set.NodeIDs {
		node, ok := e.snap.Node(nodeID)
		if !ok {
			return Request{}, fmt.Errorf("impact set of %s references unknown design node %s", set.Intent.ID, nodeID)
		}
		req.Targets = append(req.Targets, Target{
			ID:   node.ID,
			Kind: "node",
			Name: node.Title,
			File: e.snap.Design.File,
			Span: node.Span,
			Text: nodeText(node),
		})
	}
	for _, symID := range set.SymbolIDs {
		sym, ok := e.snap.Symbol(symID)
		if !ok {
			return Request{}, fmt.Errorf("impact set of %s references unknown symbol %s", set.Intent.ID, symID)
		}
		req.Targets = append(req.Targets, Target{
			ID:   sym.ID,
			Kind: "symbol",
			Name: sym.QualifiedName,
			File: sym.File,
			Span: sym.Span,
			Text: sym.Content,
		})
	}
	return req, nil
}

// checkProposal replays the proposal against a copy of the artifacts and
// collects every structural violation.
func (e *Engine) checkProposal(set *impact.Set, req Request, proposal *Proposal) []string {
	var violations []string

	if proposal == nil || len(proposal.Edits) == 0 {
		return []string{"proposal contains no edits"}
	}

	targets := map[string]Target{}
	for _, t := range req.Targets {
		targets[t.ID] = t
	}

	seen := map[string]bool{}
	codeFiles := map[string]bool{}
	designTouched := false
	for _, edit := range proposal.Edits {
		t, ok := targets[edit.TargetID]
		if !ok {
			violations = append(violations, fmt.Sprintf("edit references target %s outside the impact set", edit.TargetID))
			continue
		}
		if seen[edit.TargetID] {
			violations = append(violations, fmt.Sprintf("duplicate edit for target %s", edit.TargetID))
			continue
		}
		seen[edit.TargetID] = true
		if t.Kind == "symbol" {
			codeFiles[t.File] = true
		} else {
			designTouched = true
		}
	}
	if len(violations) > 0 {
		return violations
	}

	patched := e.files.Clone()
	if err := patched.Apply([]*patch.Patch{e.toPatch(set, req, proposal)}); err != nil {
		return []string{fmt.Sprintf("edits do not apply cleanly: %v", err)}
	}

	for file := range codeFiles {
		violations = append(violations, e.checkCodeFile(set, file, patched)...)
	}
	if designTouched {
		violations = append(violations, e.checkDesign(set, patched)...)
	}
	return violations
}

// checkCodeFile re-parses a patched source file and verifies every symbol
// outside the impact set kept its signature.
func (e *Engine) checkCodeFile(set *impact.Set, file string, patched *patch.FileSet) []string {
	content, _ := patched.Content(file)
	newSyms, err := e.ext.Extract(file, []byte(content))
	if err != nil {
		return []string{fmt.Sprintf("patched %s does not parse: %v", file, err)}
	}

	inSet := map[string]bool{}
	for _, id := range set.SymbolIDs {
		inSet[id] = true
	}
	byQName := map[string]*extractor.CodeSymbol{}
	for _, sym := range newSyms {
		byQName[sym.QualifiedName] = sym
	}

	var violations []string
	for _, old := range e.snap.Symbols {
		if old.File != file || inSet[old.ID] {
			continue
		}
		now, ok := byQName[old.QualifiedName]
		if !ok {
			violations = append(violations, fmt.Sprintf("symbol %s outside the targets was removed from %s", old.QualifiedName, file))
			continue
		}
		if normalizeSig(now.Signature) != normalizeSig(old.Signature) {
			violations = append(violations, fmt.Sprintf("signature of %s changed but it is outside the targets", old.QualifiedName))
		}
	}
	return violations
}

// checkDesign re-parses the patched design document and verifies every
// section outside the impact set survived with its place in the hierarchy.
func (e *Engine) checkDesign(set *impact.Set, patched *patch.FileSet) []string {
	file := e.snap.Design.File
	content, _ := patched.Content(file)
	newDoc, err := design.Parse(file, content)
	if err != nil {
		return []string{fmt.Sprintf("patched design document is malformed: %v", err)}
	}

	inSet := map[string]bool{}
	for _, id := range set.NodeIDs {
		inSet[id] = true
	}
	newOutline := map[string]bool{}
	for _, entry := range newDoc.Outline() {
		newOutline[entry] = true
	}

	var violations []string
	for _, node := range e.snap.Design.Nodes() {
		if inSet[node.ID] {
			continue
		}
		entry := fmt.Sprintf("%d:%s", node.Level, strings.Join(node.Path, "/"))
		if !newOutline[entry] {
			violations = append(violations, fmt.Sprintf("design section %q outside the targets was removed or moved", strings.Join(node.Path, "/")))
		}
	}
	return violations
}

func (e *Engine) toPatch(set *impact.Set, req Request, proposal *Proposal) *patch.Patch {
	p := &patch.Patch{IntentID: set.Intent.ID}
	// Request target order keeps the edit sequence deterministic.
	for _, t := range req.Targets {
		for _, edit := range proposal.Edits {
			if edit.TargetID != t.ID {
				continue
			}
			p.Edits = append(p.Edits, patch.Edit{
				TargetID: t.ID,
				File:     t.File,
				Span:     t.Span,
				NewText:  edit.NewText,
			})
		}
	}
	return p
}

func nodeText(node *design.Node) string {
	return strings.Repeat("#", node.Level) + " " + node.Title + "\n" + node.Body
}

func normalizeSig(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
