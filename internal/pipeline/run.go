package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"reqsync/internal/config"
	"reqsync/internal/generate"
	"reqsync/internal/impact"
	"reqsync/internal/index"
	"reqsync/internal/intent"
	"reqsync/internal/locks"
	"reqsync/internal/patch"
	"reqsync/internal/storage"
	"reqsync/internal/synth"
	"reqsync/internal/trace"
	"reqsync/internal/validate"
)

// State tracks a run through the pipeline. ACCEPTED and REJECTED are
// terminal; a rejected run can only be retried as a fresh run, optionally
// with disambiguations.
type State string

const (
	StatePending          State = "PENDING"
	StateIndexed          State = "INDEXED"
	StateIntentsResolved  State = "INTENTS_RESOLVED"
	StateImpactAnalyzed   State = "IMPACT_ANALYZED"
	StatePatchesGenerated State = "PATCHES_GENERATED"
	StateValidated        State = "VALIDATED"
	StateAccepted         State = "ACCEPTED"
	StateRejected         State = "REJECTED"
)

// Disambiguation pins one intent to an explicit target name for a re-run.
type Disambiguation struct {
	IntentID string
	Target   string
}

// Result is what a run leaves behind for the caller, whatever state it
// ended in.
type Result struct {
	RunID   string
	State   State
	Intents []*intent.ChangeIntent
	Sets    []*impact.Set
	Patches []*patch.Patch
	Report  *validate.Report

	ReportPath   string
	TestSpecPath string
	DeployPath   string
}

// Pipeline wires the stages together. One Pipeline serves many runs; the
// lock manager is shared so concurrent commits on overlapping files
// serialize.
type Pipeline struct {
	cfg   *config.Config
	gen   generate.Generator
	locks *locks.Manager
}

func New(cfg *config.Config, gen generate.Generator) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		gen:   gen,
		locks: locks.NewManager(cfg.Engine.LockTimeout),
	}
}

// Scan builds the index and trace graph and persists both to the cache.
func (p *Pipeline) Scan(ctx context.Context) (*index.Snapshot, error) {
	snap, store, err := p.indexStage(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	graph := trace.Build(snap.Design, snap.Symbols, p.cfg.Engine.ConfidenceThreshold)
	if err := store.SaveTraceLinks(ctx, graph.Links()); err != nil {
		return nil, fmt.Errorf("failed to save trace links: %w", err)
	}
	fmt.Printf("📊 Indexed %d symbols, %d design sections, %d trace links.\n",
		len(snap.Symbols), len(snap.Design.Nodes()), len(graph.Links()))
	return snap, nil
}

// Plan is the dry run: interpret and resolve impact, write nothing.
func (p *Pipeline) Plan(ctx context.Context, changePath string) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), State: StatePending}

	snap, store, err := p.indexStage(ctx)
	if err != nil {
		return res, err
	}
	defer store.Close()
	res.State = StateIndexed

	intents, err := p.interpretStage(snap, changePath, nil)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Intents = intents
	res.State = StateIntentsResolved
	if len(intents) == 0 {
		res.State = StateAccepted
		return res, nil
	}

	sets, err := p.impactStage(snap, intents)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Sets = sets
	res.State = StateImpactAnalyzed
	return res, nil
}

// Run executes the full pipeline for one requirement-change file. The run
// either commits every accepted patch or leaves the artifacts untouched.
func (p *Pipeline) Run(ctx context.Context, changePath string, bindings []Disambiguation) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), State: StatePending}

	snap, store, err := p.indexStage(ctx)
	if err != nil {
		return res, err
	}
	defer store.Close()
	res.State = StateIndexed

	intents, err := p.interpretStage(snap, changePath, bindings)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Intents = intents
	res.State = StateIntentsResolved

	if len(intents) == 0 {
		fmt.Println("✅ No actionable change requests. Nothing to do.")
		res.State = StateAccepted
		return res, nil
	}

	sets, err := p.impactStage(snap, intents)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Sets = sets
	res.State = StateImpactAnalyzed

	files, patches, err := p.generateStage(ctx, snap, sets)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Patches = patches
	res.State = StatePatchesGenerated

	report, patched, err := p.validateStage(res, snap, files, patches, sets)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.Report = report
	res.State = StateValidated

	if patched == nil {
		fmt.Println("❌ Validation failed. Artifacts left untouched.")
		res.State = StateRejected
		return res, nil
	}

	if err := p.synthStage(res, snap, sets); err != nil {
		res.State = StateRejected
		return res, err
	}

	if err := p.commitStage(ctx, files, patched); err != nil {
		res.State = StateRejected
		return res, err
	}

	fmt.Println("✅ Run accepted, all patches committed.")
	res.State = StateAccepted
	return res, nil
}

func (p *Pipeline) indexStage(ctx context.Context) (*index.Snapshot, *storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(p.cfg.Project.CachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index cache: %w", err)
	}

	idx, err := index.NewIndexer(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	snap, err := idx.Build(ctx, p.cfg.Project.CodeRoot, p.cfg.Project.DesignDoc)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return snap, store, nil
}

func (p *Pipeline) interpretStage(snap *index.Snapshot, changePath string, bindings []Disambiguation) ([]*intent.ChangeIntent, error) {
	interp := intent.NewInterpreter(snap)
	intents, err := interp.InterpretFile(changePath)
	if err != nil {
		return nil, err
	}
	fmt.Printf("🧭 Interpreted %d change intents.\n", len(intents))

	for _, b := range bindings {
		if err := applyBinding(snap, intents, b); err != nil {
			return nil, err
		}
	}
	return intents, nil
}

// applyBinding pins a previously ambiguous intent to the named target. The
// name must resolve uniquely; a binding that does not is itself an error.
func applyBinding(snap *index.Snapshot, intents []*intent.ChangeIntent, b Disambiguation) error {
	var ci *intent.ChangeIntent
	for _, candidate := range intents {
		if candidate.ID == b.IntentID {
			ci = candidate
			break
		}
	}
	if ci == nil {
		return fmt.Errorf("disambiguation references unknown intent %s", b.IntentID)
	}

	if syms := snap.SymbolsNamed(b.Target); len(syms) == 1 {
		ci.Target = syms[0].ID
		ci.TargetKd = intent.TargetSymbol
		ci.UnknownRefs = nil
		return nil
	}
	if nodes := snap.NodesNamed(b.Target); len(nodes) == 1 {
		ci.Target = nodes[0].ID
		ci.TargetKd = intent.TargetNode
		ci.UnknownRefs = nil
		return nil
	}
	return fmt.Errorf("disambiguation target %q for %s does not resolve to exactly one symbol or section", b.Target, b.IntentID)
}

func (p *Pipeline) impactStage(snap *index.Snapshot, intents []*intent.ChangeIntent) ([]*impact.Set, error) {
	graph := trace.Build(snap.Design, snap.Symbols, p.cfg.Engine.ConfidenceThreshold)
	analyzer := impact.NewAnalyzer(snap, graph, p.cfg.Engine.TraversalDepth)

	sets, err := analyzer.ResolveAll(intents)
	if err != nil {
		return nil, err
	}
	fmt.Printf("🔍 Resolved impact for %d intents.\n", len(sets))
	return sets, nil
}

// generateStage loads the current artifacts and runs the constrained
// generation. No lock is held while generation calls are outstanding.
func (p *Pipeline) generateStage(ctx context.Context, snap *index.Snapshot, sets []*impact.Set) (*patch.FileSet, []*patch.Patch, error) {
	paths := map[string]bool{}
	for _, sym := range snap.Symbols {
		paths[sym.File] = true
	}
	if snap.Design != nil {
		paths[snap.Design.File] = true
	}
	ordered := make([]string, 0, len(paths))
	for path := range paths {
		ordered = append(ordered, path)
	}

	files, err := patch.LoadFiles(ordered)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	engine, err := generate.NewEngine(p.gen, snap, files, p.cfg.Engine.GenerationRetries)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("✍️  Generating patches for %d intents...\n", len(sets))
	patches, err := engine.GeneratePatches(ctx, sets)
	if err != nil {
		return nil, nil, err
	}
	return files, patches, nil
}

func (p *Pipeline) validateStage(res *Result, snap *index.Snapshot, files *patch.FileSet, patches []*patch.Patch, sets []*impact.Set) (*validate.Report, *patch.FileSet, error) {
	validator, err := validate.NewValidator(p.cfg.Engine.ConfidenceThreshold)
	if err != nil {
		return nil, nil, err
	}
	report, patched, err := validator.Validate(res.RunID, snap, files, patches, sets)
	if err != nil {
		return nil, nil, err
	}

	res.ReportPath = filepath.Join(p.cfg.Project.OutputDir, fmt.Sprintf("run-%s-report.json", res.RunID))
	if err := report.Save(res.ReportPath); err != nil {
		return nil, nil, fmt.Errorf("failed to save validation report: %w", err)
	}
	fmt.Printf("🧪 Validation report written to %s\n", res.ReportPath)
	return report, patched, nil
}

// synthStage writes the derived artifacts before the commit so a
// deployment-order cycle rejects the run while the tree is still clean.
func (p *Pipeline) synthStage(res *Result, snap *index.Snapshot, sets []*impact.Set) error {
	if p.cfg.Engine.SynthesizeTests {
		spec := synth.GenerateTestSpec(res.RunID, snap, sets)
		res.TestSpecPath = filepath.Join(p.cfg.Project.OutputDir, fmt.Sprintf("run-%s-testspec.md", res.RunID))
		if err := writeArtifact(res.TestSpecPath, spec.Markdown()); err != nil {
			return fmt.Errorf("failed to write test specification: %w", err)
		}
	}
	if p.cfg.Engine.SynthesizeDeploy {
		plan, err := synth.BuildPlan(res.RunID, snap, sets)
		if err != nil {
			return err
		}
		res.DeployPath = filepath.Join(p.cfg.Project.OutputDir, fmt.Sprintf("run-%s-deploy.md", res.RunID))
		if err := writeArtifact(res.DeployPath, plan.Markdown()); err != nil {
			return fmt.Errorf("failed to write deployment plan: %w", err)
		}
	}
	return nil
}

// commitStage takes the per-file locks and atomically replaces every file
// the patches changed.
func (p *Pipeline) commitStage(ctx context.Context, original, patched *patch.FileSet) error {
	changed := map[string]string{}
	for _, path := range patched.Paths() {
		after, _ := patched.Content(path)
		before, ok := original.Content(path)
		if !ok || before != after {
			changed[path] = after
		}
	}
	if len(changed) == 0 {
		return nil
	}

	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	lease, err := p.locks.AcquireAll(ctx, paths)
	if err != nil {
		return err
	}
	defer lease.Release()

	fmt.Printf("💾 Committing %d files...\n", len(changed))
	return validate.CommitAtomic(changed)
}

func writeArtifact(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
