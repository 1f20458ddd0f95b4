package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsync/internal/config"
	"reqsync/internal/generate"
	"reqsync/internal/impact"
	"reqsync/internal/patch"
)

const ledgerSrc = `package ledger

// Transfer moves funds between accounts.
func Transfer(from, to string, amount int) error {
	checkLimit(amount)
	return nil
}

func checkLimit(amount int) {}
`

const designDoc = `# Transfers

The ` + "`Transfer`" + ` operation moves funds.

# Limits

Daily limits apply via ` + "`checkLimit`" + `.
`

const guardedTransfer = `func Transfer(from, to string, amount int) error {
	if amount < 0 {
		return nil
	}
	checkLimit(amount)
	return nil
}`

// stubGen rewrites the first symbol target with a canned body, or echoes
// the original text when no rewrite is configured.
type stubGen struct {
	rewrites map[string]string // qualified name -> new text
}

func (s *stubGen) ProposePatch(_ context.Context, req generate.Request) (*generate.Proposal, error) {
	for _, target := range req.Targets {
		if target.Kind != "symbol" {
			continue
		}
		text, ok := s.rewrites[target.Name]
		if !ok {
			text = target.Text
		}
		return &generate.Proposal{Edits: []generate.ProposedEdit{{TargetID: target.ID, NewText: text}}}, nil
	}
	// Node-only impact: echo the section unchanged.
	t := req.Targets[0]
	return &generate.Proposal{Edits: []generate.ProposedEdit{{TargetID: t.ID, NewText: t.Text}}}, nil
}

type workspace struct {
	cfg        *config.Config
	ledgerPath string
	designPath string
}

func setup(t *testing.T) *workspace {
	t.Helper()
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0755))

	ws := &workspace{
		cfg:        &config.Config{Engine: config.DefaultEngine()},
		ledgerPath: filepath.Join(srcDir, "ledger.go"),
		designPath: filepath.Join(tmp, "design.md"),
	}
	ws.cfg.Project.CodeRoot = srcDir
	ws.cfg.Project.DesignDoc = ws.designPath
	ws.cfg.Project.OutputDir = filepath.Join(tmp, "out")
	ws.cfg.Project.CachePath = filepath.Join(tmp, "index.db")

	require.NoError(t, os.WriteFile(ws.ledgerPath, []byte(ledgerSrc), 0644))
	require.NoError(t, os.WriteFile(ws.designPath, []byte(designDoc), 0644))
	return ws
}

func (ws *workspace) changeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(filepath.Dir(ws.designPath), "change.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (ws *workspace) artifactBytes(t *testing.T) (string, string) {
	t.Helper()
	code, err := os.ReadFile(ws.ledgerPath)
	require.NoError(t, err)
	doc, err := os.ReadFile(ws.designPath)
	require.NoError(t, err)
	return string(code), string(doc)
}

func TestRun_EmptyChangeIsIdempotentAccept(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "# just a heading, no requests\n")
	p := New(ws.cfg, &stubGen{})

	for i := 0; i < 2; i++ {
		res, err := p.Run(context.Background(), change, nil)
		require.NoError(t, err)
		assert.Equal(t, StateAccepted, res.State)
		assert.Empty(t, res.Intents)
	}

	code, doc := ws.artifactBytes(t)
	assert.Equal(t, ledgerSrc, code)
	assert.Equal(t, designDoc, doc)
}

func TestRun_AcceptedRunCommitsAndReports(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Modify `Transfer` to reject negative amounts.\n")
	gen := &stubGen{rewrites: map[string]string{"ledger.Transfer": guardedTransfer}}
	p := New(ws.cfg, gen)

	res, err := p.Run(context.Background(), change, nil)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, res.State)

	require.NotNil(t, res.Report)
	assert.True(t, res.Report.Pass)

	code, doc := ws.artifactBytes(t)
	assert.Contains(t, code, "amount < 0")
	assert.Equal(t, designDoc, doc, "design untouched by a code-only change")

	assert.FileExists(t, res.ReportPath)
	assert.FileExists(t, res.TestSpecPath)
	assert.FileExists(t, res.DeployPath)
}

func TestRun_UnknownNameRejectsUntouched(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Modify `Frobnicate` to be faster.\n")
	p := New(ws.cfg, &stubGen{})

	res, err := p.Run(context.Background(), change, nil)
	require.Error(t, err)
	assert.Equal(t, StateRejected, res.State)

	var ambiguity *impact.AmbiguityError
	require.True(t, errors.As(err, &ambiguity))
	assert.Contains(t, ambiguity.Reason, "Frobnicate")

	code, doc := ws.artifactBytes(t)
	assert.Equal(t, ledgerSrc, code)
	assert.Equal(t, designDoc, doc)
}

func TestRun_DisambiguationRerunSucceeds(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Modify `Frobnicate` to be faster.\n")
	p := New(ws.cfg, &stubGen{})

	res, err := p.Run(context.Background(), change, nil)
	require.Error(t, err)
	require.NotEmpty(t, res.Intents)

	// Fresh run with the ambiguous intent pinned to a real symbol.
	res2, err := p.Run(context.Background(), change, []Disambiguation{
		{IntentID: res.Intents[0].ID, Target: "checkLimit"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, res2.State)
	assert.NotEqual(t, res.RunID, res2.RunID)
}

func TestRun_ValidationFailureLeavesArtifactsByteIdentical(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Modify `Transfer` to reject negative amounts.\n")

	// The rewrite parses and keeps outside signatures intact, so it passes
	// generation checks, but it renames the target: coverage fails.
	gen := &stubGen{rewrites: map[string]string{
		"ledger.Transfer": "func MoveFunds(from, to string, amount int) error {\n\tcheckLimit(amount)\n\treturn nil\n}",
	}}
	p := New(ws.cfg, gen)

	res, err := p.Run(context.Background(), change, nil)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, res.State)

	require.NotNil(t, res.Report)
	assert.False(t, res.Report.Pass)
	assert.FileExists(t, res.ReportPath, "rejected runs still leave a report")

	code, doc := ws.artifactBytes(t)
	assert.Equal(t, ledgerSrc, code)
	assert.Equal(t, designDoc, doc)
}

func TestPlan_DryRunWritesNothing(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Modify `Transfer` to reject negative amounts.\n")
	p := New(ws.cfg, &stubGen{})

	res, err := p.Plan(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, StateImpactAnalyzed, res.State)
	require.Len(t, res.Sets, 1)
	assert.NotEmpty(t, res.Sets[0].SymbolIDs)
	assert.Empty(t, res.Patches)

	_, err = os.Stat(ws.cfg.Project.OutputDir)
	assert.True(t, os.IsNotExist(err), "plan writes no artifacts")
}

func TestRun_HeuristicOnlyImpactRejects(t *testing.T) {
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0755))

	// Two packages define Process; the requirement names it only as a
	// keyword, so nothing but heuristics backs the mapping.
	alphaSrc := "package alpha\n\nfunc Process(data string) string {\n\treturn data\n}\n"
	betaSrc := "package beta\n\nfunc Process(data string) string {\n\treturn data\n}\n"
	docSrc := "# Processing\n\nRecords flow through here.\n"
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "alpha.go"), []byte(alphaSrc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "beta.go"), []byte(betaSrc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "design.md"), []byte(docSrc), 0644))
	change := filepath.Join(tmp, "change.txt")
	require.NoError(t, os.WriteFile(change, []byte("Improve the process step.\n"), 0644))

	cfg := &config.Config{Engine: config.DefaultEngine()}
	cfg.Project.CodeRoot = srcDir
	cfg.Project.DesignDoc = filepath.Join(tmp, "design.md")
	cfg.Project.OutputDir = filepath.Join(tmp, "out")
	cfg.Project.CachePath = filepath.Join(tmp, "index.db")

	p := New(cfg, &stubGen{})
	res, err := p.Run(context.Background(), change, nil)
	require.Error(t, err)
	assert.Equal(t, StateRejected, res.State)

	var ambiguity *impact.AmbiguityError
	require.True(t, errors.As(err, &ambiguity), "a keyword-only mapping is never committed")
	assert.Contains(t, ambiguity.Reason, "heuristic")

	got, readErr := os.ReadFile(filepath.Join(srcDir, "alpha.go"))
	require.NoError(t, readErr)
	assert.Equal(t, alphaSrc, string(got))

	// Binding the intent to one of the candidates makes the re-run succeed.
	require.NotEmpty(t, res.Intents)
	res2, err := p.Run(context.Background(), change, []Disambiguation{
		{IntentID: res.Intents[0].ID, Target: "alpha.Process"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, res2.State)
}

func TestRun_SameTargetOpposingIntentsConflict(t *testing.T) {
	ws := setup(t)
	change := ws.changeFile(t, "Remove `Transfer` entirely.\nAdd input validation to `Transfer`.\n")
	p := New(ws.cfg, &stubGen{})

	res, err := p.Run(context.Background(), change, nil)
	require.Error(t, err)
	assert.Equal(t, StateRejected, res.State)

	var conflict *patch.ConflictError
	require.True(t, errors.As(err, &conflict), "opposing requests on one symbol surface as a conflict, not a merge")
	assert.ElementsMatch(t, []string{"INT-001", "INT-002"}, conflict.IntentIDs)

	code, doc := ws.artifactBytes(t)
	assert.Equal(t, ledgerSrc, code)
	assert.Equal(t, designDoc, doc)
}
