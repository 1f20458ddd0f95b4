package generate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsync/internal/impact"
	"reqsync/internal/index"
	"reqsync/internal/intent"
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

const ledgerDoc = `# Transfers

The ` + "`Transfer`" + ` operation.

# Limits

Daily limits apply.
`

// stubGenerator replays canned responses and records every request.
type stubGenerator struct {
	mu        sync.Mutex
	responses []func(req Request) (*Proposal, error)
	requests  []Request
}

func (s *stubGenerator) ProposePatch(_ context.Context, req Request) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("stub exhausted")
	}
	fn := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return fn(req)
}

func respond(p *Proposal) func(Request) (*Proposal, error) {
	return func(Request) (*Proposal, error) { return p, nil }
}

func fixture(t *testing.T) (*index.Snapshot, *patch.FileSet) {
	t.Helper()
	idx, err := index.NewIndexer(nil)
	require.NoError(t, err)
	snap, err := idx.BuildInMemory(".", "design.md", ledgerDoc, map[string]string{
		"ledger.go": ledgerSrc,
	})
	require.NoError(t, err)

	files := patch.NewFileSet()
	files.Add("ledger.go", ledgerSrc)
	files.Add("design.md", ledgerDoc)
	return snap, files
}

func symbolID(t *testing.T, snap *index.Snapshot, name string) string {
	t.Helper()
	syms := snap.SymbolsNamed(name)
	require.Len(t, syms, 1)
	return syms[0].ID
}

func transferSet(t *testing.T, snap *index.Snapshot) *impact.Set {
	return &impact.Set{
		Intent:    &intent.ChangeIntent{ID: "INT-001", Kind: intent.KindAdd, Rationale: "reject negative amounts"},
		SymbolIDs: []string{symbolID(t, snap, "Transfer")},
	}
}

const guardedTransfer = `func Transfer(from, to string, amount int) error {
	if amount < 0 {
		return errors.New("negative amount")
	}
	checkLimit(amount)
	return nil
}`

func TestEngine_AcceptsValidProposal(t *testing.T) {
	snap, files := fixture(t)
	set := transferSet(t, snap)

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{TargetID: set.SymbolIDs[0], NewText: guardedTransfer}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 2)
	require.NoError(t, err)

	patches, err := eng.GeneratePatches(context.Background(), []*impact.Set{set})
	require.NoError(t, err)
	require.Len(t, patches, 1)
	require.Len(t, patches[0].Edits, 1)

	edit := patches[0].Edits[0]
	assert.Equal(t, "INT-001", patches[0].IntentID)
	assert.Equal(t, "ledger.go", edit.File)
	assert.Equal(t, 4, edit.Span.StartLine)
	assert.Equal(t, 7, edit.Span.EndLine)
	assert.Contains(t, edit.NewText, "amount < 0")
}

func TestEngine_RetriesWithNamedViolation(t *testing.T) {
	snap, files := fixture(t)
	set := transferSet(t, snap)
	target := set.SymbolIDs[0]

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{TargetID: target, NewText: "func Transfer( {"}}}),
		respond(&Proposal{Edits: []ProposedEdit{{TargetID: target, NewText: guardedTransfer}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 2)
	require.NoError(t, err)

	patches, err := eng.GeneratePatches(context.Background(), []*impact.Set{set})
	require.NoError(t, err)
	require.Len(t, patches, 1)

	require.Len(t, stub.requests, 2)
	assert.Empty(t, stub.requests[0].Violations)
	require.NotEmpty(t, stub.requests[1].Violations, "retry prompt names the violation")
	assert.Contains(t, stub.requests[1].Violations[0], "does not parse")
}

func TestEngine_ExhaustedRetriesIsFailure(t *testing.T) {
	snap, files := fixture(t)
	set := transferSet(t, snap)

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{TargetID: set.SymbolIDs[0], NewText: "func Transfer( {"}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 2)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{set})
	require.Error(t, err)

	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "INT-001", failure.IntentID)
	assert.Equal(t, 3, failure.Attempts, "one attempt plus two retries")
	assert.NotEmpty(t, failure.Violations)
}

func TestEngine_BackendErrorIsFailure(t *testing.T) {
	snap, files := fixture(t)
	set := transferSet(t, snap)

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		func(Request) (*Proposal, error) { return nil, fmt.Errorf("model unavailable") },
	}}
	eng, err := NewEngine(stub, snap, files, 2)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{set})
	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.ErrorContains(t, failure, "model unavailable")
}

func TestEngine_RejectsOutsideSignatureChange(t *testing.T) {
	snap, files := fixture(t)
	set := &impact.Set{
		Intent:    &intent.ChangeIntent{ID: "INT-001", Kind: intent.KindModify, Rationale: "tighten limits"},
		SymbolIDs: []string{symbolID(t, snap, "checkLimit")},
	}

	// The proposal smuggles in a redefinition of Transfer with a new
	// signature; Transfer is outside the impact set.
	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{
			TargetID: set.SymbolIDs[0],
			NewText:  "func checkLimit(amount int) {}\n\nfunc Transfer(x int) {}",
		}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 0)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{set})
	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Violations[0], "Transfer")
}

func TestEngine_RejectsDesignHierarchyDamage(t *testing.T) {
	snap, files := fixture(t)
	limits := snap.NodesNamed("Limits")
	require.Len(t, limits, 1)
	set := &impact.Set{
		Intent:  &intent.ChangeIntent{ID: "INT-001", Kind: intent.KindClarify, Rationale: "clarify limits"},
		NodeIDs: []string{limits[0].ID},
	}

	// Replacing a level-1 section with a level-3 heading skips a level.
	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{
			TargetID: limits[0].ID,
			NewText:  "### Limits\n\nDaily limits apply.\n",
		}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 0)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{set})
	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Violations[0], "malformed")
}

func TestEngine_RejectsEditOutsideSet(t *testing.T) {
	snap, files := fixture(t)
	set := transferSet(t, snap)

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		respond(&Proposal{Edits: []ProposedEdit{{TargetID: "not-a-target", NewText: "x"}}}),
	}}
	eng, err := NewEngine(stub, snap, files, 0)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{set})
	var failure *FailureError
	require.True(t, errors.As(err, &failure))
	assert.Contains(t, failure.Violations[0], "outside the impact set")
}

func TestEngine_CrossIntentOverlapIsConflict(t *testing.T) {
	snap, files := fixture(t)
	setA := transferSet(t, snap)
	setB := &impact.Set{
		Intent:    &intent.ChangeIntent{ID: "INT-002", Kind: intent.KindModify, Rationale: "other change"},
		SymbolIDs: setA.SymbolIDs,
	}

	stub := &stubGenerator{responses: []func(Request) (*Proposal, error){
		func(req Request) (*Proposal, error) {
			return &Proposal{Edits: []ProposedEdit{{TargetID: req.Targets[0].ID, NewText: guardedTransfer}}}, nil
		},
	}}
	eng, err := NewEngine(stub, snap, files, 0)
	require.NoError(t, err)

	_, err = eng.GeneratePatches(context.Background(), []*impact.Set{setA, setB})
	require.Error(t, err)

	var conflict *patch.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ElementsMatch(t, []string{"INT-001", "INT-002"}, conflict.IntentIDs)
}
