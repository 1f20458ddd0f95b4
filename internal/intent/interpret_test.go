package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsync/internal/index"
)

const ledgerSrc = `package ledger

// transfer_funds moves money between accounts.
func transfer_funds(from, to string, amount int) error {
	return nil
}

// DailyLimit returns the daily cap.
func DailyLimit(account string) int {
	return 0
}
`

const ledgerDoc = `# Transfers

The ` + "`transfer_funds`" + ` operation.

# Limits

Daily limits.
`

func testSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	idx, err := index.NewIndexer(nil)
	require.NoError(t, err)
	snap, err := idx.BuildInMemory(".", "design.md", ledgerDoc, map[string]string{
		"ledger.go": ledgerSrc,
	})
	require.NoError(t, err)
	return snap
}

func TestInterpretText_Empty(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))
	assert.Empty(t, p.InterpretText(""))
	assert.Empty(t, p.InterpretText("\n\n  \n"))
}

func TestInterpretText_ExplicitTarget(t *testing.T) {
	snap := testSnapshot(t)
	p := NewInterpreter(snap)

	intents := p.InterpretText("Add input validation to function `transfer_funds` to reject negative amounts.")
	require.Len(t, intents, 1)

	ci := intents[0]
	assert.Equal(t, "INT-001", ci.ID)
	assert.Equal(t, KindAdd, ci.Kind)
	assert.Equal(t, TargetSymbol, ci.TargetKd)

	syms := snap.SymbolsNamed("transfer_funds")
	require.Len(t, syms, 1)
	assert.Equal(t, syms[0].ID, ci.Target)
	assert.Contains(t, ci.Hints, "negative")
	assert.Empty(t, ci.UnknownRefs)
}

func TestInterpretText_Classification(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	cases := []struct {
		text string
		kind Kind
	}{
		{"Add a new audit log.", KindAdd},
		{"Remove the legacy export.", KindRemove},
		{"Update the retry policy.", KindModify},
		{"Document the settlement flow.", KindClarify},
		{"The settlement flow.", KindClarify},
	}
	for _, tc := range cases {
		intents := p.InterpretText(tc.text)
		require.Len(t, intents, 1, tc.text)
		assert.Equal(t, tc.kind, intents[0].Kind, tc.text)
	}
}

func TestInterpretText_MergeSameTargetSameKind(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	intents := p.InterpretText(
		"Add validation to `transfer_funds`.\nAdd logging to `transfer_funds`.\n")
	require.Len(t, intents, 1, "same-target candidates of one kind are merged")

	ci := intents[0]
	assert.Equal(t, KindAdd, ci.Kind)
	assert.Contains(t, ci.Rationale, "validation")
	assert.Contains(t, ci.Rationale, "logging")
	assert.Contains(t, ci.Hints, "validation")
	assert.Contains(t, ci.Hints, "logging")
}

func TestInterpretText_SameTargetDifferentKindsStaySeparate(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	intents := p.InterpretText(
		"Remove `transfer_funds` entirely.\nAdd input validation to `transfer_funds`.\n")
	require.Len(t, intents, 2, "contradictory requests are not collapsed into one intent")

	assert.Equal(t, KindRemove, intents[0].Kind)
	assert.Equal(t, KindAdd, intents[1].Kind)
	assert.Equal(t, intents[0].Target, intents[1].Target, "both address the same symbol, for conflict detection downstream")
}

func TestInterpretText_UnknownQuotedName(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	intents := p.InterpretText("Fix the bug in `no_such_function`.")
	require.Len(t, intents, 1)
	assert.Empty(t, intents[0].Target)
	assert.Equal(t, []string{"no_such_function"}, intents[0].UnknownRefs)
}

func TestInterpretText_BulletsAndSentences(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	intents := p.InterpretText(`- Add logging to the limits check.
- Remove the stale cache.
`)
	require.Len(t, intents, 2)
	assert.Equal(t, KindAdd, intents[0].Kind)
	assert.Equal(t, KindRemove, intents[1].Kind)
	assert.Equal(t, "INT-002", intents[1].ID)
}

func TestInterpretText_SectionTarget(t *testing.T) {
	snap := testSnapshot(t)
	p := NewInterpreter(snap)

	intents := p.InterpretText("Clarify the `Limits` section.")
	require.Len(t, intents, 1)
	assert.Equal(t, TargetNode, intents[0].TargetKd)

	nodes := snap.NodesNamed("Limits")
	require.Len(t, nodes, 1)
	assert.Equal(t, nodes[0].ID, intents[0].Target)
}
