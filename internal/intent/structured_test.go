package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const changeYAML = `change_type: add_feature
feature_name: negative amount guard
description: transfer_funds must reject negative amounts
affected_components:
  - transfer_funds
requirements:
  - "Add a guard clause to ` + "`transfer_funds`" + ` rejecting negative amounts"
acceptance_criteria:
  - "transfer_funds(-1) is rejected"
`

func TestInterpretStructured_YAML(t *testing.T) {
	snap := testSnapshot(t)
	p := NewInterpreter(snap)

	intents, err := p.InterpretStructured([]byte(changeYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, intents, 1, "requirement line and affected component share a target")

	ci := intents[0]
	assert.Equal(t, KindAdd, ci.Kind)
	syms := snap.SymbolsNamed("transfer_funds")
	require.Len(t, syms, 1)
	assert.Equal(t, syms[0].ID, ci.Target)
	assert.Equal(t, []string{"transfer_funds(-1) is rejected"}, ci.AcceptanceCriteria)
	assert.Contains(t, ci.Hints, "guard")
}

func TestInterpretStructured_JSON(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	intents, err := p.InterpretStructured([]byte(`{
		"change_type": "fix_bug",
		"feature_name": "limits",
		"description": "daily limit off by one",
		"requirements": ["Fix the boundary check in `+"`DailyLimit`"+`"]
	}`), "json")
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, KindModify, intents[0].Kind)
	assert.NotEmpty(t, intents[0].Target)
}

func TestInterpretStructured_SchemaViolations(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))

	t.Run("missing required field", func(t *testing.T) {
		_, err := p.InterpretStructured([]byte("change_type: add_feature\n"), "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation")
	})

	t.Run("bad change type", func(t *testing.T) {
		_, err := p.InterpretStructured([]byte(
			"change_type: destroy_everything\nfeature_name: x\ndescription: y\n"), "yaml")
		require.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := p.InterpretStructured([]byte(
			"change_type: other\nfeature_name: x\ndescription: y\nbogus: true\n"), "yaml")
		require.Error(t, err)
	})
}

func TestInterpretStructured_EmptyDocument(t *testing.T) {
	p := NewInterpreter(testSnapshot(t))
	intents, err := p.InterpretStructured([]byte(""), "yaml")
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestKindForChangeType(t *testing.T) {
	assert.Equal(t, KindAdd, kindForChangeType("add_feature"))
	assert.Equal(t, KindModify, kindForChangeType("refactor"))
	assert.Equal(t, KindClarify, kindForChangeType("other"))
}
