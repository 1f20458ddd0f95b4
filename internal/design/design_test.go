package design

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsync/internal/extractor"
)

const sampleDoc = `Intro paragraph before any heading.

# Payments

Overview of the payments domain. [REQ-PAY-001]

## Transfers

The ` + "`transfer_funds`" + ` operation moves money between accounts.
Implemented by ` + "`Ledger.Transfer`" + `. [REQ-PAY-002]

## Limits

Daily limits apply.

# Accounts

Account lifecycle. [REQ-ACC-001]
`

func TestParse_Tree(t *testing.T) {
	doc, err := Parse("design.md", sampleDoc)
	require.NoError(t, err)

	require.Len(t, doc.Root, 2)
	payments := doc.Root[0]
	assert.Equal(t, "Payments", payments.Title)
	require.Len(t, payments.Children, 2)
	assert.Equal(t, []string{"Payments", "Transfers"}, payments.Children[0].Path)

	transfers := payments.Children[0]
	assert.Equal(t, []string{"REQ-PAY-002"}, transfers.Tags)
	assert.ElementsMatch(t, []string{"transfer_funds", "Ledger.Transfer"}, transfers.CodeRefs)

	assert.Equal(t, "Intro paragraph before any heading.\n\n", doc.Preamble)
}

func TestParse_Spans(t *testing.T) {
	doc, err := Parse("design.md", sampleDoc)
	require.NoError(t, err)

	nodes := doc.Nodes()
	require.Len(t, nodes, 4)
	for i := 1; i < len(nodes); i++ {
		prev, cur := nodes[i-1], nodes[i]
		assert.Equal(t, prev.Span.EndLine+1, cur.Span.StartLine, "sections tile the file")
		assert.False(t, prev.Span.Overlaps(cur.Span))
	}
}

func TestParse_MalformedHierarchy(t *testing.T) {
	_, err := Parse("bad.md", "# Top\n\n### Skipped\n")
	require.Error(t, err)

	var parseErr *extractor.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "bad.md", parseErr.Path)
	assert.Equal(t, 3, parseErr.Line)
}

func TestParse_IgnoresHeadingsInCodeFences(t *testing.T) {
	doc, err := Parse("doc.md", "# Top\n\n```\n# not a heading\n```\n")
	require.NoError(t, err)
	assert.Len(t, doc.Nodes(), 1)
}

func TestRender_RoundTrip(t *testing.T) {
	doc, err := Parse("design.md", sampleDoc)
	require.NoError(t, err)

	rendered := doc.Render()
	assert.Equal(t, sampleDoc, rendered)

	again, err := Parse("design.md", rendered)
	require.NoError(t, err)
	assert.Equal(t, doc.Outline(), again.Outline())
}

func TestParse_StableNodeIDs(t *testing.T) {
	first, err := Parse("design.md", sampleDoc)
	require.NoError(t, err)
	second, err := Parse("design.md", sampleDoc)
	require.NoError(t, err)

	a, b := first.Nodes(), second.Nodes()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
}
