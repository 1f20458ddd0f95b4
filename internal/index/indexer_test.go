package index

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsync/internal/extractor"
	"reqsync/internal/storage"
)

const ledgerSrc = `package ledger

// Transfer moves funds between accounts. [REQ-PAY-002]
func Transfer(from, to string, amount int) error {
	validate(amount)
	return nil
}

func validate(amount int) {}

// Account holds a balance.
type Account struct {
	Balance int
}
`

const ledgerDoc = `# Transfers

The ` + "`Transfer`" + ` operation. [REQ-PAY-002]
`

func writeProject(t *testing.T) (codeRoot, designPath string) {
	t.Helper()
	root := t.TempDir()
	codeRoot = filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(codeRoot, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(codeRoot, "ledger.go"), []byte(ledgerSrc), 0644))
	designPath = filepath.Join(root, "design.md")
	require.NoError(t, os.WriteFile(designPath, []byte(ledgerDoc), 0644))
	return codeRoot, designPath
}

func TestIndexer_Build(t *testing.T) {
	codeRoot, designPath := writeProject(t)

	idx, err := NewIndexer(nil)
	require.NoError(t, err)

	snap, err := idx.Build(context.Background(), codeRoot, designPath)
	require.NoError(t, err)

	require.Len(t, snap.Symbols, 3)
	require.Len(t, snap.Design.Nodes(), 1)

	transfer := snap.SymbolsNamed("transfer")
	require.Len(t, transfer, 1, "name lookup is case-insensitive")
	assert.Equal(t, extractor.KindFunction, transfer[0].Kind)

	validate := snap.SymbolsNamed("validate")
	require.Len(t, validate, 1)

	assert.Equal(t, []string{validate[0].ID}, snap.Calls(transfer[0].ID))
	assert.Equal(t, []string{transfer[0].ID}, snap.Callers(validate[0].ID))
}

func TestIndexer_Deterministic(t *testing.T) {
	codeRoot, designPath := writeProject(t)

	idx, err := NewIndexer(nil)
	require.NoError(t, err)

	first, err := idx.Build(context.Background(), codeRoot, designPath)
	require.NoError(t, err)
	second, err := idx.Build(context.Background(), codeRoot, designPath)
	require.NoError(t, err)

	a, _ := json.Marshal(first.Symbols)
	b, _ := json.Marshal(second.Symbols)
	assert.Equal(t, string(a), string(b), "identical inputs yield identical symbol tables")
	assert.Equal(t, first.Design.Outline(), second.Design.Outline())
}

func TestIndexer_ParseErrorAbortsBuild(t *testing.T) {
	codeRoot, designPath := writeProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(codeRoot, "broken.go"), []byte("package ledger\nfunc broken( {"), 0644))

	idx, err := NewIndexer(nil)
	require.NoError(t, err)

	_, err = idx.Build(context.Background(), codeRoot, designPath)
	var parseErr *extractor.ParseError
	require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
	assert.Contains(t, parseErr.Path, "broken.go")
}

func TestIndexer_CacheHitAndInvalidation(t *testing.T) {
	codeRoot, designPath := writeProject(t)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()

	idx, err := NewIndexer(store)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := idx.Build(ctx, codeRoot, designPath)
	require.NoError(t, err)

	// Second build is served from the cache and must be identical.
	second, err := idx.Build(ctx, codeRoot, designPath)
	require.NoError(t, err)
	a, _ := json.Marshal(first.Symbols)
	b, _ := json.Marshal(second.Symbols)
	assert.Equal(t, string(a), string(b))

	// Touching the file with new content invalidates its cache entry.
	file := filepath.Join(codeRoot, "ledger.go")
	updated := ledgerSrc + "\nfunc Added() {}\n"
	require.NoError(t, os.WriteFile(file, []byte(updated), 0644))
	info, err := os.Stat(file)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(file, info.ModTime().Add(1e9), info.ModTime().Add(1e9)))

	third, err := idx.Build(ctx, codeRoot, designPath)
	require.NoError(t, err)
	assert.Len(t, third.SymbolsNamed("Added"), 1, "changed file is re-parsed")
}

func TestIndexer_BuildInMemory(t *testing.T) {
	idx, err := NewIndexer(nil)
	require.NoError(t, err)

	snap, err := idx.BuildInMemory(".", "design.md", ledgerDoc, map[string]string{
		"ledger.go": ledgerSrc,
	})
	require.NoError(t, err)
	assert.Len(t, snap.Symbols, 3)
	assert.Len(t, snap.SymbolsNamed("Transfer"), 1)
}
