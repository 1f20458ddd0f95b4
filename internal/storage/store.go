package storage

import (
	"context"

	"reqsync/internal/extractor"
	"reqsync/internal/trace"
)

// Store combines the symbol cache and trace persistence capabilities.
type Store interface {
	SymbolCache
	TraceStore
	Close() error
}

// SymbolCache persists extracted symbols per file, keyed by modification
// time. A file whose mtime is unchanged is served from the cache; anything
// else is re-parsed and replaced.
type SymbolCache interface {
	// FileMtime returns the recorded mtime for a file, if cached.
	FileMtime(ctx context.Context, path string) (int64, bool, error)

	// SaveFileSymbols replaces the cached symbols of one file.
	SaveFileSymbols(ctx context.Context, path string, mtimeNS int64, symbols []*extractor.CodeSymbol) error

	// LoadFileSymbols returns the cached symbols of one file in span order.
	LoadFileSymbols(ctx context.Context, path string) ([]*extractor.CodeSymbol, error)

	// InvalidateFile drops a file and its symbols from the cache.
	InvalidateFile(ctx context.Context, path string) error
}

// TraceStore persists the traceability links for inspection between runs.
type TraceStore interface {
	// SaveTraceLinks replaces the stored link set.
	SaveTraceLinks(ctx context.Context, links []trace.Link) error

	// LoadTraceLinks returns all stored links in insertion order.
	LoadTraceLinks(ctx context.Context) ([]trace.Link, error)
}
