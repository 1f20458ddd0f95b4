package index

import (
	"context"
	"fmt"
	"os"
	"sort"

	"reqsync/internal/crawler"
	"reqsync/internal/design"
	"reqsync/internal/extractor"
	"reqsync/internal/storage"
)

// Indexer orchestrates design and code indexing into a Snapshot.
type Indexer struct {
	crawler *crawler.Crawler
	ext     *extractor.Extractor
	cache   storage.SymbolCache
}

// NewIndexer creates a new indexer. The cache may be nil, in which case
// every file is parsed on every run.
func NewIndexer(cache storage.SymbolCache) (*Indexer, error) {
	ext, err := extractor.NewExtractor("go")
	if err != nil {
		return nil, err
	}
	return &Indexer{
		crawler: crawler.NewCrawler(),
		ext:     ext,
		cache:   cache,
	}, nil
}

// Build indexes the source tree and design document from disk. Files whose
// modification time matches the cache are loaded from it; everything else is
// re-parsed. Any parse failure aborts the build — there is no partial
// snapshot.
func (i *Indexer) Build(ctx context.Context, codeRoot, designPath string) (*Snapshot, error) {
	doc, err := i.parseDesign(designPath)
	if err != nil {
		return nil, err
	}

	files, err := i.crawler.ListGoFiles(codeRoot)
	if err != nil {
		return nil, err
	}

	var symbols []*extractor.CodeSymbol
	for _, file := range files {
		syms, err := i.fileSymbols(ctx, file)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, syms...)
	}

	return newSnapshot(codeRoot, doc, symbols), nil
}

// BuildInMemory indexes file contents without touching disk or the cache.
// The validator uses this to re-index a patched copy of the artifacts.
func (i *Indexer) BuildInMemory(codeRoot, designPath, designContent string, codeFiles map[string]string) (*Snapshot, error) {
	doc, err := design.Parse(designPath, designContent)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(codeFiles))
	for path := range codeFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var symbols []*extractor.CodeSymbol
	for _, path := range paths {
		syms, err := i.ext.Extract(path, []byte(codeFiles[path]))
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, syms...)
	}

	return newSnapshot(codeRoot, doc, symbols), nil
}

func (i *Indexer) parseDesign(designPath string) (*design.Document, error) {
	if designPath == "" {
		return design.Parse("", "")
	}
	content, err := os.ReadFile(designPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read design document %s: %w", designPath, err)
	}
	return design.Parse(designPath, string(content))
}

func (i *Indexer) fileSymbols(ctx context.Context, file string) ([]*extractor.CodeSymbol, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", file, err)
	}
	mtime := info.ModTime().UnixNano()

	if i.cache != nil {
		cached, ok, err := i.cache.FileMtime(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read cache for %s: %w", file, err)
		}
		if ok && cached == mtime {
			return i.cache.LoadFileSymbols(ctx, file)
		}
	}

	syms, err := i.ext.ExtractFromFile(file)
	if err != nil {
		return nil, err
	}

	if i.cache != nil {
		if err := i.cache.SaveFileSymbols(ctx, file, mtime, syms); err != nil {
			return nil, fmt.Errorf("failed to cache %s: %w", file, err)
		}
	}
	return syms, nil
}
