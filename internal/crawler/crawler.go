package crawler

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Crawler scans a directory for source files.
type Crawler struct {
	ignored []string
}

// NewCrawler creates a new crawler instance.
func NewCrawler() *Crawler {
	return &Crawler{
		ignored: []string{".git", "vendor", "node_modules", "testdata", ".reqsync"},
	}
}

// ListGoFiles walks the root directory and returns all non-test Go files in
// sorted order. Unlike a best-effort scan, any walk error aborts the listing:
// the indexer must see the whole tree or nothing.
func (c *Crawler) ListGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}

		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !strings.HasSuffix(d.Name(), ".go") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir is already lexical, but sort explicitly so snapshot identity
	// never depends on filesystem ordering.
	sort.Strings(files)
	return files, nil
}
