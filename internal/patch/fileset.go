package patch

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// FileSet is an in-memory copy of the artifacts a run may touch. Patches
// are applied here first; disk is written only after validation passes.
type FileSet struct {
	files map[string]string
}

func NewFileSet() *FileSet {
	return &FileSet{files: map[string]string{}}
}

// LoadFiles reads the given paths from disk into the set.
func LoadFiles(paths []string) (*FileSet, error) {
	fs := NewFileSet()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		fs.files[path] = string(data)
	}
	return fs, nil
}

func (fs *FileSet) Add(path, content string) {
	fs.files[path] = content
}

func (fs *FileSet) Content(path string) (string, bool) {
	c, ok := fs.files[path]
	return c, ok
}

// Paths returns the file paths in sorted order.
func (fs *FileSet) Paths() []string {
	out := make([]string, 0, len(fs.files))
	for p := range fs.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (fs *FileSet) Clone() *FileSet {
	out := NewFileSet()
	for p, c := range fs.files {
		out.files[p] = c
	}
	return out
}

// Apply rewrites the set with every edit of every patch. Edits must be
// overlap-free (DetectOverlap has run); within a file they apply bottom-up
// so earlier line spans stay valid.
func (fs *FileSet) Apply(patches []*Patch) error {
	byFile := map[string][]Edit{}
	for _, p := range patches {
		for _, e := range p.Edits {
			byFile[e.File] = append(byFile[e.File], e)
		}
	}

	for file, edits := range byFile {
		content, ok := fs.files[file]
		if !ok {
			return fmt.Errorf("patch targets unknown file %s", file)
		}
		lines := strings.Split(content, "\n")

		sort.SliceStable(edits, func(i, j int) bool {
			return edits[i].Span.StartLine > edits[j].Span.StartLine
		})
		for _, e := range edits {
			start, end := e.Span.StartLine, e.Span.EndLine
			if start < 1 || end < start || end > len(lines) {
				return fmt.Errorf("edit span %d-%d out of range for %s (%d lines)",
					start, end, file, len(lines))
			}
			newLines := strings.Split(strings.TrimSuffix(e.NewText, "\n"), "\n")
			rebuilt := make([]string, 0, len(lines)-(end-start+1)+len(newLines))
			rebuilt = append(rebuilt, lines[:start-1]...)
			rebuilt = append(rebuilt, newLines...)
			rebuilt = append(rebuilt, lines[end:]...)
			lines = rebuilt
		}
		fs.files[file] = strings.Join(lines, "\n")
	}
	return nil
}
