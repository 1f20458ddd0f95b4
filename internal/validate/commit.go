package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CommitAtomic writes the patched contents to disk with all-or-nothing
// semantics: every file is staged next to its destination first, originals
// are held in memory, and on any rename failure the already-replaced files
// are restored before returning.
func CommitAtomic(files map[string]string) error {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	backups := map[string][]byte{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to back up %s: %w", path, err)
		}
		backups[path] = data
	}

	staged := map[string]string{}
	for _, path := range paths {
		stage := stagePath(path)
		if err := os.MkdirAll(filepath.Dir(stage), 0755); err != nil {
			removeStaged(staged)
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
		if err := os.WriteFile(stage, []byte(files[path]), 0644); err != nil {
			removeStaged(staged)
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
		staged[path] = stage
	}

	var committed []string
	for _, path := range paths {
		if err := os.Rename(staged[path], path); err != nil {
			restore(committed, backups)
			removeStaged(staged)
			return fmt.Errorf("failed to commit %s, all files restored: %w", path, err)
		}
		committed = append(committed, path)
	}
	return nil
}

func stagePath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".reqsync-stage")
}

func removeStaged(staged map[string]string) {
	for _, stage := range staged {
		os.Remove(stage)
	}
}

func restore(committed []string, backups map[string][]byte) {
	for _, path := range committed {
		if data, ok := backups[path]; ok {
			os.WriteFile(path, data, 0644)
		} else {
			os.Remove(path)
		}
	}
}
