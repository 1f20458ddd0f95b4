package patch

import (
	"fmt"
	"sort"
	"strings"

	"reqsync/internal/extractor"
)

// Edit replaces one line span of one file with new text. The target ID
// records which symbol or design section the edit addresses.
type Edit struct {
	TargetID string         `json:"target_id"`
	File     string         `json:"file"`
	Span     extractor.Span `json:"span"`
	NewText  string         `json:"new_text"`
}

// Patch is the ordered edit sequence one intent produced.
type Patch struct {
	IntentID string `json:"intent_id"`
	Edits    []Edit `json:"edits"`
}

// ConflictError reports intents claiming overlapping spans. Both intents
// are named; neither wins.
type ConflictError struct {
	IntentIDs []string
	File      string
	Detail    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict between intents %s in %s: %s",
		strings.Join(e.IntentIDs, ", "), e.File, e.Detail)
}

// DetectOverlap checks all patches pairwise for same-file span overlap.
// Overlap is a conflict, never a silent overwrite.
func DetectOverlap(patches []*Patch) error {
	type claim struct {
		intentID string
		edit     Edit
	}
	byFile := map[string][]claim{}
	for _, p := range patches {
		for _, e := range p.Edits {
			byFile[e.File] = append(byFile[e.File], claim{intentID: p.IntentID, edit: e})
		}
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		claims := byFile[file]
		sort.SliceStable(claims, func(i, j int) bool {
			return claims[i].edit.Span.StartLine < claims[j].edit.Span.StartLine
		})
		for i := 1; i < len(claims); i++ {
			prev, cur := claims[i-1], claims[i]
			if !prev.edit.Span.Overlaps(cur.edit.Span) {
				continue
			}
			ids := []string{prev.intentID, cur.intentID}
			sort.Strings(ids)
			if ids[0] == ids[1] {
				ids = ids[:1]
			}
			return &ConflictError{
				IntentIDs: ids,
				File:      file,
				Detail: fmt.Sprintf("edits at lines %d-%d and %d-%d overlap",
					prev.edit.Span.StartLine, prev.edit.Span.EndLine,
					cur.edit.Span.StartLine, cur.edit.Span.EndLine),
			}
		}
	}
	return nil
}
