package generate

import (
	"context"
	"fmt"
	"strings"

	"reqsync/internal/extractor"
	"reqsync/internal/intent"
)

// Target is one artifact element a patch request covers: a design section
// or a code symbol, with its current text.
type Target struct {
	ID   string         `json:"id"`
	Kind string         `json:"kind"` // "symbol" or "node"
	Name string         `json:"name"`
	File string         `json:"file"`
	Span extractor.Span `json:"span"`
	Text string         `json:"text"`
}

// Request is everything the external generation capability receives: the
// intent rationale, the current text of every target, the structural
// constraints, and, on a retry, the violations of the previous attempt.
type Request struct {
	Intent      *intent.ChangeIntent
	Targets     []Target
	Constraints []string
	Violations  []string
}

// ProposedEdit is a full replacement for one target's text.
type ProposedEdit struct {
	TargetID string `json:"target_id"`
	NewText  string `json:"new_text"`
}

// Proposal is the oracle's answer. It is untrusted until the structural
// checker accepts it.
type Proposal struct {
	Edits []ProposedEdit `json:"edits"`
}

// Generator is the external generation capability. Any backend (remote
// API, local model, test stub) implements this one operation.
type Generator interface {
	ProposePatch(ctx context.Context, req Request) (*Proposal, error)
}

// FailureError reports an intent whose proposals never satisfied the
// structural constraints within the retry bound, or whose backend failed.
// No files are touched for the intent.
type FailureError struct {
	IntentID   string
	Attempts   int
	Violations []string
	Err        error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed for intent %s after %d attempt(s): %v", e.IntentID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("generation failed for intent %s after %d attempt(s): %s",
		e.IntentID, e.Attempts, strings.Join(e.Violations, "; "))
}

func (e *FailureError) Unwrap() error {
	return e.Err
}
