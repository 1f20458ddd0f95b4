package intent

// Kind classifies what a change intent asks for.
type Kind string

const (
	KindAdd     Kind = "add"
	KindModify  Kind = "modify"
	KindRemove  Kind = "remove"
	KindClarify Kind = "clarify"
)

// TargetKind says what an explicit target refers to.
type TargetKind string

const (
	TargetSymbol TargetKind = "symbol"
	TargetNode   TargetKind = "node"
)

// ChangeIntent is one atomic, classified unit of requested change. IDs are
// assigned in interpretation order (INT-001, INT-002, ...) so a caller can
// reference them in a disambiguation re-run.
type ChangeIntent struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Rationale string     `json:"rationale"`
	Hints     []string   `json:"hints,omitempty"`
	Target    string     `json:"target,omitempty"`
	TargetKd  TargetKind `json:"target_kind,omitempty"`

	// UnknownRefs are names the requirement text explicitly quoted but
	// that match nothing in the index. They make the intent ambiguous
	// rather than silently falling back to keyword matching.
	UnknownRefs []string `json:"unknown_refs,omitempty"`

	// AcceptanceCriteria carries structured-input acceptance lines for
	// the test synthesizer; free-text input leaves it empty.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}
