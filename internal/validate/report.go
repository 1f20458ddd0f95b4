package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CoverageStatus grades how well an intent's target set survived into the
// patched artifacts.
type CoverageStatus string

const (
	StatusCovered  CoverageStatus = "covered"
	StatusPartial  CoverageStatus = "partial"
	StatusOrphaned CoverageStatus = "orphaned"
)

// IntentResult is the per-intent verdict.
type IntentResult struct {
	IntentID string         `json:"intent_id"`
	Status   CoverageStatus `json:"status"`
	Missing  []string       `json:"missing,omitempty"`
}

// DanglingRef is a reference that survives in one artifact while its target
// was removed from the other.
type DanglingRef struct {
	FromID string `json:"from_id"`
	Ref    string `json:"ref"`
	Kind   string `json:"kind"` // "call" or "design_ref"
}

// Report is the machine-readable validation outcome for one run.
type Report struct {
	Version     string        `json:"version"`
	RunID       string        `json:"run_id"`
	GeneratedAt string        `json:"generated_at"`
	Pass        bool          `json:"pass"`
	Intents     []IntentResult `json:"intents"`
	Dangling    []DanglingRef  `json:"dangling,omitempty"`
	Notes       []string       `json:"notes,omitempty"`
}

const reportSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["version", "run_id", "generated_at", "pass", "intents"],
	"properties": {
		"version": {"type": "string"},
		"run_id": {"type": "string", "minLength": 1},
		"generated_at": {"type": "string"},
		"pass": {"type": "boolean"},
		"intents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["intent_id", "status"],
				"properties": {
					"intent_id": {"type": "string"},
					"status": {"type": "string", "enum": ["covered", "partial", "orphaned"]},
					"missing": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"dangling": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from_id", "ref", "kind"],
				"properties": {
					"from_id": {"type": "string"},
					"ref": {"type": "string"},
					"kind": {"type": "string", "enum": ["call", "design_ref"]}
				}
			}
		},
		"notes": {"type": "array", "items": {"type": "string"}}
	}
}`

var compiledReportSchema = jsonschema.MustCompileString("validation_report.json", reportSchema)

func NewReport(runID string) *Report {
	return &Report{
		Version:     "v1",
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Save writes the report as schema-checked JSON.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := compiledReportSchema.Validate(raw); err != nil {
		return fmt.Errorf("validation report failed its own schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}
