package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// RequirementChange is the structured requirement-change document. It
// mirrors the free-text flow but lets a caller state targets and
// acceptance criteria explicitly.
type RequirementChange struct {
	ChangeType         string   `json:"change_type" yaml:"change_type"`
	FeatureName        string   `json:"feature_name" yaml:"feature_name"`
	Description        string   `json:"description" yaml:"description"`
	AffectedComponents []string `json:"affected_components,omitempty" yaml:"affected_components"`
	DesignDocSections  []string `json:"design_doc_sections,omitempty" yaml:"design_doc_sections"`
	Requirements       []string `json:"requirements,omitempty" yaml:"requirements"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" yaml:"acceptance_criteria"`
}

const requirementChangeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["change_type", "feature_name", "description"],
	"properties": {
		"change_type": {
			"type": "string",
			"enum": ["add_feature", "modify_feature", "fix_bug", "refactor", "optimize", "other"]
		},
		"feature_name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"affected_components": {"type": "array", "items": {"type": "string"}},
		"design_doc_sections": {"type": "array", "items": {"type": "string"}},
		"requirements": {"type": "array", "items": {"type": "string"}},
		"acceptance_criteria": {"type": "array", "items": {"type": "string"}}
	},
	"additionalProperties": false
}`

var changeSchema = jsonschema.MustCompileString("requirement_change.json", requirementChangeSchema)

// InterpretStructured parses and validates a YAML or JSON RequirementChange
// and turns each requirement line into a ChangeIntent.
func (p *Interpreter) InterpretStructured(data []byte, format string) ([]*ChangeIntent, error) {
	var raw interface{}
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse requirement change yaml: %w", err)
		}
		// Normalize through JSON so schema validation sees JSON types.
		buf, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize requirement change: %w", err)
		}
		if err := json.Unmarshal(buf, &raw); err != nil {
			return nil, fmt.Errorf("failed to normalize requirement change: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse requirement change json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported requirement change format: %s", format)
	}

	if raw == nil {
		return nil, nil
	}
	if err := changeSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("requirement change failed schema validation: %w", err)
	}

	buf, _ := json.Marshal(raw)
	var rc RequirementChange
	if err := json.Unmarshal(buf, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode requirement change: %w", err)
	}
	return p.interpretChange(&rc), nil
}

func (p *Interpreter) interpretChange(rc *RequirementChange) []*ChangeIntent {
	defaultKind := kindForChangeType(rc.ChangeType)
	featureHints := keywordHints(rc.FeatureName + " " + rc.Description)

	var candidates []*ChangeIntent
	for _, req := range rc.Requirements {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		ci := p.interpretSegment(req)
		if classify(req) == KindClarify {
			// No verb cue in the line itself: inherit the change type.
			ci.Kind = defaultKind
		}
		ci.Hints = unionHints(ci.Hints, featureHints)
		ci.AcceptanceCriteria = rc.AcceptanceCriteria
		candidates = append(candidates, ci)
	}

	// Components and sections named without a requirement line still
	// deserve an intent so the change reaches them.
	for _, comp := range rc.AffectedComponents {
		if p.coveredBy(candidates, comp) {
			continue
		}
		ci := &ChangeIntent{
			Kind:               defaultKind,
			Rationale:          rc.Description,
			Hints:              unionHints(keywordHints(comp), featureHints),
			AcceptanceCriteria: rc.AcceptanceCriteria,
		}
		p.bindTarget(ci, "`"+comp+"`")
		candidates = append(candidates, ci)
	}
	for _, section := range rc.DesignDocSections {
		if p.coveredBy(candidates, section) {
			continue
		}
		ci := &ChangeIntent{
			Kind:               KindClarify,
			Rationale:          rc.Description,
			Hints:              unionHints(keywordHints(section), featureHints),
			AcceptanceCriteria: rc.AcceptanceCriteria,
		}
		p.bindTarget(ci, "`"+section+"`")
		candidates = append(candidates, ci)
	}

	return finalize(mergeByTarget(candidates))
}

// coveredBy reports whether an existing candidate already targets the named
// symbol or section.
func (p *Interpreter) coveredBy(candidates []*ChangeIntent, name string) bool {
	var ids []string
	for _, sym := range p.snap.SymbolsNamed(name) {
		ids = append(ids, sym.ID)
	}
	for _, node := range p.snap.NodesNamed(name) {
		ids = append(ids, node.ID)
	}
	for _, c := range candidates {
		for _, id := range ids {
			if c.Target == id {
				return true
			}
		}
	}
	return false
}

func kindForChangeType(changeType string) Kind {
	switch changeType {
	case "add_feature":
		return KindAdd
	case "modify_feature", "fix_bug", "refactor", "optimize":
		return KindModify
	default:
		return KindClarify
	}
}
