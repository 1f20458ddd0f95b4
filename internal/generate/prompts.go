package generate

import (
	"fmt"
	"strings"
)

// PromptBuilder constructs standardized prompts for patch proposals.
type PromptBuilder struct{}

func (pb *PromptBuilder) BuildPatchPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Role: Software Engineer keeping design documents and code in sync. Task: Propose replacement text for the targets below.\n")

	sb.WriteString("\n### REQUESTED CHANGE\n")
	fmt.Fprintf(&sb, "Kind: %s\n", req.Intent.Kind)
	fmt.Fprintf(&sb, "Rationale: %s\n", req.Intent.Rationale)
	if len(req.Intent.Hints) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(req.Intent.Hints, ", "))
	}

	sb.WriteString("\n### TARGETS\n")
	for _, t := range req.Targets {
		fmt.Fprintf(&sb, "--- target_id: %s (%s %s, %s lines %d-%d) ---\n",
			t.ID, t.Kind, t.Name, t.File, t.Span.StartLine, t.Span.EndLine)
		sb.WriteString(t.Text)
		if !strings.HasSuffix(t.Text, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n### CONSTRAINTS\n")
	for _, c := range req.Constraints {
		fmt.Fprintf(&sb, "- %s\n", c)
	}

	if len(req.Violations) > 0 {
		sb.WriteString("\n### PREVIOUS ATTEMPT REJECTED\n")
		sb.WriteString("Your last proposal violated these constraints. Fix them:\n")
		for _, v := range req.Violations {
			fmt.Fprintf(&sb, "- %s\n", v)
		}
	}

	sb.WriteString("\n### OUTPUT FORMAT\n")
	sb.WriteString("Respond with a JSON object only, no prose:\n")
	sb.WriteString(`{"edits": [{"target_id": "<id>", "new_text": "<full replacement text>"}]}` + "\n")
	sb.WriteString("Include an edit only for targets whose text must change. new_text replaces the target's entire span.\n")

	return sb.String()
}
