package synth

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reqsync/internal/impact"
	"reqsync/internal/index"
	"reqsync/internal/intent"
)

// TestCase is one row of the generated test specification.
type TestCase struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Item        string   `json:"item"`
	Conditions  []string `json:"conditions"`
	Steps       []string `json:"steps"`
	Expected    []string `json:"expected_results"`
	Status      string   `json:"status"`
}

// TestSpecification collects the generated cases plus Go test skeletons for
// the changed symbols. It is a derived artifact: nothing here feeds back
// into the trace graph.
type TestSpecification struct {
	Title     string
	RunID     string
	CreatedAt time.Time
	Cases     []TestCase
	Skeletons map[string]string // file name -> Go test source
}

// GenerateTestSpec builds the specification for one run's impact sets.
func GenerateTestSpec(runID string, snap *index.Snapshot, sets []*impact.Set) *TestSpecification {
	spec := &TestSpecification{
		Title:     "Generated Test Specification",
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Skeletons: map[string]string{},
	}

	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("TC-%03d", seq)
	}

	for _, set := range sets {
		for _, row := range casesForIntent(set.Intent) {
			row.ID = nextID()
			spec.Cases = append(spec.Cases, row)
		}

		for _, symID := range set.SymbolIDs {
			sym, ok := snap.Symbol(symID)
			if !ok {
				continue
			}
			row := TestCase{
				ID:          nextID(),
				Category:    categoryFor(set.Intent.Kind),
				SubCategory: "signature",
				Item:        fmt.Sprintf("%s remains callable", sym.QualifiedName),
				Conditions:  []string{fmt.Sprintf("`%s` compiles", sym.Signature)},
				Steps:       []string{fmt.Sprintf("Invoke %s with representative arguments", sym.Name)},
				Expected:    []string{"The call compiles and returns without panicking"},
				Status:      "not run",
			}
			spec.Cases = append(spec.Cases, row)

			name := strings.TrimSuffix(sym.File, ".go") + "_generated_test.go"
			spec.Skeletons[name] = appendSkeleton(spec.Skeletons[name], sym, set.Intent)
		}
	}
	return spec
}

// casesForIntent emits the fixed category rows per change kind: basic and
// boundary always, exception for additions and modifications, regression
// for everything that touches existing behavior.
func casesForIntent(ci *intent.ChangeIntent) []TestCase {
	subject := ci.Target
	if subject == "" {
		subject = ci.Rationale
	}

	rows := []TestCase{
		{
			Category:    categoryFor(ci.Kind),
			SubCategory: "basic",
			Item:        fmt.Sprintf("%s: normal path", subject),
			Conditions:  []string{"Preconditions from the requirement hold"},
			Steps:       []string{fmt.Sprintf("Execute the behavior described by %s", ci.ID)},
			Expected:    expectedFor(ci),
			Status:      "not run",
		},
		{
			Category:    categoryFor(ci.Kind),
			SubCategory: "boundary",
			Item:        fmt.Sprintf("%s: boundary values", subject),
			Conditions:  []string{"Inputs at the edges of the valid range"},
			Steps:       []string{"Repeat the normal path with minimum and maximum inputs"},
			Expected:    []string{"Behavior matches the requirement at both edges"},
			Status:      "not run",
		},
	}

	if ci.Kind == intent.KindAdd || ci.Kind == intent.KindModify {
		rows = append(rows, TestCase{
			Category:    categoryFor(ci.Kind),
			SubCategory: "exception",
			Item:        fmt.Sprintf("%s: invalid input", subject),
			Conditions:  []string{"Inputs outside the valid range"},
			Steps:       []string{"Execute the behavior with invalid inputs"},
			Expected:    []string{"An error is returned, no partial state change"},
			Status:      "not run",
		})
	}
	if ci.Kind != intent.KindAdd {
		rows = append(rows, TestCase{
			Category:    categoryFor(ci.Kind),
			SubCategory: "regression",
			Item:        fmt.Sprintf("%s: existing behavior preserved", subject),
			Conditions:  []string{"Scenarios unrelated to the change"},
			Steps:       []string{"Re-run the pre-change scenarios"},
			Expected:    []string{"Results are identical to the pre-change run"},
			Status:      "not run",
		})
	}
	return rows
}

func categoryFor(kind intent.Kind) string {
	switch kind {
	case intent.KindAdd:
		return "new feature"
	case intent.KindModify:
		return "changed feature"
	case intent.KindRemove:
		return "removal"
	default:
		return "clarification"
	}
}

func expectedFor(ci *intent.ChangeIntent) []string {
	if len(ci.AcceptanceCriteria) > 0 {
		return append([]string(nil), ci.AcceptanceCriteria...)
	}
	return []string{ci.Rationale}
}

// Markdown renders the specification with the test cases as a table.
func (s *TestSpecification) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + s.Title + "\n\n")
	b.WriteString("- Run: " + s.RunID + "\n")
	b.WriteString("- Generated: " + s.CreatedAt.Format("2006-01-02") + "\n\n")

	b.WriteString("## Test Cases\n\n")
	b.WriteString("| ID | Category | Sub-category | Item | Conditions | Steps | Expected | Status |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- |\n")
	for _, tc := range s.Cases {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			tc.ID, tc.Category, tc.SubCategory, tc.Item,
			strings.Join(tc.Conditions, "<br>"),
			strings.Join(tc.Steps, "<br>"),
			strings.Join(tc.Expected, "<br>"),
			tc.Status)
	}

	if len(s.Skeletons) > 0 {
		b.WriteString("\n## Test Skeletons\n\n")
		names := make([]string, 0, len(s.Skeletons))
		for name := range s.Skeletons {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "### `%s`\n\n```go\n%s```\n\n", name, s.Skeletons[name])
		}
	}
	return b.String()
}
