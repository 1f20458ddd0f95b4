package synth

import (
	"fmt"
	"strings"

	"reqsync/internal/extractor"
	"reqsync/internal/intent"
)

type param struct {
	typ      string
	variadic bool
}

// appendSkeleton adds a compile-checkable test function for the symbol to
// the (possibly empty) skeleton file content.
func appendSkeleton(existing string, sym *extractor.CodeSymbol, ci *intent.ChangeIntent) string {
	if sym.Kind == extractor.KindType {
		return existing
	}

	var b strings.Builder
	if existing == "" {
		b.WriteString("package " + sym.Package + "\n\nimport \"testing\"\n")
	} else {
		b.WriteString(existing)
	}
	b.WriteString("\n")

	params, results := parseSignature(sym.Signature)

	testName := "Test" + upperFirst(sym.Receiver+sym.Name)
	fmt.Fprintf(&b, "// %s_Callable exercises the updated signature of %s.\n", testName, sym.QualifiedName)
	fmt.Fprintf(&b, "// Change %s: %s\n", ci.ID, ci.Rationale)
	fmt.Fprintf(&b, "func %s_Callable(t *testing.T) {\n", testName)

	if sym.Receiver != "" {
		fmt.Fprintf(&b, "\tvar recv %s\n", sym.Receiver)
	}
	args := make([]string, 0, len(params))
	for i, p := range params {
		name := fmt.Sprintf("arg%d", i+1)
		typ := p.typ
		if p.variadic {
			typ = "[]" + typ
			name += "..."
		}
		fmt.Fprintf(&b, "\tvar arg%d %s\n", i+1, typ)
		args = append(args, name)
	}

	call := sym.Name + "(" + strings.Join(args, ", ") + ")"
	if sym.Receiver != "" {
		call = "recv." + call
	}
	switch {
	case results == 0:
		fmt.Fprintf(&b, "\t%s\n", call)
	default:
		blanks := strings.TrimSuffix(strings.Repeat("_, ", results), ", ")
		fmt.Fprintf(&b, "\t%s = %s\n", blanks, call)
	}

	for _, criterion := range ci.AcceptanceCriteria {
		fmt.Fprintf(&b, "\n\tt.Run(%q, func(t *testing.T) {\n\t\tt.Skip(\"pending manual verification\")\n\t})\n", criterion)
	}
	b.WriteString("}\n")
	return b.String()
}

// parseSignature reads the parameter types and result count out of a
// tree-sitter signature line like
// "func (u *User) Rename(first, last string, opts ...Option) (string, error)".
func parseSignature(sig string) ([]param, int) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sig), "func"))

	// Skip the receiver group.
	if strings.HasPrefix(s, "(") {
		_, rest := balancedGroup(s)
		s = strings.TrimSpace(rest)
	}
	// Skip the function name.
	if i := strings.Index(s, "("); i >= 0 {
		s = s[i:]
	}
	paramList, rest := balancedGroup(s)

	var params []param
	carry := ""
	chunks := splitTopLevel(paramList)
	for i := len(chunks) - 1; i >= 0; i-- {
		chunk := strings.TrimSpace(chunks[i])
		if chunk == "" {
			continue
		}
		typ := chunk
		if sp := strings.IndexAny(chunk, " \t"); sp >= 0 {
			typ = strings.TrimSpace(chunk[sp+1:])
		} else if carry != "" && isIdentifier(chunk) {
			// Grouped names: "from, to string".
			typ = carry
		}
		variadic := strings.HasPrefix(typ, "...")
		typ = strings.TrimPrefix(typ, "...")
		carry = typ
		params = append([]param{{typ: typ, variadic: variadic}}, params...)
	}

	rest = strings.TrimSpace(rest)
	results := 0
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "("):
		group, _ := balancedGroup(rest)
		results = len(splitTopLevel(group))
	default:
		results = 1
	}
	return params, results
}

// balancedGroup returns the content of the leading parenthesized group and
// whatever follows it.
func balancedGroup(s string) (string, string) {
	if !strings.HasPrefix(s, "(") {
		return "", s
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:]
			}
		}
	}
	return s[1:], ""
}

func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		out = append(out, s[start:])
	}
	return out
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return s != ""
}
