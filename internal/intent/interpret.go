package intent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"reqsync/internal/index"
)

// Interpreter segments requirement-change input into atomic ChangeIntents,
// bound against an index snapshot.
type Interpreter struct {
	snap *index.Snapshot
}

func NewInterpreter(snap *index.Snapshot) *Interpreter {
	return &Interpreter{snap: snap}
}

// InterpretFile dispatches on extension: .yaml/.yml/.json files are
// structured RequirementChange documents, anything else is free text.
func (p *Interpreter) InterpretFile(path string) ([]*ChangeIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirement change %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return p.InterpretStructured(data, "yaml")
	case ".json":
		return p.InterpretStructured(data, "json")
	default:
		return p.InterpretText(string(data)), nil
	}
}

// InterpretText splits free text into candidate intents, one per sentence or
// bullet, classifies each by verb cues, binds explicit targets, and merges
// candidates that share a target. Empty input yields zero intents.
func (p *Interpreter) InterpretText(text string) []*ChangeIntent {
	var candidates []*ChangeIntent
	for _, segment := range segments(text) {
		candidates = append(candidates, p.interpretSegment(segment))
	}
	return finalize(mergeByTarget(candidates))
}

func (p *Interpreter) interpretSegment(segment string) *ChangeIntent {
	ci := &ChangeIntent{
		Kind:      classify(segment),
		Rationale: segment,
		Hints:     keywordHints(segment),
	}
	p.bindTarget(ci, segment)
	return ci
}

// bindTarget looks for verbatim names in the segment. Backtick-quoted names
// bind on case-insensitive exact match against the index with confidence
// 1.0; a quoted name that matches nothing is recorded as unknown.
func (p *Interpreter) bindTarget(ci *ChangeIntent, segment string) {
	for _, ref := range quotedRefs(segment) {
		if ci.Target == "" && p.bindName(ci, ref) {
			continue
		}
		if !p.nameExists(ref) {
			ci.UnknownRefs = append(ci.UnknownRefs, ref)
		}
	}
	if ci.Target != "" || len(ci.UnknownRefs) > 0 {
		return
	}
	// Unquoted fallback: a single word that exactly names a symbol.
	for _, word := range strings.Fields(segment) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if len(word) < 3 {
			continue
		}
		if syms := p.snap.SymbolsNamed(word); len(syms) == 1 {
			ci.Target = syms[0].ID
			ci.TargetKd = TargetSymbol
			return
		}
	}
}

func (p *Interpreter) bindName(ci *ChangeIntent, name string) bool {
	if syms := p.snap.SymbolsNamed(name); len(syms) == 1 {
		ci.Target = syms[0].ID
		ci.TargetKd = TargetSymbol
		return true
	}
	if nodes := p.snap.NodesNamed(name); len(nodes) == 1 {
		ci.Target = nodes[0].ID
		ci.TargetKd = TargetNode
		return true
	}
	return false
}

func (p *Interpreter) nameExists(name string) bool {
	return len(p.snap.SymbolsNamed(name)) > 0 || len(p.snap.NodesNamed(name)) > 0
}

// mergeByTarget collapses candidates that resolved to the same target with
// the same change kind, preserving all rationale text and the union of
// hints. Candidates that agree on the target but not on the kind stay
// separate; impact analysis reports them as a conflict instead of one
// intent silently absorbing the other.
func mergeByTarget(candidates []*ChangeIntent) []*ChangeIntent {
	var out []*ChangeIntent
	byTarget := map[string]*ChangeIntent{}
	for _, c := range candidates {
		if c.Target == "" {
			out = append(out, c)
			continue
		}
		key := c.Target + "|" + string(c.Kind)
		if existing, ok := byTarget[key]; ok {
			existing.Rationale += " " + c.Rationale
			existing.Hints = unionHints(existing.Hints, c.Hints)
			existing.UnknownRefs = append(existing.UnknownRefs, c.UnknownRefs...)
			existing.AcceptanceCriteria = append(existing.AcceptanceCriteria, c.AcceptanceCriteria...)
			continue
		}
		byTarget[key] = c
		out = append(out, c)
	}
	return out
}

func finalize(intents []*ChangeIntent) []*ChangeIntent {
	for i, ci := range intents {
		ci.ID = fmt.Sprintf("INT-%03d", i+1)
	}
	return intents
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)

// segments splits requirement text into sentences and bullet items.
func segments(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = bulletRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, sentence := range splitSentences(line) {
			if sentence != "" {
				out = append(out, sentence)
			}
		}
	}
	return out
}

func splitSentences(line string) []string {
	var out []string
	var sb strings.Builder
	inCode := false
	for _, r := range line {
		if r == '`' {
			inCode = !inCode
		}
		sb.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && !inCode {
			out = append(out, strings.TrimSpace(sb.String()))
			sb.Reset()
		}
	}
	if rest := strings.TrimSpace(sb.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

var verbCues = []struct {
	kind  Kind
	verbs []string
}{
	{KindAdd, []string{"add", "adds", "implement", "introduce", "create", "support", "extend"}},
	{KindRemove, []string{"remove", "removes", "delete", "drop", "deprecate", "retire"}},
	{KindModify, []string{"modify", "change", "changes", "update", "rename", "fix", "replace", "optimize", "refactor", "improve", "reject", "validate", "enforce"}},
	{KindClarify, []string{"clarify", "document", "describe", "explain", "note"}},
}

func classify(segment string) Kind {
	lower := strings.ToLower(segment)
	words := map[string]bool{}
	for _, w := range strings.Fields(lower) {
		words[strings.Trim(w, ".,;:!?()\"'")] = true
	}
	for _, cue := range verbCues {
		for _, v := range cue.verbs {
			if words[v] {
				return cue.kind
			}
		}
	}
	return KindClarify
}

var backtickRe = regexp.MustCompile("`([^`]+)`")

func quotedRefs(segment string) []string {
	var refs []string
	for _, m := range backtickRe.FindAllStringSubmatch(segment, -1) {
		if r := strings.TrimSpace(m[1]); r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "are": true, "should": true,
	"must": true, "when": true, "all": true, "any": true, "not": true,
	"its": true, "can": true, "will": true, "has": true, "have": true,
	"function": true, "method": true, "section": true,
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

func keywordHints(segment string) []string {
	seen := map[string]bool{}
	for _, w := range identRe.FindAllString(segment, -1) {
		lw := strings.ToLower(w)
		if len(lw) < 3 || stopwords[lw] {
			continue
		}
		seen[lw] = true
	}
	if len(seen) == 0 {
		return nil
	}
	hints := make([]string, 0, len(seen))
	for w := range seen {
		hints = append(hints, w)
	}
	sort.Strings(hints)
	return hints
}

func unionHints(a, b []string) []string {
	seen := map[string]bool{}
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
