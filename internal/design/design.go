package design

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"reqsync/internal/extractor"
)

// Node is one heading section of a design document. The span covers the
// heading line through the last body line, in file coordinates, so patches
// address design sections and code symbols the same way.
type Node struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Level    int            `json:"level"`
	Path     []string       `json:"path"`
	Body     string         `json:"body"`
	Span     extractor.Span `json:"span"`
	Tags     []string       `json:"tags,omitempty"`
	CodeRefs []string       `json:"code_refs,omitempty"`
	Children []*Node        `json:"-"`
}

// Document is a parsed design document.
type Document struct {
	File     string
	Preamble string // content before the first heading, verbatim
	Root     []*Node
	nodes    []*Node // preorder
	byID     map[string]*Node
}

var (
	reqTagRe  = regexp.MustCompile(`\[(REQ-[A-Za-z0-9_.\-]+)\]`)
	codeRefRe = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_.]*)`")
)

// Parse builds a Document from normalized markdown. A heading that skips a
// level (e.g. `#` directly to `###`) is a malformed hierarchy and yields a
// ParseError; a document is never partially parsed.
func Parse(file, content string) (*Document, error) {
	doc := &Document{File: file, byID: map[string]*Node{}}

	var preamble strings.Builder
	var stack []*Node
	var current *Node
	var body strings.Builder
	occurrence := map[string]int{}

	flush := func(endLine int) {
		if current == nil {
			return
		}
		current.Body = body.String()
		current.Span.EndLine = endLine
		current.Tags = extractTags(current.Title + "\n" + current.Body)
		current.CodeRefs = extractCodeRefs(current.Body)
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	inFence := false
	for scanner.Scan() {
		line := scanner.Text()
		lineNo++
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		level, title := headingOf(trimmed)
		if level > 0 && !inFence {
			flush(lineNo - 1)

			// Pop to the parent level.
			for len(stack) > 0 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			parentLevel := 0
			if len(stack) > 0 {
				parentLevel = stack[len(stack)-1].Level
			}
			if level > parentLevel+1 {
				return nil, &extractor.ParseError{
					Path: file,
					Line: lineNo,
					Msg:  fmt.Sprintf("heading %q skips from level %d to %d", title, parentLevel, level),
				}
			}

			node := &Node{
				Title: title,
				Level: level,
				Span:  extractor.Span{StartLine: lineNo},
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				node.Path = append(append([]string{}, parent.Path...), title)
				parent.Children = append(parent.Children, node)
			} else {
				node.Path = []string{title}
				doc.Root = append(doc.Root, node)
			}

			key := strings.Join(node.Path, "/")
			node.ID = nodeID(file, key, occurrence[key])
			occurrence[key]++

			doc.nodes = append(doc.nodes, node)
			doc.byID[node.ID] = node
			stack = append(stack, node)
			current = node
			continue
		}

		if current == nil {
			preamble.WriteString(line + "\n")
			continue
		}
		body.WriteString(line + "\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", file, err)
	}
	flush(lineNo)
	doc.Preamble = preamble.String()

	return doc, nil
}

// Nodes returns all sections in document order.
func (d *Document) Nodes() []*Node {
	return d.nodes
}

// Node looks up a section by ID.
func (d *Document) Node(id string) (*Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// Render reconstructs the markdown text. Parse(Render()) is structurally
// identical to the original document.
func (d *Document) Render() string {
	var sb strings.Builder
	sb.WriteString(d.Preamble)
	for _, n := range d.nodes {
		sb.WriteString(strings.Repeat("#", n.Level))
		sb.WriteString(" ")
		sb.WriteString(n.Title)
		sb.WriteString("\n")
		sb.WriteString(n.Body)
	}
	return sb.String()
}

// Outline returns the heading hierarchy as level-prefixed paths. Used to
// check that a generated patch preserved the structure of untouched sections.
func (d *Document) Outline() []string {
	out := make([]string, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, fmt.Sprintf("%d:%s", n.Level, strings.Join(n.Path, "/")))
	}
	return out
}

func headingOf(trimmed string) (int, string) {
	if !strings.HasPrefix(trimmed, "#") {
		return 0, ""
	}
	level := 0
	for _, char := range trimmed {
		if char == '#' {
			level++
		} else {
			break
		}
	}
	if level > 0 && level < 7 && len(trimmed) > level && trimmed[level] == ' ' {
		return level, strings.TrimSpace(trimmed[level:])
	}
	return 0, ""
}

func nodeID(file, path string, occurrence int) string {
	idRaw := fmt.Sprintf("%s:%s:%d", file, path, occurrence)
	hash := sha256.Sum256([]byte(idRaw))
	return hex.EncodeToString(hash[:8])
}

func extractTags(text string) []string {
	matches := reqTagRe.FindAllStringSubmatch(text, -1)
	seen := map[string]bool{}
	var tags []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			tags = append(tags, m[1])
		}
	}
	return tags
}

func extractCodeRefs(text string) []string {
	matches := codeRefRe.FindAllStringSubmatch(text, -1)
	seen := map[string]bool{}
	var refs []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}
