package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// BuildStableSymbolID creates a deterministic symbol ID.
// The ID is derived from semantic identity fields and a canonical signature
// hash, so it survives the symbol moving within a file.
func BuildStableSymbolID(sym *CodeSymbol) string {
	if sym == nil {
		return ""
	}

	pkg := strings.TrimSpace(sym.Package)
	if pkg == "" {
		pkg = "_"
	}

	kind := string(sym.Kind)
	if kind == "" {
		kind = "symbol"
	}

	name := strings.TrimSpace(sym.Name)
	if name == "" {
		name = "_"
	}

	receiver := canonicalize(sym.Receiver)
	signature := canonicalize(sym.Signature)
	if signature == "" {
		signature = canonicalize(sym.Content)
	}

	fingerprint := strings.Join([]string{
		pkg,
		kind,
		receiver,
		name,
		signature,
	}, "|")

	sum := sha256.Sum256([]byte(fingerprint))
	short := hex.EncodeToString(sum[:8])
	return fmt.Sprintf("%s:%s:%s:%s", pkg, kind, name, short)
}

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
