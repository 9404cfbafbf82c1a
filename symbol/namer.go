// Package symbol derives the linker-visible names of embedded snippets and
// keeps them unique across a build.
package symbol

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
)

// Tags recognized by the loader.
const (
	RefTag     = "__em_js_ref_"
	PayloadTag = "__em_js__"
)

// Pair holds the names derived for one snippet.
type Pair struct {
	// Native is the bare identifier, used as the foreign function name.
	Native  string
	Ref     string
	Payload string
	// Derived is true when Native came from a call site.
	Derived bool
}

// Namer derives a Pair from a snippet identity.
type Namer struct {
	// Prefix is prepended to every native identifier. Empty by default.
	Prefix string
}

// reservedWords are keywords of the languages a native name is emitted into:
// the script function statement, the Go bindings and the C header.
var reservedWords = map[string]bool{}

func init() {
	for _, words := range []string{
		// script
		"await break case catch class const continue debugger default delete do else enum export extends " +
			"false finally for function if implements import in instanceof interface let new null package " +
			"private protected public return static super switch this throw true try typeof var void while with yield",
		// Go
		"chan defer fallthrough func go goto map range select struct type",
		// C
		"auto char double extern float goto inline int long register restrict short signed sizeof " +
			"typedef union unsigned volatile",
	} {
		for _, w := range strings.Fields(words) {
			reservedWords[w] = true
		}
	}
}

// IsReserved reports whether s is a keyword in any of the emitted languages.
func IsReserved(s string) bool {
	return reservedWords[s]
}

// Name returns the pair for id. Explicit names must be C identifiers that
// are not reserved words.
func (n Namer) Name(id snippet.Identity) (Pair, error) {
	var native string
	derived := id.Anonymous()
	if derived {
		if id.Site.IsZero() {
			return Pair{}, errors.InvalidInput(errors.PhaseName, "anonymous snippet without a call site")
		}
		if id.Site.Line < 0 || id.Site.Column < 0 {
			return Pair{}, errors.New(errors.PhaseName, errors.KindInvalidInput).
				Detail("call site %s has a negative coordinate", id.Site).
				Build()
		}
		native = SiteIdentifier(id.Site)
	} else {
		if !IsCIdentifier(id.Name) {
			return Pair{}, errors.InvalidIdentifier(errors.PhaseName, id.Name)
		}
		native = id.Name
	}
	if n.Prefix != "" {
		if !IsCIdentifier(n.Prefix) {
			return Pair{}, errors.InvalidIdentifier(errors.PhaseName, n.Prefix)
		}
		native = n.Prefix + native
	}
	if IsReserved(native) {
		return Pair{}, errors.New(errors.PhaseName, errors.KindInvalidIdentifier).
			Symbol(native).
			Detail("%q is a reserved word", native).
			Build()
	}

	return Pair{
		Native:  native,
		Ref:     RefTag + native,
		Payload: PayloadTag + native,
		Derived: derived,
	}, nil
}

// SiteIdentifier builds the identifier of an anonymous snippet:
//
//	site<file stripped to [A-Za-z0-9]>_<line>_<column>_<fnv32a(file)>
//
// The "site" lead keeps the result a C identifier when the file name starts
// with a digit. The hash keeps files that strip to the same text apart.
// Line and column are written unsigned so the result stays an identifier
// for any site; Name rejects negative coordinates before getting here.
func SiteIdentifier(site snippet.Site) string {
	var b strings.Builder
	b.Grow(len(site.File) + 24)
	b.WriteString("site")
	for i := 0; i < len(site.File); i++ {
		c := site.File[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}

	h := fnv.New32a()
	h.Write([]byte(site.File))
	fmt.Fprintf(&b, "_%d_%d_%08x", uint(site.Line), uint(site.Column), h.Sum32())
	return b.String()
}

// IsCIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func IsCIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Native strips a tag from an exported symbol name.
func Native(exported string) (native string, isPayload bool, ok bool) {
	switch {
	case strings.HasPrefix(exported, RefTag):
		return strings.TrimPrefix(exported, RefTag), false, true
	case strings.HasPrefix(exported, PayloadTag):
		return strings.TrimPrefix(exported, PayloadTag), true, true
	}
	return "", false, false
}
