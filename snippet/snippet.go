package snippet

import (
	"fmt"
	"strconv"

	"github.com/wippyai/emjs/errors"
)

// Site is the source coordinate of a snippet declaration.
type Site struct {
	File   string
	Line   int
	Column int
}

// String renders the site as file:line:column.
func (s Site) String() string {
	if s.File == "" && s.Line == 0 {
		return "<unknown>"
	}
	return s.File + ":" + strconv.Itoa(s.Line) + ":" + strconv.Itoa(s.Column)
}

// IsZero reports whether no coordinate was recorded.
func (s Site) IsZero() bool {
	return s.File == "" && s.Line == 0 && s.Column == 0
}

// Identity names a snippet either explicitly or by the site that declares it.
// An empty Name means the snippet is anonymous and Site is its identity.
type Identity struct {
	Name string
	Site Site
}

// Anonymous reports whether the identity is positional.
func (id Identity) Anonymous() bool {
	return id.Name == ""
}

// String returns the explicit name or the site.
func (id Identity) String() string {
	if id.Name != "" {
		return id.Name
	}
	return "anonymous@" + id.Site.String()
}

// Snippet is a script body plus its ordered parameter names.
// Snippets are values; nothing mutates them after capture.
type Snippet struct {
	Identity Identity
	Body     string
	Params   []string
}

// Mode selects how the body is embedded in the payload.
type Mode uint8

const (
	// ModeVerbatim embeds the body byte for byte. The body must be balanced.
	ModeVerbatim Mode = iota
	// ModeEscaped escapes '"', '{' and '}' for a later formatting step.
	ModeEscaped
)

func (m Mode) String() string {
	switch m {
	case ModeVerbatim:
		return "verbatim"
	case ModeEscaped:
		return "escaped"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "verbatim":
		return ModeVerbatim, nil
	case "escaped", "escaped-literal":
		return ModeEscaped, nil
	default:
		return 0, errors.InvalidInput(errors.PhaseParse, fmt.Sprintf("unknown encoding mode %q", s))
	}
}

// Payload is a compiled snippet: normalized body, the encoded bytes and their
// independently computed size.
type Payload struct {
	Normalized string
	Bytes      []byte
	Params     []string
	Size       int
	Mode       Mode
}

// Compile normalizes, validates and encodes s, then cross-checks the encoded
// length against Size. A mismatch is a fatal build defect.
func Compile(s Snippet, mode Mode) (*Payload, error) {
	if err := ValidateParams(s.Params); err != nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Symbol(s.Identity.String()).
			Cause(err).
			Detail("invalid parameter list").
			Build()
	}

	body := Normalize(s.Body)
	if mode == ModeVerbatim {
		if err := CheckBalanced(body); err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindUnbalanced).
				Symbol(s.Identity.String()).
				Cause(err).
				Detail("verbatim mode requires a balanced body").
				Build()
		}
	}

	size := Size(s.Params, body, mode)
	data := Encode(s.Params, body, mode)
	if len(data) != size {
		return nil, errors.SizeMismatch(errors.PhaseEncode, s.Identity.String(), size, len(data))
	}

	return &Payload{
		Normalized: body,
		Bytes:      data,
		Params:     append([]string(nil), s.Params...),
		Size:       size,
		Mode:       mode,
	}, nil
}
