package snippet

import (
	"fmt"

	"github.com/wippyai/emjs/errors"
)

// ValidateParams checks that every parameter is a JavaScript identifier
// (ASCII letters, digits, '_' or '$', not starting with a digit) and that
// no name repeats.
func ValidateParams(params []string) error {
	seen := make(map[string]int, len(params))
	for i, p := range params {
		if !IsIdentifier(p) {
			return errors.New(errors.PhaseEncode, errors.KindInvalidIdentifier).
				Path("params", fmt.Sprint(i)).
				Detail("%q is not a valid parameter name", p).
				Build()
		}
		if j, dup := seen[p]; dup {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path("params", fmt.Sprint(i)).
				Detail("parameter %q repeats position %d", p, j).
				Build()
		}
		seen[p] = i
	}
	return nil
}

// IsIdentifier reports whether s is an ASCII JavaScript identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
