package snippet

import "strings"

// Separator joins normalized lines.
const Separator = "\n"

// Normalize trims every line of raw and joins the non-empty ones with
// Separator. Only whitespace is removed, so tokens are never merged or split.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	lines := strings.Split(raw, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, Separator)
}
