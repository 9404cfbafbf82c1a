package snippet

import (
	"fmt"

	"github.com/wippyai/emjs/errors"
)

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type opener struct {
	ch   byte
	line int
}

// CheckBalanced verifies that (), [] and {} nest correctly in a script body.
// Contents of string literals, template literals and comments are skipped.
// Regular expression literals are not recognized.
func CheckBalanced(body string) error {
	var stack []opener
	line := 1

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '\n':
			line++
		case '\'', '"', '`':
			end, lines, ok := skipQuoted(body, i, c)
			if !ok {
				return unbalanced(line, "unterminated %s literal", quoteName(c))
			}
			line += lines
			i = end
		case '/':
			if i+1 >= len(body) {
				continue
			}
			switch body[i+1] {
			case '/':
				for i < len(body) && body[i] != '\n' {
					i++
				}
				i--
			case '*':
				end := indexFrom(body, i+2, "*/")
				if end < 0 {
					return unbalanced(line, "unterminated block comment")
				}
				line += countLines(body[i:end])
				i = end + 1
			}
		case '(', '[', '{':
			stack = append(stack, opener{ch: c, line: line})
		case ')', ']', '}':
			if len(stack) == 0 {
				return unbalanced(line, "unexpected %q", c)
			}
			top := stack[len(stack)-1]
			if top.ch != closers[c] {
				return unbalanced(line, "%q closes %q opened on line %d", c, top.ch, top.line)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return unbalanced(top.line, "unclosed %q", top.ch)
	}
	return nil
}

// skipQuoted returns the index of the closing quote that matches body[start].
func skipQuoted(body string, start int, quote byte) (end, lines int, ok bool) {
	for i := start + 1; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '\n':
			if quote != '`' {
				return 0, 0, false
			}
			lines++
		case quote:
			return i, lines, true
		}
	}
	return 0, 0, false
}

func indexFrom(s string, from int, sub string) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func countLines(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}

func quoteName(c byte) string {
	if c == '`' {
		return "template"
	}
	return "string"
}

func unbalanced(line int, format string, args ...any) error {
	return errors.New(errors.PhaseEncode, errors.KindUnbalanced).
		Detail("line %d: %s", line, fmt.Sprintf(format, args...)).
		Build()
}
