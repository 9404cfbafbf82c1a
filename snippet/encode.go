package snippet

import (
	"fmt"
	"strings"
)

// Wire format punctuation.
const (
	ParamsOpen  = "("
	ParamsClose = ")"
	Delimiter   = "<::>"
	BodyOpen    = "{"
	BodyClose   = "}"
	ParamSep    = ","
	Terminator  = byte(0)
)

// Encode renders the decorated payload
//
//	"(" + join(params, ",") + ")<::>{" + body + "}" + NUL
//
// body is expected to be normalized already. In ModeEscaped the characters
// '"', '{' and '}' of the body become `\"`, "{{" and "}}"; parameters are
// always joined verbatim.
func Encode(params []string, body string, mode Mode) []byte {
	n := Size(params, body, mode)
	buf := make([]byte, 0, n)

	buf = append(buf, ParamsOpen...)
	for i, p := range params {
		if i > 0 {
			buf = append(buf, ParamSep...)
		}
		buf = append(buf, p...)
	}
	buf = append(buf, ParamsClose...)
	buf = append(buf, Delimiter...)
	buf = append(buf, BodyOpen...)

	if mode == ModeEscaped {
		buf = appendEscaped(buf, body)
	} else {
		buf = append(buf, body...)
	}

	buf = append(buf, BodyClose...)
	buf = append(buf, Terminator)

	if len(buf) != n {
		panic(fmt.Sprintf("snippet: encoded %d bytes, size formula gives %d", len(buf), n))
	}
	return buf
}

func appendEscaped(buf []byte, body string) []byte {
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '"':
			buf = append(buf, '\\', '"')
		case '{':
			buf = append(buf, '{', '{')
		case '}':
			buf = append(buf, '}', '}')
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

// Unescape reverses the escaped-literal body transformation. Scanning is left
// to right, so `\"` becomes '"', "{{" becomes '{' and "}}" becomes '}'.
func Unescape(body string) string {
	if !strings.ContainsAny(body, `"{}`) {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if i+1 < len(body) {
			next := body[i+1]
			if (c == '\\' && next == '"') || (c == '{' && next == '{') || (c == '}' && next == '}') {
				b.WriteByte(next)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
