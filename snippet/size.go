package snippet

// punctuation is the fixed framing: "(" ")" "<::>" "{" "}".
const punctuation = 8

// Size returns the exact byte length of Encode(params, body, mode) without
// building it. It shares no code with the encoder.
func Size(params []string, body string, mode Mode) int {
	n := len(body) + 1 + punctuation
	if mode == ModeEscaped {
		n += escapes(body)
	}
	for _, p := range params {
		n += len(p)
	}
	if len(params) > 1 {
		n += len(params) - 1
	}
	return n
}

// escapes counts the bytes escaped-literal mode doubles.
func escapes(body string) int {
	count := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"', '{', '}':
			count++
		}
	}
	return count
}
