package loader

import (
	"bytes"
	"strings"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
)

// Script is a payload recovered from an object, ready to become a function.
type Script struct {
	Native  string
	Symbol  string
	Params  []string
	Body    string
	Mode    snippet.Mode
	Address uint32
	Size    uint32
}

// Source returns the function expression the payload evaluates to.
func (s Script) Source() string {
	return "(function " + s.Native + "(" + strings.Join(s.Params, ",") + ") {\n" + s.Body + "\n})"
}

var payloadSeparator = []byte(snippet.ParamsClose + snippet.Delimiter + snippet.BodyOpen)

// ParsePayload splits a decorated payload into its parameter list and body.
// Escaped payloads are unescaped. The parsed parts must re-encode to exactly
// len(data) bytes.
func ParsePayload(symbol string, data []byte, mode snippet.Mode) ([]string, string, error) {
	invalid := func(detail string) error {
		return errors.InvalidData(errors.PhaseLoad, symbol, detail)
	}

	if len(data) == 0 || data[len(data)-1] != snippet.Terminator {
		return nil, "", invalid("payload is not NUL-terminated")
	}
	text := data[:len(data)-1]
	if bytes.IndexByte(text, 0) >= 0 {
		return nil, "", invalid("payload contains an embedded NUL")
	}
	if !bytes.HasPrefix(text, []byte(snippet.ParamsOpen)) {
		return nil, "", invalid("payload does not start with a parameter list")
	}
	sep := bytes.Index(text, payloadSeparator)
	if sep < 0 {
		return nil, "", invalid("payload has no " + snippet.Delimiter + " delimiter")
	}
	if !bytes.HasSuffix(text, []byte(snippet.BodyClose)) || len(text) < sep+len(payloadSeparator)+1 {
		return nil, "", invalid("payload body is not closed")
	}

	var params []string
	if list := string(text[len(snippet.ParamsOpen):sep]); list != "" {
		params = strings.Split(list, snippet.ParamSep)
	}
	if err := snippet.ValidateParams(params); err != nil {
		return nil, "", errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Symbol(symbol).
			Cause(err).
			Detail("invalid parameter list").
			Build()
	}

	body := string(text[sep+len(payloadSeparator) : len(text)-len(snippet.BodyClose)])
	if mode == snippet.ModeEscaped {
		body = snippet.Unescape(body)
	}

	if size := snippet.Size(params, body, mode); size != len(data) {
		return nil, "", errors.SizeMismatch(errors.PhaseLoad, symbol, size, len(data))
	}
	return params, body, nil
}
