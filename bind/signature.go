package bind

import (
	"strings"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/symbol"
	"github.com/wippyai/emjs/wasm"
)

// DefaultNamespace is the import module foreign declarations bind to.
const DefaultNamespace = "env"

// Param is a named parameter.
type Param struct {
	Name string
	Type Type
}

// Signature is a native function signature in Go syntax:
//
//	sum(n int32) int32
//	add(a, b, c int32) int32
//	(s unsafe.Pointer)
//
// The name is optional; a missing result means void.
type Signature struct {
	Name   string
	Params []Param
	Result Type
}

// ParseSignature parses a Go-style signature.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "func ")
	s = strings.TrimSpace(s)

	open := strings.IndexByte(s, '(')
	if open < 0 {
		return Signature{}, invalidSignature(s, "missing parameter list")
	}
	closeIdx := strings.IndexByte(s[open:], ')')
	if closeIdx < 0 {
		return Signature{}, invalidSignature(s, "unterminated parameter list")
	}
	closeIdx += open

	var sig Signature
	sig.Name = strings.TrimSpace(s[:open])
	if sig.Name != "" && !symbol.IsCIdentifier(sig.Name) {
		return Signature{}, errors.InvalidIdentifier(errors.PhaseBind, sig.Name)
	}

	params, err := parseParams(s[open+1 : closeIdx])
	if err != nil {
		return Signature{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Symbol(sig.Name).
			Cause(err).
			Detail("parse parameters of %q", s).
			Build()
	}
	sig.Params = params

	result := strings.TrimSpace(s[closeIdx+1:])
	result = strings.TrimSuffix(strings.TrimPrefix(result, "("), ")")
	if result = strings.TrimSpace(result); result != "" {
		if strings.Contains(result, ",") {
			return Signature{}, invalidSignature(s, "multiple results are not supported")
		}
		if sig.Result, err = ParseType(result); err != nil {
			return Signature{}, err
		}
	}
	return sig, nil
}

// parseParams handles "a int32, b int32" and the grouped "a, b int32" form.
func parseParams(list string) ([]Param, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	parts := strings.Split(list, ",")
	params := make([]Param, len(parts))
	pending := 0
	for i, part := range parts {
		fields := strings.Fields(part)
		switch len(fields) {
		case 1:
			params[i].Name = fields[0]
			pending++
		case 2:
			t, err := ParseType(fields[1])
			if err != nil {
				return nil, err
			}
			params[i] = Param{Name: fields[0], Type: t}
			for j := i - pending; j < i; j++ {
				params[j].Type = t
			}
			pending = 0
		default:
			return nil, errors.InvalidInput(errors.PhaseBind, "malformed parameter "+quote(strings.TrimSpace(part)))
		}
	}
	if pending > 0 {
		return nil, errors.InvalidInput(errors.PhaseBind, "parameter "+quote(params[len(params)-1].Name)+" has no type")
	}

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if !symbol.IsCIdentifier(p.Name) {
			return nil, errors.InvalidIdentifier(errors.PhaseBind, p.Name)
		}
		if seen[p.Name] {
			return nil, errors.InvalidInput(errors.PhaseBind, "duplicate parameter "+quote(p.Name))
		}
		seen[p.Name] = true
	}
	return params, nil
}

func invalidSignature(s, detail string) error {
	return errors.New(errors.PhaseBind, errors.KindInvalidInput).
		Detail("signature %q: %s", s, detail).
		Build()
}

// ParamNames returns the parameter names in order.
func (s Signature) ParamNames() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// FuncType lowers the signature to a wasm function type.
func (s Signature) FuncType() wasm.FuncType {
	ft := wasm.FuncType{Params: make([]wasm.ValType, len(s.Params))}
	for i, p := range s.Params {
		ft.Params[i] = p.Type.ValType()
	}
	if s.Result != Void {
		ft.Results = []wasm.ValType{s.Result.ValType()}
	}
	return ft
}

// String renders the signature in the syntax ParseSignature accepts.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if s.Result != Void {
		b.WriteByte(' ')
		b.WriteString(s.Result.String())
	}
	return b.String()
}

// CheckArity verifies that the signature and the snippet agree on the number
// of parameters. It is the only validation between the two.
func CheckArity(sig Signature, params []string) error {
	if len(sig.Params) != len(params) {
		return errors.ArityMismatch(errors.PhaseBind, sig.Name, len(sig.Params), len(params))
	}
	return nil
}

// Import is a foreign declaration: a native name bound to an import
// namespace with a signature.
type Import struct {
	Module string
	Name   string
	Sig    Signature
}

// NewImport binds native to namespace. An empty namespace means env.
func NewImport(namespace, native string, sig Signature) Import {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	sig.Name = native
	return Import{Module: namespace, Name: native, Sig: sig}
}
