package bind

import (
	"strings"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/wasm"
)

// Type is a native parameter or result type.
type Type uint8

const (
	Void Type = iota
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Bool
	Uintptr
	Pointer
)

var typeNames = map[string]Type{
	"int32":          Int32,
	"uint32":         Uint32,
	"int64":          Int64,
	"uint64":         Uint64,
	"float32":        Float32,
	"float64":        Float64,
	"bool":           Bool,
	"uintptr":        Uintptr,
	"unsafe.Pointer": Pointer,
	"i32":            Int32,
	"i64":            Int64,
	"f32":            Float32,
	"f64":            Float64,
	"ptr":            Pointer,
}

// ParseType maps a type name to a Type. Any "*T" is a Pointer.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "*") && len(s) > 1 {
		return Pointer, nil
	}
	if t, ok := typeNames[s]; ok {
		return t, nil
	}
	return Void, errors.Unsupported(errors.PhaseBind, "type "+quote(s))
}

// ValType returns the wasm value type the native type lowers to.
func (t Type) ValType() wasm.ValType {
	switch t {
	case Int64, Uint64:
		return wasm.ValI64
	case Float32:
		return wasm.ValF32
	case Float64:
		return wasm.ValF64
	default:
		return wasm.ValI32
	}
}

// String returns the Go spelling.
func (t Type) String() string {
	switch t {
	case Void:
		return ""
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Uintptr:
		return "uintptr"
	case Pointer:
		return "unsafe.Pointer"
	}
	return "invalid"
}

// CName returns the C spelling.
func (t Type) CName() string {
	switch t {
	case Void:
		return "void"
	case Int32:
		return "int32_t"
	case Uint32:
		return "uint32_t"
	case Int64:
		return "int64_t"
	case Uint64:
		return "uint64_t"
	case Float32:
		return "float"
	case Float64:
		return "double"
	case Bool:
		return "bool"
	case Uintptr:
		return "uintptr_t"
	case Pointer:
		return "void*"
	}
	return "void"
}

// Unsigned reports whether values should be read as unsigned integers.
func (t Type) Unsigned() bool {
	return t == Uint32 || t == Uint64 || t == Uintptr || t == Pointer
}

func quote(s string) string {
	return `"` + s + `"`
}
