package loader

import (
	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/emjs/bind"
)

// liftValue converts a raw wasm value to a script value. i32 is signed and
// i64 becomes a JS number.
func liftValue(vm *goja.Runtime, t api.ValueType, raw uint64) goja.Value {
	switch t {
	case api.ValueTypeI32:
		return vm.ToValue(api.DecodeI32(raw))
	case api.ValueTypeI64:
		return vm.ToValue(int64(raw))
	case api.ValueTypeF32:
		return vm.ToValue(float64(api.DecodeF32(raw)))
	case api.ValueTypeF64:
		return vm.ToValue(api.DecodeF64(raw))
	}
	return goja.Undefined()
}

// lowerValue converts a script value to a raw wasm value. undefined and
// null lower to zero.
func lowerValue(t api.ValueType, v goja.Value) uint64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.ToInteger()))
	case api.ValueTypeI64:
		return api.EncodeI64(v.ToInteger())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.ToFloat()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.ToFloat())
	}
	return 0
}

// liftTyped is liftValue with the signedness of a native type.
func liftTyped(vm *goja.Runtime, t bind.Type, raw uint64) goja.Value {
	switch t {
	case bind.Void:
		return goja.Undefined()
	case bind.Bool:
		return vm.ToValue(uint32(raw) != 0)
	case bind.Uint32, bind.Uintptr, bind.Pointer:
		return vm.ToValue(uint32(raw))
	case bind.Uint64:
		return vm.ToValue(raw)
	}
	return liftValue(vm, valueType(t), raw)
}

func lowerTyped(t bind.Type, v goja.Value) uint64 {
	if t == bind.Bool {
		if v != nil && v.ToBoolean() {
			return 1
		}
		return 0
	}
	return lowerValue(valueType(t), v)
}

func valueType(t bind.Type) api.ValueType {
	return api.ValueType(t.ValType())
}

func valueTypes(types []bind.Param) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, p := range types {
		out[i] = valueType(p.Type)
	}
	return out
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
