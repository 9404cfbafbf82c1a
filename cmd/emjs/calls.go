package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/emjs/loader"
	"github.com/wippyai/emjs/wasm"
)

// callable is a snippet export the run command can invoke.
type callable struct {
	name   string
	params []string
	ft     wasm.FuncType
}

func callables(m *wasm.Module, scripts []loader.Script) []callable {
	var out []callable
	for _, s := range scripts {
		exp, ok := m.ExportByName(s.Native)
		if !ok || exp.Kind != wasm.KindFunc {
			continue
		}
		ft, ok := m.FuncTypeOf(exp.Idx)
		if !ok {
			continue
		}
		out = append(out, callable{name: s.Native, params: s.Params, ft: ft})
	}
	return out
}

func findCallable(list []callable, name string) (callable, bool) {
	for _, c := range list {
		if c.name == name {
			return c, true
		}
	}
	return callable{}, false
}

func (c callable) String() string {
	params := make([]string, len(c.params))
	for i, p := range c.params {
		t := "?"
		if i < len(c.ft.Params) {
			t = c.ft.Params[i].String()
		}
		params[i] = p + ": " + typ(t)
	}
	result := ""
	if len(c.ft.Results) > 0 {
		result = " -> " + typ(c.ft.Results[0].String())
	}
	return fn(c.name) + "(" + strings.Join(params, ", ") + ")" + result
}

// encodeArgs parses textual arguments into raw wasm values.
func (c callable) encodeArgs(args []string) ([]uint64, error) {
	if len(args) != len(c.ft.Params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", c.name, len(c.ft.Params), len(args))
	}
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := parseArg(strings.TrimSpace(a), c.ft.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i+1, c.params[i], err)
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(s string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		if v < math.MinInt32 || v > math.MaxUint32 {
			return 0, fmt.Errorf("%d out of i32 range", v)
		}
		return uint64(uint32(v)), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(v)), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", t)
}

func (c callable) formatResults(results []uint64) string {
	if len(results) == 0 || len(c.ft.Results) == 0 {
		return "(no result)"
	}
	r := results[0]
	switch c.ft.Results[0] {
	case wasm.ValI32:
		return strconv.FormatInt(int64(int32(uint32(r))), 10)
	case wasm.ValI64:
		return strconv.FormatInt(int64(r), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(api.DecodeF32(r)), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(api.DecodeF64(r), 'g', -1, 64)
	}
	return fmt.Sprintf("%#x", r)
}
