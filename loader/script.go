package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/emjs/errors"
)

const defaultMaxCallStackSize = 1024

// Global names the script environment defines. Payloads and natives may not
// shadow them.
var reservedGlobals = map[string]bool{
	"_malloc":                      true,
	"_free":                        true,
	"UTF8ToString":                 true,
	"stringToUTF8":                 true,
	"lengthBytesUTF8":              true,
	"out":                          true,
	"err":                          true,
	"console":                      true,
	"_emscripten_cancel_main_loop": true,
}

func newVM(maxStack int) *goja.Runtime {
	vm := goja.New()
	if maxStack <= 0 {
		maxStack = defaultMaxCallStackSize
	}
	vm.SetMaxCallStackSize(maxStack)
	return vm
}

// installHelpers binds the runtime helpers payloads rely on.
func (inst *Instance) installHelpers(stdout, stderr io.Writer) {
	vm := inst.vm
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}

	_ = vm.Set("_malloc", func(call goja.FunctionCall) goja.Value {
		size := call.Argument(0).ToInteger()
		if size < 0 || size > int64(^uint32(0)) {
			return vm.ToValue(0)
		}
		ptr, err := inst.heap.Alloc(uint32(size), minAlign)
		if err != nil {
			Logger().Debug("_malloc failed", zap.Int64("size", size), zap.Error(err))
			return vm.ToValue(0)
		}
		return vm.ToValue(ptr)
	})

	_ = vm.Set("_free", func(call goja.FunctionCall) goja.Value {
		inst.heap.Free(uint32(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})

	_ = vm.Set("UTF8ToString", func(call goja.FunctionCall) goja.Value {
		ptr := uint32(call.Argument(0).ToInteger())
		if ptr == 0 {
			return vm.ToValue("")
		}
		b, err := inst.mem.ReadCString(ptr)
		if err != nil {
			throw(err)
		}
		if maxBytes := call.Argument(1); !goja.IsUndefined(maxBytes) {
			if n := maxBytes.ToInteger(); n >= 0 && int64(len(b)) > n {
				b = b[:n]
			}
		}
		return vm.ToValue(string(b))
	})

	_ = vm.Set("stringToUTF8", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		ptr := uint32(call.Argument(1).ToInteger())
		data := encodeUTF8(s, call.Argument(2).ToInteger())
		if len(data) == 0 {
			return vm.ToValue(0)
		}
		if err := inst.mem.Write(ptr, data); err != nil {
			throw(err)
		}
		return vm.ToValue(len(data) - 1)
	})

	_ = vm.Set("lengthBytesUTF8", func(s string) int {
		return len(s)
	})

	printer := func(w io.Writer) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			fmt.Fprintln(w, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	_ = vm.Set("out", printer(stdout))
	_ = vm.Set("err", printer(stderr))

	console := vm.NewObject()
	_ = console.Set("log", printer(stdout))
	_ = console.Set("error", printer(stderr))
	_ = vm.Set("console", console)

	_ = vm.Set("_emscripten_cancel_main_loop", func(goja.FunctionCall) goja.Value {
		inst.cancelMainLoop()
		return goja.Undefined()
	})
}

// encodeUTF8 returns s as NUL-terminated UTF-8 in at most maxBytes bytes.
// A character that does not fit whole is dropped with everything after it.
func encodeUTF8(s string, maxBytes int64) []byte {
	if maxBytes <= 0 {
		return nil
	}
	limit := int64(len(s))
	if maxBytes-1 < limit {
		limit = maxBytes - 1
	}
	out := make([]byte, 0, limit+1)
	var tmp [utf8.UTFMax]byte
	for _, r := range s {
		n := utf8.EncodeRune(tmp[:], r)
		if int64(len(out)+n) > limit {
			break
		}
		out = append(out, tmp[:n]...)
	}
	return append(out, 0)
}

// defineScripts turns every payload into a global function named after its
// native symbol.
func (inst *Instance) defineScripts(scripts []Script) (map[string]goja.Callable, error) {
	fns := make(map[string]goja.Callable, len(scripts))
	for _, s := range scripts {
		if reservedGlobals[s.Native] {
			return nil, errors.New(errors.PhaseLoad, errors.KindNameConflict).
				Symbol(s.Symbol).
				Detail("%q is a runtime helper", s.Native).
				Build()
		}
		prog, err := goja.Compile(s.Symbol, s.Source(), false)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Symbol(s.Symbol).
				Cause(err).
				Detail("payload is not a valid function body").
				Build()
		}
		v, err := inst.vm.RunProgram(prog)
		if err != nil {
			return nil, errors.Script(s.Symbol, err)
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, errors.InvalidData(errors.PhaseLoad, s.Symbol, "payload did not evaluate to a function")
		}
		if err := inst.vm.Set(s.Native, v); err != nil {
			return nil, errors.Script(s.Symbol, err)
		}
		fns[s.Native] = fn
	}
	return fns, nil
}

// guard interrupts the runtime when the timeout elapses or ctx is done.
// The returned func disarms it and clears any pending interrupt.
func (inst *Instance) guard(ctx context.Context) func() {
	var timer *time.Timer
	if inst.timeout > 0 {
		timer = time.AfterFunc(inst.timeout, func() {
			inst.vm.Interrupt("execution timeout")
		})
	}
	stop := context.AfterFunc(ctx, func() {
		inst.vm.Interrupt(ctx.Err())
	})
	return func() {
		if timer != nil {
			timer.Stop()
		}
		stop()
		inst.vm.ClearInterrupt()
	}
}

// runScript evaluates code on the instance runtime. Callers outside an
// active call take the instance lock.
func (inst *Instance) runScript(ctx context.Context, code string) (goja.Value, error) {
	if !inst.active(ctx) {
		inst.mu.Lock()
		defer inst.mu.Unlock()
		if inst.closed {
			return nil, errClosed()
		}
		ctx = inst.activate(ctx)
		defer inst.guard(ctx)()
	}

	restore := inst.enter(ctx)
	defer restore()

	v, err := inst.vm.RunString(code)
	if err != nil {
		return nil, inst.scriptError("", err)
	}
	return v, nil
}

func (inst *Instance) scriptError(symbol string, err error) error {
	if ie, ok := err.(*goja.InterruptedError); ok {
		return errors.New(errors.PhaseRuntime, errors.KindScript).
			Symbol(symbol).
			Cause(err).
			Detail("script interrupted: %v", ie.Value()).
			Build()
	}
	return errors.Script(symbol, err)
}
