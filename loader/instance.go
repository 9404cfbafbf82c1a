package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/emjs"
	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/wasm"
)

type activeKey struct{}

// Instance is an instantiated object with its script runtime. Calls are
// serialized; nested calls made while a call is active run inline on the
// calling goroutine.
type Instance struct {
	mu      sync.Mutex
	rt      wazero.Runtime
	mod     api.Module
	mem     *wazeroMemory
	heap    *Heap
	vm      *goja.Runtime
	scripts []Script
	natives map[string]Native
	timeout time.Duration

	ctx     context.Context
	pending error
	loop    *MainLoop
	closed  bool
}

// Instantiate loads an object produced by the exporter.
func (l *Loader) Instantiate(ctx context.Context, bin []byte) (*Instance, error) {
	m, err := wasm.ParseModule(bin)
	if err != nil {
		return nil, errors.Load("parse object", err)
	}
	scripts, err := ReadScripts(m)
	if err != nil {
		return nil, err
	}

	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(l.cache).
		WithCloseOnContextDone(true)
	if l.opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(l.opts.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	inst := &Instance{
		rt:      rt,
		vm:      newVM(l.opts.MaxCallStackSize),
		scripts: scripts,
		natives: l.snapshot(),
		timeout: l.opts.ScriptTimeout,
		ctx:     context.Background(),
	}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(ctx)
		}
	}()

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Load("compile object", err)
	}

	inst.installHelpers(l.opts.Stdout, l.opts.Stderr)
	fns, err := inst.defineScripts(scripts)
	if err != nil {
		return nil, err
	}
	if err := inst.installNatives(fns); err != nil {
		return nil, err
	}

	if err := inst.linkImports(ctx, compiled, l.opts.Namespace, fns); err != nil {
		return nil, err
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst.mod = mod

	mem := mod.Memory()
	if mem == nil {
		return nil, errors.Load("object exports no memory", nil)
	}
	inst.mem = &wazeroMemory{mem: mem}

	base := mod.ExportedGlobal(export.HeapBaseName)
	if base == nil {
		return nil, errors.Load("object exports no "+export.HeapBaseName, nil)
	}
	inst.heap = NewHeap(inst.mem, api.DecodeU32(base.Get()))

	inst.installExports(compiled)

	ok = true
	Logger().Info("instantiated object",
		zap.Int("scripts", len(scripts)),
		zap.Int("natives", len(inst.natives)),
		zap.Uint32("heap_base", inst.heap.Base()))
	return inst, nil
}

// linkImports builds the host module that satisfies the object's imports:
// a payload of the same name, or else a native. Anything left over is
// reported in one MissingImportsError.
func (inst *Instance) linkImports(ctx context.Context, compiled wazero.CompiledModule, namespace string, fns map[string]goja.Callable) error {
	builder := inst.rt.NewHostModuleBuilder(namespace)
	var missing []string

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != namespace {
			missing = append(missing, module+"#"+name)
			continue
		}
		params, results := def.ParamTypes(), def.ResultTypes()

		if fn, ok := fns[name]; ok {
			script := inst.script(name)
			if len(params) != len(script.Params) {
				return errors.ArityMismatch(errors.PhaseLink, name, len(params), len(script.Params))
			}
			if len(results) > 1 {
				return errors.Unsupported(errors.PhaseLink, "multiple results for "+name)
			}
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(inst.scriptImport(name, fn, params, results), params, results).
				Export(name)
			continue
		}

		if n, ok := inst.natives[name]; ok {
			want := n.Sig.FuncType()
			if !sameTypes(params, valueTypesOf(want.Params)) || !sameTypes(results, valueTypesOf(want.Results)) {
				return errors.New(errors.PhaseLink, errors.KindArityMismatch).
					Symbol(name).
					Detail("native signature %s does not match import", n.Sig).
					Build()
			}
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(inst.nativeImport(n), params, results).
				Export(name)
			continue
		}

		missing = append(missing, module+"#"+name)
	}

	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Instantiation(err)
	}
	return nil
}

func valueTypesOf(types []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		out[i] = api.ValueType(t)
	}
	return out
}

// scriptImport runs a payload function for a call from the module.
func (inst *Instance) scriptImport(name string, fn goja.Callable, params, results []api.ValueType) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		restore := inst.enter(ctx)
		defer restore()

		args := make([]goja.Value, len(params))
		for i, t := range params {
			args[i] = liftValue(inst.vm, t, stack[i])
		}
		v, err := fn(goja.Undefined(), args...)
		if err != nil {
			e := inst.scriptError(name, err)
			inst.pending = e
			panic(e)
		}
		if len(results) == 1 {
			stack[0] = lowerValue(results[0], v)
		}
	}
}

// nativeImport runs a native for a call from the module.
func (inst *Instance) nativeImport(n Native) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		restore := inst.enter(ctx)
		defer restore()

		args := append([]uint64(nil), stack[:len(n.Sig.Params)]...)
		r, err := n.Fn(&Caller{inst: inst, ctx: ctx}, args)
		if err != nil {
			inst.pending = err
			panic(err)
		}
		if n.Sig.Result != bind.Void {
			stack[0] = r
		}
	}
}

// installNatives exposes every native to scripts as _<name>.
func (inst *Instance) installNatives(fns map[string]goja.Callable) error {
	for name, n := range inst.natives {
		name, n := name, n
		if _, clash := fns["_"+name]; clash {
			return errors.New(errors.PhaseLink, errors.KindNameConflict).
				Symbol(name).
				Detail("payload _%s shadows a native", name).
				Build()
		}
		_ = inst.vm.Set("_"+name, func(call goja.FunctionCall) goja.Value {
			args := make([]uint64, len(n.Sig.Params))
			for i, p := range n.Sig.Params {
				args[i] = lowerTyped(p.Type, call.Argument(i))
			}
			if ce := Logger().Check(zap.DebugLevel, "native call"); ce != nil {
				ce.Write(zap.String("native", n.Name), zap.Stringer("context", n.Context))
			}
			r, err := n.Fn(&Caller{inst: inst, ctx: inst.ctx}, args)
			if err != nil {
				panic(inst.vm.NewGoError(err))
			}
			return liftTyped(inst.vm, n.Sig.Result, r)
		})
	}
	return nil
}

// installExports exposes exported functions to scripts as _<name>, unless
// a native already claims the name.
func (inst *Instance) installExports(compiled wazero.CompiledModule) {
	for name, def := range compiled.ExportedFunctions() {
		name := name
		if _, taken := inst.natives[name]; taken || reservedGlobals["_"+name] {
			continue
		}
		params, results := def.ParamTypes(), def.ResultTypes()
		_ = inst.vm.Set("_"+name, func(call goja.FunctionCall) goja.Value {
			args := make([]uint64, len(params))
			for i, t := range params {
				args[i] = lowerValue(t, call.Argument(i))
			}
			res, err := inst.call(inst.ctx, name, args)
			if err != nil {
				panic(inst.vm.NewGoError(err))
			}
			if len(results) == 0 {
				return goja.Undefined()
			}
			return liftValue(inst.vm, results[0], res[0])
		})
	}
}

func (inst *Instance) script(native string) Script {
	for _, s := range inst.scripts {
		if s.Native == native {
			return s
		}
	}
	return Script{}
}

func (inst *Instance) active(ctx context.Context) bool {
	return ctx.Value(activeKey{}) == inst
}

func (inst *Instance) activate(ctx context.Context) context.Context {
	return context.WithValue(ctx, activeKey{}, inst)
}

func (inst *Instance) enter(ctx context.Context) func() {
	prev := inst.ctx
	inst.ctx = ctx
	return func() { inst.ctx = prev }
}

func errClosed() error {
	return errors.InvalidInput(errors.PhaseRuntime, "instance is closed")
}

// Call invokes an exported function with raw wasm arguments.
func (inst *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if inst.active(ctx) {
		return inst.call(ctx, name, args)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.closed {
		return nil, errClosed()
	}
	ctx = inst.activate(ctx)
	defer inst.guard(ctx)()
	return inst.call(ctx, name, args)
}

func (inst *Instance) call(ctx context.Context, name string, args []uint64) ([]uint64, error) {
	fn := inst.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return nil, errors.ArityMismatch(errors.PhaseRuntime, name, want, len(args))
	}

	restore := inst.enter(ctx)
	defer restore()

	inst.pending = nil
	res, err := fn.Call(ctx, args...)
	if err != nil {
		if p := inst.pending; p != nil {
			inst.pending = nil
			return nil, p
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.PhaseRuntime, errors.KindTrap, ctx.Err(), "call "+name+" cancelled")
		}
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindTrap, err, "call "+name)
	}
	return res, nil
}

// RunScriptInt evaluates code and converts the result to an integer.
func (inst *Instance) RunScriptInt(ctx context.Context, code string) (int32, error) {
	v, err := inst.runScript(ctx, code)
	if err != nil {
		return 0, err
	}
	return int32(v.ToInteger()), nil
}

// RunScriptString evaluates code and converts the result to a string.
func (inst *Instance) RunScriptString(ctx context.Context, code string) (string, error) {
	v, err := inst.runScript(ctx, code)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// RunMainLoop calls step until it cancels the loop through its Caller,
// a script calls _emscripten_cancel_main_loop, or ctx is done.
func (inst *Instance) RunMainLoop(ctx context.Context, fps int, step func(c *Caller) error) (*MainLoop, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.closed {
		return nil, errClosed()
	}
	if inst.loop != nil {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "main loop already running")
	}

	loop := NewMainLoop(fps)
	inst.loop = loop
	defer func() { inst.loop = nil }()

	ctx = inst.activate(ctx)
	restore := inst.enter(ctx)
	defer restore()

	err := loop.Run(ctx, func() error {
		return step(&Caller{inst: inst, ctx: ctx})
	})
	Logger().Debug("main loop finished", zap.Int("iterations", loop.Iterations()), zap.Error(err))
	return loop, err
}

func (inst *Instance) cancelMainLoop() {
	if inst.loop != nil {
		inst.loop.Cancel()
	}
}

// Scripts returns the payloads the instance was built from.
func (inst *Instance) Scripts() []Script {
	return inst.scripts
}

// Memory returns the instance's linear memory.
func (inst *Instance) Memory() emjs.Memory {
	return inst.mem
}

// Heap returns the allocator behind _malloc and _free.
func (inst *Instance) Heap() *Heap {
	return inst.heap
}

// ReadString reads a NUL-terminated UTF-8 string at ptr.
func (inst *Instance) ReadString(ptr uint32) (string, error) {
	return inst.readString(ptr)
}

func (inst *Instance) readString(ptr uint32) (string, error) {
	b, err := inst.mem.ReadCString(ptr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteString copies s plus a NUL terminator into a fresh heap block.
func (inst *Instance) WriteString(s string) (uint32, error) {
	ptr, err := inst.heap.Alloc(uint32(len(s)+1), 1)
	if err != nil {
		return 0, err
	}
	data := make([]byte, len(s)+1)
	copy(data, s)
	if err := inst.mem.Write(ptr, data); err != nil {
		inst.heap.Free(ptr)
		return 0, err
	}
	return ptr, nil
}

// Free releases a heap block, such as a string returned by a payload.
func (inst *Instance) Free(ptr uint32) {
	inst.heap.Free(ptr)
}

// Close tears down the wasm runtime. Further calls fail.
func (inst *Instance) Close(ctx context.Context) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.closed {
		return nil
	}
	inst.closed = true
	if err := inst.rt.Close(ctx); err != nil {
		return fmt.Errorf("close runtime: %w", err)
	}
	return nil
}
