// Package loader is the reference loader for emjs objects. It reads the
// payloads out of an object, turns each into a JavaScript function on a goja
// runtime and satisfies the object's env imports with them on wazero.
package loader

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/symbol"
)

// Options configures a Loader.
type Options struct {
	// Namespace is the import module payloads are bound to. Default "env".
	Namespace string

	// Stdout and Stderr receive out() and err() output. Default os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// ScriptTimeout interrupts a top-level call or script evaluation that
	// runs longer. 0 disables the limit.
	ScriptTimeout time.Duration

	// MemoryLimitPages caps linear memory in 64KiB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	// MaxCallStackSize bounds script recursion. 0 means 1024.
	MaxCallStackSize int
}

// Loader instantiates emjs objects. Compiled modules are cached across
// instances.
type Loader struct {
	opts    Options
	cache   wazero.CompilationCache
	mu      sync.RWMutex
	natives map[string]Native
}

// New creates a loader.
func New(opts Options) *Loader {
	if opts.Namespace == "" {
		opts.Namespace = bind.DefaultNamespace
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Loader{
		opts:    opts,
		cache:   wazero.NewCompilationCache(),
		natives: make(map[string]Native),
	}
}

// RegisterNative makes fn callable from scripts as _<name> and lets objects
// import it under name. sig is a Go-style signature such as
// "(a, b int32) int32". Registration affects instances created afterwards.
func (l *Loader) RegisterNative(name, sig string, tc ThreadContext, fn NativeFunc) error {
	if !symbol.IsCIdentifier(name) {
		return errors.InvalidIdentifier(errors.PhaseLink, name)
	}
	if reservedGlobals["_"+name] {
		return errors.New(errors.PhaseLink, errors.KindNameConflict).
			Symbol(name).
			Detail("%q is a runtime helper", "_"+name).
			Build()
	}
	if tc != ThreadContextMainRuntimeThread && tc != ThreadContextCallingThread {
		return errors.InvalidInput(errors.PhaseLink, "unknown thread context "+tc.String())
	}
	s, err := bind.ParseSignature(sig)
	if err != nil {
		return err
	}
	s.Name = name

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.natives[name]; exists {
		return errors.New(errors.PhaseLink, errors.KindNameConflict).
			Symbol(name).
			Detail("native registered twice").
			Build()
	}
	l.natives[name] = Native{Name: name, Sig: s, Context: tc, Fn: fn}
	return nil
}

// Natives returns the registered natives sorted by name.
func (l *Loader) Natives() []Native {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Native, 0, len(l.natives))
	for _, n := range l.natives {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *Loader) snapshot() map[string]Native {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Native, len(l.natives))
	for k, v := range l.natives {
		out[k] = v
	}
	return out
}

// Close releases the compilation cache. Instances must be closed first.
func (l *Loader) Close(ctx context.Context) error {
	Logger().Debug("closing loader")
	return l.cache.Close(ctx)
}
