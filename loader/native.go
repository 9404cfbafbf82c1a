package loader

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/emjs"
	"github.com/wippyai/emjs/bind"
)

// ThreadContext says where a native callback expects to run.
type ThreadContext int

const (
	ThreadContextMainRuntimeThread ThreadContext = 1
	ThreadContextCallingThread     ThreadContext = 2
	ThreadContextMainBrowserThread               = ThreadContextMainRuntimeThread
)

func (t ThreadContext) String() string {
	switch t {
	case ThreadContextMainRuntimeThread:
		return "main-runtime-thread"
	case ThreadContextCallingThread:
		return "calling-thread"
	default:
		return "thread-context(" + strconv.Itoa(int(t)) + ")"
	}
}

// NativeFunc implements a native callback. Arguments and the result use the
// raw wasm encoding of the signature's types.
type NativeFunc func(c *Caller, args []uint64) (uint64, error)

// Native is a host function reachable from scripts as _<Name> and, when
// the object imports it, from the module itself.
type Native struct {
	Name    string
	Sig     bind.Signature
	Context ThreadContext
	Fn      NativeFunc
}

// Caller gives a native callback access to the instance that invoked it.
// Calls made through it re-enter the instance without taking its lock.
type Caller struct {
	inst *Instance
	ctx  context.Context
}

func (c *Caller) Context() context.Context {
	return c.ctx
}

func (c *Caller) Memory() emjs.Memory {
	return c.inst.mem
}

func (c *Caller) Heap() *Heap {
	return c.inst.heap
}

// Call invokes an exported function of the instance.
func (c *Caller) Call(name string, args ...uint64) ([]uint64, error) {
	return c.inst.call(c.ctx, name, args)
}

// ReadString reads a NUL-terminated UTF-8 string.
func (c *Caller) ReadString(ptr uint32) (string, error) {
	return c.inst.readString(ptr)
}

// RunScriptInt evaluates code on the instance runtime.
func (c *Caller) RunScriptInt(code string) (int32, error) {
	v, err := c.inst.runScript(c.ctx, code)
	if err != nil {
		return 0, err
	}
	return int32(v.ToInteger()), nil
}

// CancelMainLoop stops the main loop currently running on the instance.
func (c *Caller) CancelMainLoop() {
	c.inst.cancelMainLoop()
}

// MainLoop repeatedly runs a step until cancelled. A positive fps paces the
// loop with a ticker; otherwise steps run back to back.
type MainLoop struct {
	fps        int
	done       chan struct{}
	once       sync.Once
	iterations atomic.Int64
}

// NewMainLoop creates a loop paced at fps frames per second.
func NewMainLoop(fps int) *MainLoop {
	return &MainLoop{fps: fps, done: make(chan struct{})}
}

// Cancel stops the loop after the current step. Safe to call repeatedly.
func (l *MainLoop) Cancel() {
	l.once.Do(func() { close(l.done) })
}

// Cancelled reports whether Cancel was called.
func (l *MainLoop) Cancelled() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Iterations returns the number of completed steps.
func (l *MainLoop) Iterations() int {
	return int(l.iterations.Load())
}

// Run executes step until the loop is cancelled, ctx is done or step fails.
// Cancellation is not an error.
func (l *MainLoop) Run(ctx context.Context, step func() error) error {
	var tick <-chan time.Time
	if l.fps > 0 {
		t := time.NewTicker(time.Second / time.Duration(l.fps))
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := step(); err != nil {
			return err
		}
		l.iterations.Add(1)

		if tick == nil {
			continue
		}
		select {
		case <-tick:
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
