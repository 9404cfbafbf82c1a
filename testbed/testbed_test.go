package testbed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/loader"
	"github.com/wippyai/emjs/manifest"
	"github.com/wippyai/emjs/pipeline"
	"github.com/wippyai/emjs/snippet"
	"github.com/wippyai/emjs/symbol"
	"github.com/wippyai/emjs/wasm"
)

const scenarioManifest = `module: scenarios
namespace: env
snippets:
  - signature: "sum(n int32) int32"
    body: |
      let sum = 0;
      for (let i = 1; i < n; i++)
      {
          sum += i;
      }
      return sum;

  - signature: "(a, b, c int32) int32"
    body: "return a + b * c;"

  - signature: "second_js(param int32) int32"
    body: "return _hadd_rs(param, param, param, param);"

  - signature: "first_js(param int32) int32"
    body: "return second_js(param)"

  - signature: "get_string_from_js() *byte"
    body: |
      var jsString = 'hello from js';
      var lengthBytes = jsString.length+1;
      var stringOnWasmHeap = _malloc(lengthBytes);
      stringToUTF8(jsString, stringOnWasmHeap, lengthBytes);
      return stringOnWasmHeap;

  - signature: "string_param(url *byte)"
    body: |
      url = UTF8ToString(Number(url));
      out(` + "`Query url is: ${url}`" + `);
`

// Host implements the natives the scenario scripts call.
type Host struct {
	mu    sync.Mutex
	hadds [][4]int32
}

func (h *Host) HaddRS(c *loader.Caller, args []uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var v [4]int32
	var sum int32
	for i := range v {
		v[i] = int32(args[i])
		sum += v[i]
	}
	h.hadds = append(h.hadds, v)
	return uint64(uint32(sum)), nil
}

type scenario struct {
	inst   *loader.Instance
	host   *Host
	stdout *bytes.Buffer
	result *pipeline.Result
}

func setup(t *testing.T, mode snippet.Mode) *scenario {
	t.Helper()
	ctx := context.Background()

	m, err := manifest.Parse("scenarios.yaml", []byte(scenarioManifest))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	res, err := pipeline.Run(ctx, pipeline.Config{Mode: mode}, m.Snippets)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	host := &Host{}
	stdout := &bytes.Buffer{}
	l := loader.New(loader.Options{Stdout: stdout})
	if err := l.RegisterNative("hadd_rs", "(v1, v2, v3, v4 int32) int32", loader.ThreadContextMainRuntimeThread, host.HaddRS); err != nil {
		t.Fatalf("register native: %v", err)
	}

	inst, err := l.Instantiate(ctx, res.Object)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Close(ctx)
		_ = l.Close(ctx)
	})
	return &scenario{inst: inst, host: host, stdout: stdout, result: res}
}

func modes() []snippet.Mode {
	return []snippet.Mode{snippet.ModeVerbatim, snippet.ModeEscaped}
}

func TestScenario_Sum(t *testing.T) {
	for _, mode := range modes() {
		t.Run(mode.String(), func(t *testing.T) {
			s := setup(t, mode)
			out, err := s.inst.Call(context.Background(), "sum", 100)
			if err != nil {
				t.Fatalf("call sum: %v", err)
			}
			if out[0] != 4950 {
				t.Errorf("sum(100) = %d, want 4950", out[0])
			}
		})
	}
}

func TestScenario_AnonymousArithmetic(t *testing.T) {
	s := setup(t, snippet.ModeVerbatim)

	var anon string
	for _, u := range s.result.Units {
		if u.Pair.Derived {
			anon = u.Pair.Native
		}
	}
	if anon == "" {
		t.Fatal("no call-site derived snippet in build")
	}
	if !strings.HasPrefix(anon, "sitescenariosyaml_") {
		t.Errorf("derived name %q should come from the manifest position", anon)
	}

	out, err := s.inst.Call(context.Background(), anon, 3, 4, 5)
	if err != nil {
		t.Fatalf("call %s: %v", anon, err)
	}
	if out[0] != 23 {
		t.Errorf("%s(3, 4, 5) = %d, want 23", anon, out[0])
	}
}

func TestScenario_Transitive(t *testing.T) {
	s := setup(t, snippet.ModeVerbatim)

	out, err := s.inst.Call(context.Background(), "first_js", 5)
	if err != nil {
		t.Fatalf("call first_js: %v", err)
	}
	if out[0] != 20 {
		t.Errorf("first_js(5) = %d, want 20", out[0])
	}
	if len(s.host.hadds) != 1 || s.host.hadds[0] != [4]int32{5, 5, 5, 5} {
		t.Errorf("hadd_rs calls = %v", s.host.hadds)
	}
}

func TestScenario_StringResult(t *testing.T) {
	for _, mode := range modes() {
		t.Run(mode.String(), func(t *testing.T) {
			s := setup(t, mode)
			out, err := s.inst.Call(context.Background(), "get_string_from_js")
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			ptr := uint32(out[0])
			got, err := s.inst.ReadString(ptr)
			if err != nil {
				t.Fatalf("read string: %v", err)
			}
			if got != "hello from js" {
				t.Errorf("string = %q, want %q", got, "hello from js")
			}
			s.inst.Free(ptr)
			if live := s.inst.Heap().Live(); live != 0 {
				t.Errorf("%d allocation(s) leaked", live)
			}
		})
	}
}

func TestScenario_StringParam(t *testing.T) {
	s := setup(t, snippet.ModeEscaped)
	ctx := context.Background()

	ptr, err := s.inst.WriteString("https://reqbin.com/echo/get/json")
	if err != nil {
		t.Fatal(err)
	}
	defer s.inst.Free(ptr)

	if _, err := s.inst.Call(ctx, "string_param", uint64(ptr)); err != nil {
		t.Fatalf("call string_param: %v", err)
	}
	if got := s.stdout.String(); got != "Query url is: https://reqbin.com/echo/get/json\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestScenario_RunScript(t *testing.T) {
	s := setup(t, snippet.ModeVerbatim)
	ctx := context.Background()

	str, err := s.inst.RunScriptString(ctx, "'abc'.toUpperCase()")
	if err != nil || str != "ABC" {
		t.Errorf("RunScriptString = %q, %v", str, err)
	}
	n, err := s.inst.RunScriptInt(ctx, "6*5")
	if err != nil || n != 30 {
		t.Errorf("RunScriptInt = %d, %v", n, err)
	}
	n, err = s.inst.RunScriptInt(ctx, "_sum(10)")
	if err != nil || n != 45 {
		t.Errorf("script calling an export = %d, %v", n, err)
	}
}

func TestScenario_MainLoop(t *testing.T) {
	s := setup(t, snippet.ModeVerbatim)

	counter := 0
	loop, err := s.inst.RunMainLoop(context.Background(), 30, func(c *loader.Caller) error {
		counter++
		if counter > 10 {
			c.CancelMainLoop()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if counter != 11 || loop.Iterations() != 11 {
		t.Errorf("counter = %d, iterations = %d, want 11", counter, loop.Iterations())
	}
}

// The object carries every payload with its reference marker, and each
// symbol's declared size is its byte count.
func TestScenario_ObjectLayout(t *testing.T) {
	s := setup(t, snippet.ModeEscaped)

	m, err := wasm.ParseModule(s.result.Object)
	if err != nil {
		t.Fatal(err)
	}
	cs, ok := m.CustomSection(export.SymbolsSection)
	if !ok {
		t.Fatal("no symbol table")
	}
	entries, err := export.DecodeSymbolTable(cs.Data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2*len(s.result.Units) {
		t.Fatalf("entries = %d, want %d", len(entries), 2*len(s.result.Units))
	}
	for i, u := range s.result.Units {
		ref, payload := entries[2*i], entries[2*i+1]
		if ref.Name != symbol.RefTag+u.Pair.Native || ref.Size != 1 || !ref.Ref() {
			t.Errorf("ref entry = %+v", ref)
		}
		if payload.Name != symbol.PayloadTag+u.Pair.Native || int(payload.Size) != len(u.Payload.Bytes) {
			t.Errorf("payload entry = %+v", payload)
		}
		if payload.Mode != snippet.ModeEscaped {
			t.Errorf("%s mode = %s", payload.Name, payload.Mode)
		}
	}
	if len(s.inst.Scripts()) != len(s.result.Units) {
		t.Errorf("loader saw %d scripts", len(s.inst.Scripts()))
	}
}

const directiveSource = "package app\n\n" +
	"//emjs:func twice(x int32) int32\n" +
	"const twiceJS = `\n" +
	"	return x * 2;\n" +
	"`\n\n" +
	"//emjs:inline (x int32) int32\n" +
	"const incJS = \"return x + 1;\"\n"

func TestScenario_SourceDirectives(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.go"), []byte(directiveSource), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	decls, err := manifest.ScanSources(root, []string{"."})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	res, err := pipeline.Run(ctx, pipeline.Config{}, decls)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := manifest.Output{Object: filepath.Join(root, "build", "app.wasm")}
	if _, err := pipeline.WriteArtifacts(res, out); err != nil {
		t.Fatalf("write: %v", err)
	}
	bin, err := os.ReadFile(out.Object)
	if err != nil {
		t.Fatal(err)
	}

	l := loader.New(loader.Options{})
	inst, err := l.Instantiate(ctx, bin)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	got, err := inst.Call(ctx, "twice", 21)
	if err != nil || got[0] != 42 {
		t.Errorf("twice(21) = %v, %v", got, err)
	}
	inc := res.Units[1].Pair.Native
	got, err = inst.Call(ctx, inc, 41)
	if err != nil || got[0] != 42 {
		t.Errorf("%s(41) = %v, %v", inc, got, err)
	}
}
