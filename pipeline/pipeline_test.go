package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/manifest"
	"github.com/wippyai/emjs/snippet"
)

func decl(t *testing.T, name string, site snippet.Site, sig, body string) manifest.Declaration {
	t.Helper()
	s, err := bind.ParseSignature(sig)
	if err != nil {
		t.Fatal(err)
	}
	return manifest.Declaration{
		Snippet: snippet.Snippet{
			Identity: snippet.Identity{Name: name, Site: site},
			Params:   s.ParamNames(),
			Body:     body,
		},
		Signature: s,
	}
}

func at(line int) snippet.Site {
	return snippet.Site{File: "main.go", Line: line, Column: 2}
}

func TestRun(t *testing.T) {
	decls := []manifest.Declaration{
		decl(t, "sum", at(1), "(n int32) int32", "var t = 0;\nfor (var i = 0; i < n; i++) { t += i; }\nreturn t;"),
		decl(t, "", at(5), "(a, b, c int32) int32", "return a + b * c;"),
		decl(t, "hello", at(9), "() ptr", `return "hello";`),
	}

	res, err := Run(context.Background(), Config{Mode: snippet.ModeVerbatim}, decls)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Units) != 3 || len(res.Export.Symbols) != 6 {
		t.Fatalf("units=%d symbols=%d", len(res.Units), len(res.Export.Symbols))
	}
	for i, u := range res.Units {
		if u.Payload.Size != len(u.Payload.Bytes) {
			t.Errorf("unit %d size mismatch", i)
		}
		if u.Import == nil || u.Import.Module != "env" || u.Import.Name != u.Pair.Native {
			t.Errorf("unit %d import = %+v", i, u.Import)
		}
	}
	if res.Units[0].Pair.Payload != "__em_js__sum" {
		t.Errorf("first payload = %q", res.Units[0].Pair.Payload)
	}
	if !res.Units[1].Pair.Derived || !strings.HasPrefix(res.Units[1].Pair.Native, "sitemaingo_5_2_") {
		t.Errorf("anonymous pair = %+v", res.Units[1].Pair)
	}
	if len(res.Object) == 0 {
		t.Error("object not built")
	}
}

func TestRun_DeclarationOrderKept(t *testing.T) {
	var decls []manifest.Declaration
	for i := 0; i < 64; i++ {
		decls = append(decls, decl(t, fmt.Sprintf("f%d", i), at(i+1), "(x int32) int32", fmt.Sprintf("return x + %d;", i)))
	}
	res, err := Run(context.Background(), Config{}, decls)
	if err != nil {
		t.Fatal(err)
	}
	for i, u := range res.Units {
		if u.Pair.Native != fmt.Sprintf("f%d", i) {
			t.Fatalf("unit %d = %s", i, u.Pair.Native)
		}
		if !strings.Contains(u.Payload.Normalized, fmt.Sprintf("+ %d;", i)) {
			t.Fatalf("unit %d carries payload %q", i, u.Payload.Normalized)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("conflict", func(t *testing.T) {
		decls := []manifest.Declaration{
			decl(t, "dup", at(1), "()", "return 1;"),
			decl(t, "dup", at(7), "()", "return 2;"),
		}
		_, err := Run(context.Background(), Config{}, decls)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseName, Kind: errors.KindNameConflict}) {
			t.Fatalf("error = %v, want name conflict", err)
		}
		if !strings.Contains(err.Error(), "main.go:1:2") || !strings.Contains(err.Error(), "main.go:7:2") {
			t.Errorf("conflict should name both sites: %v", err)
		}
	})

	t.Run("first failing index wins", func(t *testing.T) {
		decls := []manifest.Declaration{
			decl(t, "ok", at(1), "()", "return 1;"),
			decl(t, "bad1", at(2), "()", "if (x) {"),
			decl(t, "bad2", at(3), "()", "f(]"),
		}
		_, err := Run(context.Background(), Config{Mode: snippet.ModeVerbatim}, decls)
		if err == nil || !strings.Contains(err.Error(), "bad1") {
			t.Errorf("error = %v, want bad1", err)
		}
	})

	t.Run("arity", func(t *testing.T) {
		d := decl(t, "f", at(1), "(a, b int32)", "return a;")
		d.Snippet.Params = []string{"a"}
		_, err := Run(context.Background(), Config{}, []manifest.Declaration{d})
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBind, Kind: errors.KindArityMismatch}) {
			t.Errorf("error = %v, want arity mismatch", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, Config{}, []manifest.Declaration{decl(t, "f", at(1), "()", "return 1;")})
		if err == nil || !stderrors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want cancellation", err)
		}
	})
}

func TestRun_ELFHasNoObject(t *testing.T) {
	res, err := Run(context.Background(), Config{Target: export.TargetELF}, []manifest.Declaration{
		decl(t, "f", at(1), "()", "return 1;"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Object != nil {
		t.Error("ELF target should not build a wasm object")
	}
	if res.Export.Symbols[1].Section != ".rodata.__em_js__f" {
		t.Errorf("section = %q", res.Export.Symbols[1].Section)
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Config{}, []manifest.Declaration{
		decl(t, "sum", at(1), "(n int32) int32", "return n;"),
		decl(t, "name", at(2), "() unsafe.Pointer", `return 0;`),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := manifest.Output{
		Object: filepath.Join(dir, "build", "emjs.wasm"),
		Asm:    filepath.Join(dir, "build", "emjs.s"),
		Go:     filepath.Join(dir, "bindings", "emjs.go"),
		Header: filepath.Join(dir, "include", "emjs.h"),
	}
	written, err := WriteArtifacts(res, out)
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	if len(written) != 4 {
		t.Fatalf("written = %+v", written)
	}
	for _, a := range written {
		if a.Skipped {
			t.Errorf("%s skipped on first write", a.Kind)
		}
		if _, err := os.Stat(a.Path); err != nil {
			t.Errorf("%s: %v", a.Kind, err)
		}
	}

	goSrc, _ := os.ReadFile(out.Go)
	if !strings.Contains(string(goSrc), "package bindings") || !strings.Contains(string(goSrc), "//go:wasmimport env sum") {
		t.Errorf("go bindings:\n%s", goSrc)
	}

	again, err := WriteArtifacts(res, manifest.Output{Object: out.Object})
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 || !again[0].Skipped {
		t.Errorf("unchanged object should be skipped: %+v", again)
	}
}

func TestWriteArtifacts_SignatureChangeRewritesObject(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "emjs.wasm")
	out := manifest.Output{Object: path}

	first, err := Run(ctx, Config{}, []manifest.Declaration{
		decl(t, "sum", at(1), "(n int32) int32", "return n;"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := WriteArtifacts(first, out); err != nil {
		t.Fatal(err)
	}

	second, err := Run(ctx, Config{Namespace: "other"}, []manifest.Declaration{
		decl(t, "sum", at(1), "(n float64) float64", "return n;"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first.Object, second.Object) {
		t.Fatal("objects should differ")
	}

	written, err := WriteArtifacts(second, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 || written[0].Skipped {
		t.Errorf("changed object was skipped: %+v", written)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, second.Object) {
		t.Error("object on disk is stale")
	}
}
