package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/emjs/bind"
)

const sampleManifest = `module: demo
mode: escaped
target: wasm32
namespace: env
sources:
  - ./...
output:
  object: ${EMJS_TEST_OUT}/demo.wasm
  go: bindings/emjs.go
  go_package: bindings
snippets:
  - name: sum
    signature: "(n int32) int32"
    body: |
      var total = 0;
      for (var i = 0; i < n; i++) {
        total += i;
      }
      return total;
  - signature: "(a, b, c int32) int32"
    body: "return a + b * c;"
  - signature: "second_js(x int32) int32"
    params: [value]
    body: "return _hadd_rs(value, value, value, value);"
`

func TestParse(t *testing.T) {
	t.Setenv("EMJS_TEST_OUT", "/tmp/out")

	m, err := Parse("conf/emjs.yaml", []byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if m.Module != "demo" || m.Mode != "escaped" || m.Target != "wasm32" || m.Namespace != "env" {
		t.Errorf("header fields = %+v", m)
	}
	if len(m.Sources) != 1 || m.Sources[0] != "./..." {
		t.Errorf("Sources = %v", m.Sources)
	}
	if m.Output.Object != "/tmp/out/demo.wasm" {
		t.Errorf("Object = %q, want expanded path", m.Output.Object)
	}
	if m.Output.GoPackage != "bindings" {
		t.Errorf("GoPackage = %q", m.Output.GoPackage)
	}
	if len(m.Snippets) != 3 {
		t.Fatalf("snippets = %d, want 3", len(m.Snippets))
	}

	sum := m.Snippets[0]
	if sum.Snippet.Identity.Name != "sum" || len(sum.Snippet.Params) != 1 || sum.Snippet.Params[0] != "n" {
		t.Errorf("sum = %+v", sum.Snippet)
	}
	if !strings.Contains(sum.Snippet.Body, "total += i;") {
		t.Errorf("sum body = %q", sum.Snippet.Body)
	}
	if sum.Signature.Result != bind.Int32 {
		t.Errorf("sum result = %v", sum.Signature.Result)
	}

	anon := m.Snippets[1]
	if !anon.Snippet.Identity.Anonymous() {
		t.Errorf("second snippet should be anonymous: %+v", anon.Snippet.Identity)
	}
	site := anon.Snippet.Identity.Site
	if site.File != "conf/emjs.yaml" || site.Line != 20 || site.Column != 5 {
		t.Errorf("anonymous site = %+v, want conf/emjs.yaml:20:5", site)
	}

	named := m.Snippets[2]
	if named.Snippet.Identity.Name != "second_js" {
		t.Errorf("name from signature = %q", named.Snippet.Identity.Name)
	}
	if named.Snippet.Params[0] != "value" {
		t.Errorf("explicit params = %v", named.Snippet.Params)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "snippets: [", "parse"},
		{"missing signature", "snippets:\n  - body: x\n", "no signature"},
		{"bad signature", "snippets:\n  - signature: \"(n string)\"\n", "unsupported"},
		{"arity", "snippets:\n  - signature: \"(a, b int32)\"\n    params: [a]\n", "arity_mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("emjs.yaml", []byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte("module: x\noutput:\n  object: out/x.wasm\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Resolve(m.Output.Object); got != filepath.Join(dir, "out", "x.wasm") {
		t.Errorf("Resolve = %q", got)
	}
	if got := m.Resolve("/abs/x"); got != "/abs/x" {
		t.Errorf("Resolve(abs) = %q", got)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

const sampleSource = "package app\n" +
	"\n" +
	"//emjs:func sum(n int32) int32\n" +
	"const sumJS = `\n" +
	"	var total = 0;\n" +
	"	for (var i = 0; i < n; i++) { total += i; }\n" +
	"	return total;\n" +
	"`\n" +
	"\n" +
	"const (\n" +
	"	//emjs:inline (a, b, c int32) int32\n" +
	"	mixJS = \"return a + \" + \"b * c;\"\n" +
	"\n" +
	"	//emjs:func (x int32) int32\n" +
	"	firstJS = `return second_js(x);`\n" +
	"\n" +
	"	plain = \"not a snippet\"\n" +
	")\n"

func TestScanFile(t *testing.T) {
	decls, err := ScanFile("app/main.go", []byte(sampleSource))
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if len(decls) != 3 {
		t.Fatalf("decls = %d, want 3", len(decls))
	}

	if decls[0].Snippet.Identity.Name != "sum" || !strings.Contains(decls[0].Snippet.Body, "total += i;") {
		t.Errorf("sum = %+v", decls[0].Snippet)
	}

	mix := decls[1]
	if !mix.Snippet.Identity.Anonymous() {
		t.Errorf("inline snippet should be anonymous")
	}
	if mix.Snippet.Body != "return a + b * c;" {
		t.Errorf("concatenated body = %q", mix.Snippet.Body)
	}
	if s := mix.Snippet.Identity.Site; s.File != "app/main.go" || s.Line != 12 || s.Column != 10 {
		t.Errorf("inline site = %+v, want app/main.go:12:10", s)
	}
	if len(mix.Snippet.Params) != 3 {
		t.Errorf("params = %v", mix.Snippet.Params)
	}

	if decls[2].Snippet.Identity.Name != "firstJS" {
		t.Errorf("name fallback = %q", decls[2].Snippet.Identity.Name)
	}
}

func TestScanFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "package x\nconst = \n"},
		{"not a string", "package x\n//emjs:func f() int32\nconst f = 1\n"},
		{"bad signature", "package x\n//emjs:func f(a string)\nconst f = \"\"\n"},
		{"multiple names", "package x\n//emjs:func f()\nvar a, b = \"\", \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ScanFile("x.go", []byte(tt.src)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScanSources(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	snippetFile := func(name string) string {
		return "package p\n//emjs:func " + name + "()\nconst c = `return 1;`\n"
	}
	write("a.go", snippetFile("a"))
	write("sub/b.go", snippetFile("b"))
	write("sub/b_test.go", snippetFile("btest"))
	write("vendor/v.go", snippetFile("v"))
	write("_hidden/h.go", snippetFile("h"))
	write("notes.txt", "ignored")

	decls, err := ScanSources(root, []string{"./..."})
	if err != nil {
		t.Fatalf("ScanSources: %v", err)
	}
	var names []string
	for _, d := range decls {
		names = append(names, d.Snippet.Identity.Name)
	}
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("names = %v, want [a b]", names)
	}
	if decls[1].Snippet.Identity.Site.File != "sub/b.go" {
		t.Errorf("site file = %q", decls[1].Snippet.Identity.Site.File)
	}

	flat, err := ScanSources(root, []string{"."})
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 1 {
		t.Errorf("non-recursive scan found %d", len(flat))
	}

	single, err := ScanSources(root, []string{"sub/b.go"})
	if err != nil || len(single) != 1 {
		t.Errorf("single file scan = %d, %v", len(single), err)
	}

	if _, err := ScanSources(root, []string{"missing"}); err == nil {
		t.Error("missing source should fail")
	}
}
