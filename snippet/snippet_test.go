package snippet

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/emjs/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \n\t\n  ", ""},
		{"single line", "  return 1;  ", "return 1;"},
		{
			name: "multi line",
			in: `
				var total = 0;
				for (var i = 0; i < n; i++) {
					total += i;
				}
				return total;
			`,
			want: "var total = 0;\nfor (var i = 0; i < n; i++) {\ntotal += i;\n}\nreturn total;",
		},
		{"crlf", "a;\r\n  b;\r\n", "a;\nb;"},
		{"bare cr", "a;\rb;", "a;\nb;"},
		{"inner spacing kept", "return a  +  b;", "return a  +  b;"},
		{"utf8", "  out('héllo ✓');  ", "out('héllo ✓');"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"\n\n",
		"  a\n\n  b  \n",
		"\t{ return \"x\"; }\r\n",
		"line1\rline2\r\n\r\nline3",
		"  'multi ✓ byte'  \n  // comment\n",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		body   string
		mode   Mode
		want   string
	}{
		{"no params", nil, "return 1;", ModeVerbatim, "()<::>{return 1;}\x00"},
		{"empty body", []string{"a"}, "", ModeVerbatim, "(a)<::>{}\x00"},
		{"three params", []string{"a", "b", "c"}, "return a + b * c;", ModeVerbatim, "(a,b,c)<::>{return a + b * c;}\x00"},
		{"verbatim braces", nil, "if (x) { y(); }", ModeVerbatim, "()<::>{if (x) { y(); }}\x00"},
		{"escaped braces", nil, "if (x) { y(); }", ModeEscaped, "()<::>{if (x) {{ y(); }}}\x00"},
		{"escaped quotes", []string{"s"}, `out("hi " + s);`, ModeEscaped, `(s)<::>{out(\"hi \" + s);}` + "\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.params, tt.body, tt.mode)
			if string(got) != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSizeMatchesEncode(t *testing.T) {
	paramSets := [][]string{
		nil,
		{},
		{"n"},
		{"a", "b"},
		{"a", "b", "c"},
		{"url", "$cb", "_x", "p0", "longParameterName"},
	}
	bodies := []string{
		"",
		"return 1;",
		`return "quoted";`,
		"{}",
		"{{}}",
		"if (a) {\nreturn {k: [1, 2]};\n}",
		`out("a{b}c\"");`,
		"var s = 'héllo wörld ✓ 𝄞';",
		"line1\nline2\nline3",
		strings.Repeat(`{"k":"v"}`, 50),
	}

	for _, mode := range []Mode{ModeVerbatim, ModeEscaped} {
		for _, params := range paramSets {
			for i, body := range bodies {
				name := fmt.Sprintf("%s/%d-params/body-%d", mode, len(params), i)
				t.Run(name, func(t *testing.T) {
					size := Size(params, body, mode)
					enc := Encode(params, body, mode)
					if size != len(enc) {
						t.Fatalf("Size = %d, len(Encode) = %d (%q)", size, len(enc), enc)
					}
					if enc[len(enc)-1] != 0 {
						t.Error("payload must end with NUL")
					}
					if bytes.IndexByte(enc, 0) != len(enc)-1 {
						t.Error("payload must contain exactly one NUL")
					}
				})
			}
		}
	}
}

func TestSize_Formula(t *testing.T) {
	// body 5 + NUL 1 + punctuation 8 + params 1+1+1 + separators 2
	if got := Size([]string{"a", "b", "c"}, "x = 1", ModeVerbatim); got != 19 {
		t.Errorf("Size = %d, want 19", got)
	}
	// escaped adds one byte per '"', '{', '}'
	if got := Size(nil, `{"}`, ModeEscaped); got != 3+3+1+8 {
		t.Errorf("Size = %d, want 15", got)
	}
	if got := Size(nil, "", ModeVerbatim); got != 9 {
		t.Errorf("empty Size = %d, want 9", got)
	}
}

func TestUnescape_RoundTrip(t *testing.T) {
	bodies := []string{
		"",
		"plain",
		`out("x");`,
		"{{}}",
		`\"`,
		`\\"{`,
		"a}{b",
		`return {"a": "{"};`,
	}
	for _, body := range bodies {
		enc := Encode(nil, body, ModeEscaped)
		inner := string(enc[len("()<::>{") : len(enc)-2])
		if got := Unescape(inner); got != body {
			t.Errorf("Unescape(%q) = %q, want %q", inner, got, body)
		}
	}
}

func TestCheckBalanced(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"empty", "", true},
		{"nested", "if (a[0]) { f({x: [1]}); }", true},
		{"brace in string", `var s = "}";`, true},
		{"brace in single quote", `var s = '{';`, true},
		{"escaped quote", `var s = "\"}";`, true},
		{"template", "var s = `${a}}`;", true},
		{"line comment", "f(); // }\ng();", true},
		{"block comment", "f(); /* ( */ g();", true},
		{"unclosed", "function f() {", false},
		{"extra close", "f());", false},
		{"crossed", "f(]", false},
		{"unterminated string", `var s = "abc`, false},
		{"string across newline", "var s = 'a\nb';", false},
		{"unterminated comment", "f(); /* ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBalanced(tt.body)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindUnbalanced}) {
					t.Errorf("error = %v, want unbalanced", err)
				}
			}
		})
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		kind   errors.Kind
	}{
		{"none", nil, ""},
		{"valid", []string{"a", "_b", "$c", "d9"}, ""},
		{"leading digit", []string{"9a"}, errors.KindInvalidIdentifier},
		{"empty", []string{""}, errors.KindInvalidIdentifier},
		{"space", []string{"a b"}, errors.KindInvalidIdentifier},
		{"comma", []string{"a,b"}, errors.KindInvalidIdentifier},
		{"duplicate", []string{"a", "b", "a"}, errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params)
			if tt.kind == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error = %v, want *errors.Error", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.kind)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	s := Snippet{
		Identity: Identity{Name: "sum"},
		Params:   []string{"n"},
		Body: `
			var total = 0;
			for (var i = 0; i < n; i++) {
				total += i;
			}
			return total;
		`,
	}

	p, err := Compile(s, ModeVerbatim)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Size != len(p.Bytes) {
		t.Errorf("Size = %d, len(Bytes) = %d", p.Size, len(p.Bytes))
	}
	if !strings.HasPrefix(string(p.Bytes), "(n)<::>{var total = 0;\n") {
		t.Errorf("unexpected payload %q", p.Bytes)
	}
	if p.Mode != ModeVerbatim {
		t.Errorf("Mode = %v", p.Mode)
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Run("unbalanced verbatim", func(t *testing.T) {
		_, err := Compile(Snippet{Identity: Identity{Name: "f"}, Body: "if (x) {"}, ModeVerbatim)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindUnbalanced}) {
			t.Errorf("error = %v, want unbalanced", err)
		}
	})

	t.Run("unbalanced escaped is accepted", func(t *testing.T) {
		if _, err := Compile(Snippet{Identity: Identity{Name: "f"}, Body: "if (x) {"}, ModeEscaped); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("bad param", func(t *testing.T) {
		_, err := Compile(Snippet{Identity: Identity{Name: "f"}, Params: []string{"1x"}}, ModeVerbatim)
		if err == nil || !strings.Contains(err.Error(), "invalid parameter list") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeVerbatim, "verbatim": ModeVerbatim, "escaped": ModeEscaped} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("raw"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestIdentityString(t *testing.T) {
	named := Identity{Name: "sum"}
	if named.String() != "sum" || named.Anonymous() {
		t.Errorf("named identity = %q", named.String())
	}
	anon := Identity{Site: Site{File: "main.go", Line: 3, Column: 7}}
	if !anon.Anonymous() || anon.String() != "anonymous@main.go:3:7" {
		t.Errorf("anonymous identity = %q", anon.String())
	}
}
