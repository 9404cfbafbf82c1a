package bind

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"strings"

	"github.com/wippyai/emjs/errors"
)

const generatedHeader = "Code generated by emjs. DO NOT EDIT."

// WriteGo renders //go:wasmimport declarations for imports as a gofmt'd Go
// source file in package pkg.
func WriteGo(w io.Writer, pkg string, imports []Import) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "// %s\n\n", generatedHeader)
	b.WriteString("//go:build wasm\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg)

	if usesPointer(imports) {
		b.WriteString("import \"unsafe\"\n\n")
	}

	for _, imp := range imports {
		fmt.Fprintf(&b, "//go:wasmimport %s %s\n", imp.Module, imp.Name)
		fmt.Fprintf(&b, "func %s(", imp.Name)
		for i, p := range imp.Sig.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %s", goParamName(p.Name), p.Type)
		}
		b.WriteString(")")
		if imp.Sig.Result != Void {
			b.WriteString(" " + imp.Sig.Result.String())
		}
		b.WriteString("\n\n")
	}

	src, err := format.Source(b.Bytes())
	if err != nil {
		return errors.Wrap(errors.PhaseBind, errors.KindInvalidData, err, "format generated Go source")
	}
	if _, err := w.Write(src); err != nil {
		return errors.Wrap(errors.PhaseExport, errors.KindIO, err, "write Go bindings")
	}
	return nil
}

func usesPointer(imports []Import) bool {
	for _, imp := range imports {
		if imp.Sig.Result == Pointer {
			return true
		}
		for _, p := range imp.Sig.Params {
			if p.Type == Pointer {
				return true
			}
		}
	}
	return false
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

func goParamName(name string) string {
	if goKeywords[name] {
		return name + "_"
	}
	return name
}

// WriteC renders C prototypes carrying import_module and import_name
// attributes for imports.
func WriteC(w io.Writer, imports []Import) error {
	var b strings.Builder
	fmt.Fprintf(&b, "/* %s */\n\n", generatedHeader)
	b.WriteString("#pragma once\n\n")
	b.WriteString("#include <stdbool.h>\n#include <stdint.h>\n\n")
	b.WriteString("#ifdef __cplusplus\nextern \"C\" {\n#endif\n\n")

	for _, imp := range imports {
		fmt.Fprintf(&b, "__attribute__((import_module(%q), import_name(%q)))\n", imp.Module, imp.Name)
		fmt.Fprintf(&b, "%s %s(", imp.Sig.Result.CName(), imp.Name)
		if len(imp.Sig.Params) == 0 {
			b.WriteString("void")
		}
		for i, p := range imp.Sig.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %s", p.Type.CName(), p.Name)
		}
		b.WriteString(");\n\n")
	}

	b.WriteString("#ifdef __cplusplus\n}\n#endif\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(errors.PhaseExport, errors.KindIO, err, "write C header")
	}
	return nil
}
