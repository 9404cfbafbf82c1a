package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/emjs/errors"
)

// asciiChunk is the number of payload bytes per .ascii line.
const asciiChunk = 48

// WriteAssembly renders e as LLVM assembler text for e.Target. Every symbol
// gets its own retained section, global binding and a .size equal to its
// byte count. Foreign declarations become .functype/.import_module/
// .import_name directives on wasm32.
func WriteAssembly(w io.Writer, e *Export) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\t.file\t\"emjs\"\n")
	fmt.Fprintf(bw, "\t# digest %s\n", e.DigestHex())

	if e.Target == TargetWasm32 && len(e.Imports) > 0 {
		bw.WriteString("\n")
		for _, imp := range e.Imports {
			ft := imp.Sig.FuncType()
			fmt.Fprintf(bw, "\t.functype\t%s (%s) -> (%s)\n", imp.Name, joinTypes(ft.Params), joinTypes(ft.Results))
			fmt.Fprintf(bw, "\t.import_module\t%s, %s\n", imp.Name, imp.Module)
			fmt.Fprintf(bw, "\t.import_name\t%s, %s\n", imp.Name, imp.Name)
		}
	}

	for _, s := range e.Symbols {
		if err := CheckSize(s); err != nil {
			return err
		}
		bw.WriteString("\n")
		if e.Target == TargetELF {
			fmt.Fprintf(bw, "\t.section\t%s,\"aR\",@progbits\n", s.Section)
		} else {
			fmt.Fprintf(bw, "\t.section\t%s,\"R\",@\n", s.Section)
		}
		if s.Linkage == LinkageExternal {
			fmt.Fprintf(bw, "\t.globl\t%s\n", s.Name)
		}
		if e.Target == TargetWasm32 && s.Retain {
			fmt.Fprintf(bw, "\t.no_dead_strip\t%s\n", s.Name)
		}
		fmt.Fprintf(bw, "\t.type\t%s,@object\n", s.Name)
		fmt.Fprintf(bw, "%s:\n", s.Name)
		for off := 0; off < len(s.Bytes); off += asciiChunk {
			end := min(off+asciiChunk, len(s.Bytes))
			fmt.Fprintf(bw, "\t.ascii\t\"%s\"\n", escapeASCII(s.Bytes[off:end]))
		}
		fmt.Fprintf(bw, "\t.size\t%s, %d\n", s.Name, s.DeclaredSize)
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.PhaseExport, errors.KindIO, err, "write assembly")
	}
	return nil
}

func joinTypes[T fmt.Stringer](types []T) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// escapeASCII renders data for an .ascii directive. Printable ASCII other
// than '"' and '\' is kept; everything else is a three-digit octal escape.
func escapeASCII(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\%03o", c)
		}
	}
	return b.String()
}

// UnescapeASCII reverses escapeASCII. It is used to check emitted text.
func UnescapeASCII(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+1 >= len(s) {
			return nil, errors.InvalidData(errors.PhaseExport, "", "dangling escape")
		}
		next := s[i+1]
		if next == '"' || next == '\\' {
			out = append(out, next)
			i++
			continue
		}
		if i+4 > len(s) {
			return nil, errors.InvalidData(errors.PhaseExport, "", "short octal escape")
		}
		var v byte
		for _, d := range s[i+1 : i+4] {
			if d < '0' || d > '7' {
				return nil, errors.InvalidData(errors.PhaseExport, "", "bad octal digit")
			}
			v = v*8 + byte(d-'0')
		}
		out = append(out, v)
		i += 3
	}
	return out, nil
}
