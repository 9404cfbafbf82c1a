package manifest

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
)

// Source directives. Each annotates a string constant or variable whose
// value is the snippet body:
//
//	//emjs:func sum(n int32) int32
//	const sumJS = `...`
//
//	//emjs:inline (a, b, c int32) int32
//	const _ = `return a + b * c;`
//
// emjs:func declares a named snippet; the name falls back to the constant's
// name when the signature has none. emjs:inline declares an anonymous
// snippet identified by the position of its value.
const (
	DirectiveFunc   = "//emjs:func"
	DirectiveInline = "//emjs:inline"
)

// ScanFile extracts the declarations in one Go source file. filename is
// recorded in declaration sites as given.
func ScanFile(filename string, src []byte) ([]Declaration, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, errors.ParseFailed(filename, err)
	}

	var decls []Declaration
	for _, d := range file.Decls {
		gen, ok := d.(*ast.GenDecl)
		if !ok || (gen.Tok != token.CONST && gen.Tok != token.VAR) {
			continue
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			doc := vs.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			kind, sigText, ok := findDirective(doc)
			if !ok {
				continue
			}

			decl, err := declarationFromSpec(fset, filename, vs, kind, sigText)
			if err != nil {
				return nil, err
			}
			decls = append(decls, decl)
		}
	}
	return decls, nil
}

func findDirective(doc *ast.CommentGroup) (kind, rest string, ok bool) {
	if doc == nil {
		return "", "", false
	}
	for _, c := range doc.List {
		for _, d := range []string{DirectiveFunc, DirectiveInline} {
			if after, found := strings.CutPrefix(c.Text, d+" "); found {
				return d, strings.TrimSpace(after), true
			}
		}
	}
	return "", "", false
}

func declarationFromSpec(fset *token.FileSet, filename string, vs *ast.ValueSpec, kind, sigText string) (Declaration, error) {
	pos := fset.Position(vs.Pos())
	where := filename + ":" + strconv.Itoa(pos.Line)

	if len(vs.Names) != 1 || len(vs.Values) != 1 {
		return Declaration{}, errors.InvalidInput(errors.PhaseParse, where+": directive must annotate a single value")
	}
	body, ok := stringValue(vs.Values[0])
	if !ok {
		return Declaration{}, errors.InvalidInput(errors.PhaseParse, where+": snippet body must be a string literal")
	}

	sig, err := bind.ParseSignature(sigText)
	if err != nil {
		return Declaration{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Cause(err).
			Detail("%s: bad signature", where).
			Build()
	}

	valuePos := fset.Position(vs.Values[0].Pos())
	site := snippet.Site{File: filepath.ToSlash(filename), Line: valuePos.Line, Column: valuePos.Column}
	id := snippet.Identity{Site: site}
	if kind == DirectiveFunc {
		id.Name = sig.Name
		if id.Name == "" {
			id.Name = vs.Names[0].Name
		}
	}

	return Declaration{
		Snippet: snippet.Snippet{
			Identity: id,
			Params:   sig.ParamNames(),
			Body:     body,
		},
		Signature: sig,
	}, nil
}

// stringValue evaluates a string literal or a + concatenation of them.
func stringValue(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return "", false
		}
		s, err := strconv.Unquote(e.Value)
		return s, err == nil
	case *ast.ParenExpr:
		return stringValue(e.X)
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return "", false
		}
		l, ok := stringValue(e.X)
		if !ok {
			return "", false
		}
		r, ok := stringValue(e.Y)
		return l + r, ok
	}
	return "", false
}

// ScanSources expands patterns relative to root and scans every Go file
// found. A pattern ending in "/..." walks the directory recursively; a
// directory scans its own files; anything else is a file. Test files and
// directories named vendor or testdata or starting with '.' or '_' are
// skipped. Sites use paths relative to root.
func ScanSources(root string, patterns []string) ([]Declaration, error) {
	files, err := expandPatterns(root, patterns)
	if err != nil {
		return nil, err
	}

	var decls []Declaration
	for _, rel := range files {
		src, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "read "+rel)
		}
		found, err := ScanFile(filepath.ToSlash(rel), src)
		if err != nil {
			return nil, err
		}
		decls = append(decls, found...)
	}
	return decls, nil
}

func expandPatterns(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(rel string) {
		rel = filepath.Clean(rel)
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}

	for _, pat := range patterns {
		recursive := strings.HasSuffix(pat, "/...")
		dir := strings.TrimSuffix(pat, "/...")
		if dir == "" || dir == "..." {
			dir = "."
		}
		full := filepath.Join(root, dir)

		info, err := os.Stat(full)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "source "+pat)
		}
		if !info.IsDir() {
			add(dir)
			continue
		}

		err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != full && (!recursive || skipDir(d.Name())) {
					return filepath.SkipDir
				}
				return nil
			}
			if isSourceFile(d.Name()) {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				add(rel)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "walk "+pat)
		}
	}

	sort.Strings(out)
	return out, nil
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func isSourceFile(name string) bool {
	return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
}
