// Package manifest reads snippet declarations from an emjs.yaml file and
// from //emjs: directives in Go source.
package manifest

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
)

// DefaultFile is the manifest name looked up in the working directory.
const DefaultFile = "emjs.yaml"

// Declaration is a snippet together with the native signature that calls it.
type Declaration struct {
	Snippet   snippet.Snippet
	Signature bind.Signature
}

// Output lists the artifact paths. Empty paths are not written.
type Output struct {
	Object    string `yaml:"object"`
	Asm       string `yaml:"asm"`
	Go        string `yaml:"go"`
	GoPackage string `yaml:"go_package"`
	Header    string `yaml:"header"`
}

// Manifest is the parsed emjs.yaml.
type Manifest struct {
	Module    string   `yaml:"module"`
	Mode      string   `yaml:"mode"`
	Target    string   `yaml:"target"`
	Namespace string   `yaml:"namespace"`
	Prefix    string   `yaml:"prefix"`
	Sources   []string `yaml:"sources"`
	Output    Output   `yaml:"output"`

	// Snippets holds the inline declarations in file order.
	Snippets []Declaration `yaml:"-"`
	// Path is the file the manifest was read from.
	Path string `yaml:"-"`
}

type rawManifest struct {
	Manifest `yaml:",inline"`
	Snippets []yaml.Node `yaml:"snippets"`
}

type rawSnippet struct {
	Name      string   `yaml:"name"`
	Signature string   `yaml:"signature"`
	Params    []string `yaml:"params"`
	Body      string   `yaml:"body"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "read manifest")
	}
	return Parse(path, data)
}

// Parse parses manifest data. path names the file in declaration sites;
// anonymous snippets take their identity from the line and column of their
// YAML entry.
func Parse(path string, data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.ParseFailed(path, err)
	}

	m := raw.Manifest
	m.Path = path
	m.Output = expandOutput(m.Output)

	site := filepath.ToSlash(path)
	for i := range raw.Snippets {
		node := &raw.Snippets[i]
		var rs rawSnippet
		if err := node.Decode(&rs); err != nil {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Path("snippets", strconv.Itoa(i)).
				Cause(err).
				Detail("%s:%d: decode snippet", site, node.Line).
				Build()
		}
		decl, err := rs.declaration(snippet.Site{File: site, Line: node.Line, Column: node.Column})
		if err != nil {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
				Path("snippets", strconv.Itoa(i)).
				Cause(err).
				Detail("%s:%d", site, node.Line).
				Build()
		}
		m.Snippets = append(m.Snippets, decl)
	}
	return &m, nil
}

func (rs rawSnippet) declaration(site snippet.Site) (Declaration, error) {
	if strings.TrimSpace(rs.Signature) == "" {
		return Declaration{}, errors.InvalidInput(errors.PhaseParse, "snippet has no signature")
	}
	sig, err := bind.ParseSignature(rs.Signature)
	if err != nil {
		return Declaration{}, err
	}

	name := rs.Name
	if name == "" {
		name = sig.Name
	}

	params := rs.Params
	if params == nil {
		params = sig.ParamNames()
	} else if err := bind.CheckArity(sig, params); err != nil {
		return Declaration{}, err
	}

	return Declaration{
		Snippet: snippet.Snippet{
			Identity: snippet.Identity{Name: name, Site: site},
			Params:   params,
			Body:     rs.Body,
		},
		Signature: sig,
	}, nil
}

func expandOutput(o Output) Output {
	o.Object = os.Expand(o.Object, os.Getenv)
	o.Asm = os.Expand(o.Asm, os.Getenv)
	o.Go = os.Expand(o.Go, os.Getenv)
	o.Header = os.Expand(o.Header, os.Getenv)
	return o
}

// Resolve returns p relative to the manifest's directory unless it is
// absolute or empty.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(m.Path), p)
}
