package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/manifest"
	"github.com/wippyai/emjs/pipeline"
	"github.com/wippyai/emjs/snippet"
)

// Build flags, shared by gen, check and watch.
var (
	modeFlag      string
	targetFlag    string
	namespaceFlag string
)

func addBuildFlags(fs *pflag.FlagSet) {
	fs.StringVar(&modeFlag, "mode", "", "Encoding mode: verbatim or escaped (env EMJS_MODE)")
	fs.StringVar(&targetFlag, "target", "", "Object target: wasm32 or elf (env EMJS_TARGET)")
	fs.StringVar(&namespaceFlag, "namespace", "", "Import module of foreign declarations (env EMJS_NAMESPACE)")
}

// project is a loaded manifest together with the settings a build runs with.
type project struct {
	Manifest *manifest.Manifest
	Config   pipeline.Config
	Output   manifest.Output
}

// loadProject reads the manifest and resolves settings.
// Precedence: CLI flags > env vars > manifest > defaults
func loadProject() (*project, error) {
	m, err := manifest.Load(configFile)
	if err != nil {
		return nil, err
	}

	mode := pick(modeFlag, os.Getenv("EMJS_MODE"), m.Mode, snippet.ModeVerbatim.String())
	target := pick(targetFlag, os.Getenv("EMJS_TARGET"), m.Target, string(export.TargetWasm32))
	namespace := pick(namespaceFlag, os.Getenv("EMJS_NAMESPACE"), m.Namespace, bind.DefaultNamespace)

	p := &project{Manifest: m}
	if p.Config.Mode, err = snippet.ParseMode(mode); err != nil {
		return nil, err
	}
	if p.Config.Target, err = export.ParseTarget(target); err != nil {
		return nil, err
	}
	p.Config.Namespace = namespace
	p.Config.Prefix = m.Prefix

	out := m.Output
	out.Object = m.Resolve(out.Object)
	out.Asm = m.Resolve(out.Asm)
	out.Go = m.Resolve(out.Go)
	out.Header = m.Resolve(out.Header)
	p.Output = out
	return p, nil
}

// Declarations returns the manifest's inline snippets followed by those
// found in its sources.
func (p *project) Declarations() ([]manifest.Declaration, error) {
	decls := append([]manifest.Declaration(nil), p.Manifest.Snippets...)
	if len(p.Manifest.Sources) == 0 {
		return decls, nil
	}
	found, err := manifest.ScanSources(p.Root(), p.Manifest.Sources)
	if err != nil {
		return nil, err
	}
	return append(decls, found...), nil
}

// Root is the directory the manifest lives in.
func (p *project) Root() string {
	return filepath.Dir(p.Manifest.Path)
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
