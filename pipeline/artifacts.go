package pipeline

import (
	"bytes"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/manifest"
	"github.com/wippyai/emjs/wasm"
)

// Artifact reports one output file.
type Artifact struct {
	Kind    string
	Path    string
	Skipped bool
}

// WriteArtifacts writes the outputs configured in out. Paths are used as
// given. An object whose emjs.digest section matches the build is left
// untouched.
func WriteArtifacts(res *Result, out manifest.Output) ([]Artifact, error) {
	var written []Artifact

	if out.Object != "" && res.Object != nil {
		if unchanged(out.Object, res.Export.Digest) {
			written = append(written, Artifact{Kind: "object", Path: out.Object, Skipped: true})
			Logger().Debug("object unchanged", zap.String("path", out.Object))
		} else {
			if err := writeFile(out.Object, res.Object); err != nil {
				return written, err
			}
			written = append(written, Artifact{Kind: "object", Path: out.Object})
		}
	}

	if out.Asm != "" {
		var buf bytes.Buffer
		if err := export.WriteAssembly(&buf, res.Export); err != nil {
			return written, err
		}
		if err := writeFile(out.Asm, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, Artifact{Kind: "asm", Path: out.Asm})
	}

	if out.Go != "" {
		pkg := out.GoPackage
		if pkg == "" {
			pkg = filepath.Base(filepath.Dir(out.Go))
		}
		var buf bytes.Buffer
		if err := bind.WriteGo(&buf, pkg, res.Export.Imports); err != nil {
			return written, err
		}
		if err := writeFile(out.Go, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, Artifact{Kind: "go", Path: out.Go})
	}

	if out.Header != "" {
		var buf bytes.Buffer
		if err := bind.WriteC(&buf, res.Export.Imports); err != nil {
			return written, err
		}
		if err := writeFile(out.Header, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, Artifact{Kind: "header", Path: out.Header})
	}

	for _, a := range written {
		Logger().Info("artifact", zap.String("kind", a.Kind), zap.String("path", a.Path), zap.Bool("skipped", a.Skipped))
	}
	return written, nil
}

func unchanged(path string, digest []byte) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return false
	}
	cs, ok := m.CustomSection(export.DigestSection)
	return ok && bytes.Equal(cs.Data, digest)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.PhaseExport, errors.KindIO, err, "create "+dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.PhaseExport, errors.KindIO, err, "write "+path)
	}
	return nil
}
