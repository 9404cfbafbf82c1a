// Package pipeline turns snippet declarations into artifacts: it compiles
// every snippet, names it, binds its foreign declaration and hands the
// result to the exporter.
package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/emjs/bind"
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/manifest"
	"github.com/wippyai/emjs/snippet"
	"github.com/wippyai/emjs/symbol"
)

// Config controls a build.
type Config struct {
	Mode      snippet.Mode
	Target    export.Target
	Namespace string
	Prefix    string
}

// Result is the outcome of a build.
type Result struct {
	Units  []export.Unit
	Export *export.Export
	// Object is the encoded WebAssembly object.
	Object []byte
}

// Run compiles decls concurrently, then names and exports them in
// declaration order so conflicts are reported deterministically.
func Run(ctx context.Context, cfg Config, decls []manifest.Declaration) (*Result, error) {
	if cfg.Target == "" {
		cfg.Target = export.TargetWasm32
	}

	payloads, err := compileAll(ctx, cfg.Mode, decls)
	if err != nil {
		return nil, err
	}

	reg := symbol.NewRegistry(symbol.Namer{Prefix: cfg.Prefix})
	units := make([]export.Unit, len(decls))
	for i, d := range decls {
		pair, err := reg.Register(d.Snippet.Identity)
		if err != nil {
			return nil, err
		}
		if err := bind.CheckArity(d.Signature, d.Snippet.Params); err != nil {
			return nil, err
		}
		imp := bind.NewImport(cfg.Namespace, pair.Native, d.Signature)
		units[i] = export.Unit{
			Pair:    pair,
			Payload: payloads[i],
			Import:  &imp,
			Site:    d.Snippet.Identity.Site,
		}
	}

	exp, err := export.Build(units, cfg.Target)
	if err != nil {
		return nil, err
	}

	res := &Result{Units: units, Export: exp}
	if cfg.Target == export.TargetWasm32 {
		if res.Object, err = export.BuildObject(exp); err != nil {
			return nil, err
		}
	}

	Logger().Info("build complete",
		zap.Int("snippets", len(units)),
		zap.Stringer("mode", cfg.Mode),
		zap.String("target", string(cfg.Target)),
		zap.String("digest", exp.DigestHex()))
	return res, nil
}

// compileAll runs snippet.Compile for every declaration in parallel. The
// returned slice is indexed like decls; on failure the error of the lowest
// failing index is returned.
func compileAll(ctx context.Context, mode snippet.Mode, decls []manifest.Declaration) ([]*snippet.Payload, error) {
	payloads := make([]*snippet.Payload, len(decls))
	errs := make([]error, len(decls))

	var wg sync.WaitGroup
	for i := range decls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			payloads[i], errs[i] = snippet.Compile(decls[i].Snippet, mode)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, ctx.Err(), "build cancelled")
		}
		Logger().Debug("compile failed",
			zap.Int("index", i),
			zap.Stringer("snippet", decls[i].Snippet.Identity),
			zap.Error(err))
		return nil, err
	}
	return payloads, nil
}
