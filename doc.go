// Package emjs embeds JavaScript snippets in WebAssembly modules as named,
// linker-visible data and loads them back as callable functions.
//
// # Architecture Overview
//
//	emjs/               Root package with the Memory and Allocator interfaces
//	├── snippet/        Normalization, payload encoding and exact size computation
//	├── symbol/         Reference and payload symbol names, conflict registry
//	├── bind/           Foreign signatures bound to the env import namespace
//	├── export/         Wasm object, assembler text and digest emission
//	├── manifest/       emjs.yaml and //emjs: source directives
//	├── pipeline/       Compiles declarations and writes artifacts
//	├── loader/         Reference loader: goja scripts behind wazero imports
//	├── wasm/           WebAssembly binary encoding and decoding
//	├── errors/         Structured error types
//	└── cmd/emjs/       Command line interface
//
// # Wire Format
//
// Every snippet is stored as
//
//	"(" + join(params, ",") + ")<::>{" + body + "}" + NUL
//
// under the symbol __em_js__<name>, next to a one-byte __em_js_ref_<name>
// marker. The declared size of each symbol always equals its byte count.
//
// # Quick Start
//
// Build an object from declarations and run it:
//
//	res, err := pipeline.Run(ctx, pipeline.Config{Mode: snippet.ModeVerbatim}, decls)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := loader.New(loader.Options{})
//	inst, err := l.Instantiate(ctx, res.Object)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, "sum", 100)
//	fmt.Println(out) // [4950]
package emjs
