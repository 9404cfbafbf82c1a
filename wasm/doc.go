// Package wasm encodes and decodes the part of the WebAssembly binary format
// that emjs needs: function types, imports, memories, globals, exports,
// code, data segments and custom sections.
//
// The encoder writes modules built by the exporter:
//
//	m := &wasm.Module{...}
//	bin := m.Encode()
//
// The decoder reads modules produced by any toolchain. Sections it does not
// model are skipped after their order is checked, so a loader can inspect
// imports, exported globals and data segments of real-world binaries:
//
//	m, err := wasm.ParseModule(bin)
//	for _, seg := range m.Data {
//		addr, ok := wasm.EvalI32(seg.Offset)
//		...
//	}
package wasm
