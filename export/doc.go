// Package export forces compiled snippets into an artifact as externally
// linked data symbols.
//
// Build pairs every snippet with a one-byte reference marker and its payload,
// each in its own section, retained and globally bound, with a declared size
// that must match the bytes. The result is rendered as a WebAssembly object
// (BuildObject), as LLVM assembler text (WriteAssembly) or summarized by a
// merkle digest (Digest).
//
// Objects lay out data from address 1024, export an i32 global per symbol
// holding its address plus __heap_base, and carry the emjs.symbols custom
// section:
//
//	u8 version
//	u32 count
//	count x { name, section, u32 address, u32 size, u8 mode, u8 flags }
package export
