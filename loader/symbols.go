package loader

import (
	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/symbol"
	"github.com/wippyai/emjs/wasm"
)

// ReadScripts extracts every payload of an object through its emjs.symbols
// table. Each payload must have a matching reference marker. Bytes are read
// from the active data segments, so no instantiation is needed.
func ReadScripts(m *wasm.Module) ([]Script, error) {
	cs, ok := m.CustomSection(export.SymbolsSection)
	if !ok {
		return nil, errors.Load("object has no "+export.SymbolsSection+" section", nil)
	}
	entries, err := export.DecodeSymbolTable(cs.Data)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]bool)
	for _, e := range entries {
		if native, isPayload, ok := symbol.Native(e.Name); ok && !isPayload && e.Ref() {
			refs[native] = true
		}
	}

	var scripts []Script
	seen := make(map[string]bool)
	for _, e := range entries {
		native, isPayload, ok := symbol.Native(e.Name)
		if !ok || !isPayload || e.Ref() {
			continue
		}
		if !refs[native] {
			return nil, errors.InvalidData(errors.PhaseLoad, e.Name, "payload has no reference marker")
		}
		if seen[native] {
			return nil, errors.InvalidData(errors.PhaseLoad, e.Name, "payload listed twice")
		}
		seen[native] = true

		data, err := segmentBytes(m, e.Address, e.Size)
		if err != nil {
			return nil, err
		}
		params, body, err := ParsePayload(e.Name, data, e.Mode)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{
			Native:  native,
			Symbol:  e.Name,
			Params:  params,
			Body:    body,
			Mode:    e.Mode,
			Address: e.Address,
			Size:    e.Size,
		})
	}
	return scripts, nil
}

// segmentBytes returns the initial contents of [addr, addr+size) from the
// active data segment that covers it.
func segmentBytes(m *wasm.Module, addr, size uint32) ([]byte, error) {
	for _, seg := range m.Data {
		if !seg.Active() {
			continue
		}
		off, ok := wasm.EvalI32(seg.Offset)
		if !ok {
			continue
		}
		start := uint64(uint32(off))
		end := start + uint64(len(seg.Init))
		if uint64(addr) >= start && uint64(addr)+uint64(size) <= end {
			rel := uint64(addr) - start
			return seg.Init[rel : rel+uint64(size)], nil
		}
	}
	return nil, errors.OutOfBounds(errors.PhaseLoad, "data segment", addr, size)
}
