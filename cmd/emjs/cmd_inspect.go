package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/loader"
	"github.com/wippyai/emjs/wasm"
)

// inspectCmd lists the symbol table, imports and digest of an object.
func inspectCmd() *cobra.Command {
	var showScripts bool

	cmd := &cobra.Command{
		Use:   "inspect <object>",
		Short: "Show the symbols and imports of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read object: %w", err)
			}
			m, err := wasm.ParseModule(data)
			if err != nil {
				return err
			}
			return inspect(args[0], m, showScripts)
		},
	}

	cmd.Flags().BoolVar(&showScripts, "scripts", false, "Print each payload as the function the loader defines")
	return cmd
}

func inspect(path string, m *wasm.Module, showScripts bool) error {
	fmt.Printf("%s %s\n\n", paint(titleStyle, "emjs object"), path)

	cs, ok := m.CustomSection(export.SymbolsSection)
	if !ok {
		return fmt.Errorf("%s: no %s section", path, export.SymbolsSection)
	}
	entries, err := export.DecodeSymbolTable(cs.Data)
	if err != nil {
		return err
	}

	fmt.Println(bold("Symbols"))
	for _, e := range entries {
		kind := "payload"
		if e.Ref() {
			kind = "ref"
		}
		fmt.Printf("  %-8s %-40s %s\n", dim(kind), fn(e.Name),
			dim(fmt.Sprintf("addr=%d size=%d mode=%s section=%s", e.Address, e.Size, e.Mode, e.Section)))
	}

	fmt.Println()
	fmt.Println(bold("Imports"))
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		sig := ""
		if int(imp.Desc.TypeIdx) < len(m.Types) {
			sig = m.Types[imp.Desc.TypeIdx].String()
		}
		fmt.Printf("  %s.%s %s\n", imp.Module, fn(imp.Name), typ(sig))
	}

	if d, ok := m.CustomSection(export.DigestSection); ok {
		fmt.Printf("\n%s %s\n", bold("Digest"), dim(hex.EncodeToString(d.Data)))
	}

	if !showScripts {
		return nil
	}
	scripts, err := loader.ReadScripts(m)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(bold("Scripts"))
	for _, s := range scripts {
		fmt.Printf("\n%s\n", s.Source())
	}
	return nil
}
