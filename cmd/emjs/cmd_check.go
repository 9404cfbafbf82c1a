package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/emjs/pipeline"
)

// checkCmd validates the declarations and reports the symbols a build would emit.
func checkCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate declarations without writing artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			decls, err := p.Declarations()
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), p.Config, decls)
			if err != nil {
				if jsonOutput {
					outputJSON(map[string]any{"valid": false, "error": err.Error()})
					os.Exit(1)
				}
				return err
			}

			if jsonOutput {
				outputJSON(checkReport(res))
				return nil
			}
			fmt.Println(success(fmt.Sprintf("%d snippets valid", len(res.Units))))
			for _, u := range res.Units {
				fmt.Printf("  %s %s %s\n", fn(u.Pair.Native), dim(fmt.Sprintf("%d bytes", u.Payload.Size)), dim(u.Site.String()))
			}
			fmt.Printf("  digest %s\n", dim(res.Export.DigestHex()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	addBuildFlags(cmd.Flags())
	return cmd
}

func checkReport(res *pipeline.Result) map[string]any {
	symbols := make([]map[string]any, 0, len(res.Units))
	for _, u := range res.Units {
		symbols = append(symbols, map[string]any{
			"name":    u.Pair.Native,
			"payload": u.Pair.Payload,
			"ref":     u.Pair.Ref,
			"size":    u.Payload.Size,
			"mode":    u.Payload.Mode.String(),
			"site":    u.Site.String(),
		})
	}
	return map[string]any{
		"valid":   true,
		"digest":  res.Export.DigestHex(),
		"symbols": symbols,
	}
}

// outputJSON writes a JSON object to stdout.
func outputJSON(data map[string]any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
