package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/emjs/pipeline"
)

// genCmd builds the manifest's declarations and writes every configured artifact.
func genCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Build and write artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			_, err = generate(cmd.Context(), p)
			return err
		},
	}
	addBuildFlags(cmd.Flags())
	return cmd
}

func generate(ctx context.Context, p *project) (*pipeline.Result, error) {
	decls, err := p.Declarations()
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, p.Config, decls)
	if err != nil {
		return nil, err
	}
	artifacts, err := pipeline.WriteArtifacts(res, p.Output)
	if err != nil {
		return nil, err
	}

	fmt.Println(success(fmt.Sprintf("%d snippets, digest %s", len(res.Units), shortDigest(res.Export.DigestHex()))))
	for _, a := range artifacts {
		state := "written"
		if a.Skipped {
			state = "unchanged"
		}
		fmt.Printf("  %-7s %s %s\n", a.Kind, a.Path, dim(state))
	}
	if len(artifacts) == 0 {
		fmt.Println(dim("  no outputs configured"))
	}
	return res, nil
}

func shortDigest(hex string) string {
	if len(hex) > 12 {
		return hex[:12]
	}
	return hex
}
