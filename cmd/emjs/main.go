// Command emjs builds objects from JavaScript snippet declarations and runs
// them on the reference loader.
//
// Usage:
//
//	emjs gen                     # Build and write the artifacts listed in emjs.yaml
//	emjs check                   # Validate declarations without writing anything
//	emjs inspect <object>        # List the symbols and imports of an object
//	emjs run <object> [func]     # Call a snippet (-i for an interactive console)
//	emjs watch                   # Rebuild on manifest or source changes
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/emjs/export"
	"github.com/wippyai/emjs/loader"
	"github.com/wippyai/emjs/pipeline"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// Global flags
var (
	configFile string
	verbose    bool
	noColor    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "emjs",
		Short:         "Embed JavaScript snippets in WebAssembly objects",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initColor(noColor)
			if verbose {
				return installLogger()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "emjs.yaml", "Path to manifest")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log build and load steps")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		genCmd(),
		checkCmd(),
		inspectCmd(),
		runCmd(),
		watchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failure(err.Error()))
		os.Exit(1)
	}
}

func installLogger() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	pipeline.SetLogger(l.Named("pipeline"))
	export.SetLogger(l.Named("export"))
	loader.SetLogger(l.Named("loader"))
	return nil
}
