package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 200 * time.Millisecond

// watchCmd rebuilds whenever the manifest or a Go source under its directory changes.
func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild on manifest or source changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx)
		},
	}
	addBuildFlags(cmd.Flags())
	return cmd
}

func watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file watcher: %w", err)
	}
	defer watcher.Close()

	root := filepath.Dir(configFile)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipWatch(d.Name()) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	var outputs map[string]bool
	rebuild := func() {
		p, err := loadProject()
		if err == nil {
			outputs = outputPaths(p)
			_, err = generate(ctx, p)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, failure(err.Error()))
		}
	}

	rebuild()
	fmt.Printf("  Watching: %s %s\n", root, dim("(ctrl+c to stop)"))

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if outputs[filepath.Clean(event.Name)] || !relevant(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipWatch(info.Name()) {
					_ = watcher.Add(event.Name)
				}
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, failure("watch: "+err.Error()))
		}
	}
}

// relevant reports whether a change to path can affect the build: the
// manifest, a directory or a Go source.
func relevant(path string) bool {
	if filepath.Clean(path) == filepath.Clean(configFile) {
		return true
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return true
	}
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}

func outputPaths(p *project) map[string]bool {
	out := make(map[string]bool)
	for _, path := range []string{p.Output.Object, p.Output.Asm, p.Output.Go, p.Output.Header} {
		if path != "" {
			out[filepath.Clean(path)] = true
		}
	}
	return out
}

func skipWatch(name string) bool {
	return name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
