package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/emjs/loader"
	"github.com/wippyai/emjs/wasm"
)

// session is an instantiated object ready for calls.
type session struct {
	loader    *loader.Loader
	inst      *loader.Instance
	callables []callable
}

func openSession(ctx context.Context, path string, timeout time.Duration) (*session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}
	scripts, err := loader.ReadScripts(m)
	if err != nil {
		return nil, err
	}

	l := loader.New(loader.Options{ScriptTimeout: timeout})
	inst, err := l.Instantiate(ctx, data)
	if err != nil {
		_ = l.Close(ctx)
		return nil, err
	}
	return &session{loader: l, inst: inst, callables: callables(m, scripts)}, nil
}

func (s *session) Close(ctx context.Context) {
	_ = s.inst.Close(ctx)
	_ = s.loader.Close(ctx)
}

func (s *session) call(ctx context.Context, name string, args []string) (string, error) {
	c, ok := findCallable(s.callables, name)
	if !ok {
		return "", fmt.Errorf("no snippet named %q", name)
	}
	raw, err := c.encodeArgs(args)
	if err != nil {
		return "", err
	}
	results, err := s.inst.Call(ctx, name, raw...)
	if err != nil {
		return "", err
	}
	return c.formatResults(results), nil
}

// runCmd instantiates an object and calls one of its snippets.
func runCmd() *cobra.Command {
	var (
		interactive bool
		eval        string
		list        bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <object> [func] [args...]",
		Short: "Call a snippet of an object on the reference loader",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fmt.Errorf("interactive mode needs a terminal")
				}
				return runInteractive(args[0], timeout)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, args[0], timeout)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if list || (len(args) == 1 && eval == "") {
				fmt.Println(bold("Snippets"))
				for _, c := range s.callables {
					fmt.Printf("  %s\n", c)
				}
				return nil
			}

			if eval != "" {
				out, err := s.inst.RunScriptString(ctx, eval)
				if err != nil {
					return err
				}
				fmt.Println(out)
				if len(args) == 1 {
					return nil
				}
			}

			fmt.Printf("Calling %s...\n", fn(args[1]))
			result, err := s.call(ctx, args[1], args[2:])
			if err != nil {
				return fmt.Errorf("call %s: %w", args[1], err)
			}
			fmt.Printf("Result: %s\n", paint(resultStyle, result))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Interactive console")
	cmd.Flags().StringVarP(&eval, "eval", "e", "", "Evaluate script on the instance before calling")
	cmd.Flags().BoolVar(&list, "list", false, "List snippets and exit")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Interrupt scripts running longer (0 disables)")
	return cmd
}
