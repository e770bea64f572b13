// Command tinywasmrun is a thin CLI wrapper: it is not part of the
// suspendable-interpreter core (spec §1 excludes "logging and CLI
// wrappers" from the core's design surface), but the ambient stack still
// needs a runnable entry point, the way wazero ships cmd/wazero.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/tinywasm-go/api"
	"github.com/wippyai/tinywasm-go/internal/engine/interpreter"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tinywasmrun",
		Short: "Run an exported function from a pre-decoded tinywasm module image",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newMultiCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var funcName string
	var maxSuspensions int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Instantiate a module and call one exported function, resuming through any suspensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runOnce(cmd, logger, funcName, maxSuspensions)
		},
	}
	cmd.Flags().StringVar(&funcName, "func", "_start", "exported function to invoke")
	cmd.Flags().IntVar(&maxSuspensions, "max-resumes", 1<<20, "give up and exit non-zero after this many resumes without a resume argument available")
	return cmd
}

// runOnce drives one invocation to completion. Because this module does
// not include a WebAssembly binary decoder (spec §1), it runs against
// whatever *wasm.Module the embedder's build of this binary links in;
// demoLinkedModule stands in for that integration point.
func runOnce(cmd *cobra.Command, logger *zap.Logger, funcName string, maxSuspensions int) error {
	store, mi, _, err := demoLinkedModule(logger)
	if err != nil {
		return err
	}
	ev, ok := mi.ExportedValue(funcName)
	if !ok || ev.Type != api.ExternTypeFunc {
		return fmt.Errorf("tinywasmrun: no exported function %q", funcName)
	}
	fn := store.Functions[ev.Addr]

	results, sr, reason, err := interpreter.Invoke(store, mi, fn, nil)
	resumes := 0
	for sr != nil {
		resumes++
		if resumes > maxSuspensions {
			return fmt.Errorf("tinywasmrun: exceeded %d resumes without resolving suspend reason %v", maxSuspensions, reason.Kind)
		}
		logger.Sugar().Debugw("invocation suspended", "reason", reason.Kind.String())
		results, sr, reason, err = interpreter.Resume(store, sr, nil)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), results)
	return nil
}

// newMultiCmd demonstrates spec.md §5's "multiple suspended runtimes may
// coexist against one store": it instantiates the demo module once and
// drives several concurrent invocations of its exported function to
// completion on separate goroutines, all sharing the one store, the way
// moby supervises a fan-out of workers with an errgroup.
func newMultiCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "multi",
		Short: "Drive several concurrent invocations against one shared store",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runConcurrent(cmd, logger, count)
		},
	}
	cmd.Flags().IntVar(&count, "count", 4, "number of concurrent invocations to run")
	return cmd
}

func runConcurrent(cmd *cobra.Command, logger *zap.Logger, count int) error {
	store, mi, fn, err := demoLinkedModule(logger)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(cmd.Context())
	results := make([][]api.Value, count)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			res, sr, reason, err := interpreter.Invoke(store, mi, fn, nil)
			for sr != nil {
				logger.Sugar().Debugw("invocation suspended", "worker", i, "reason", reason.Kind.String())
				res, sr, reason, err = interpreter.Resume(store, sr, nil)
			}
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "worker %d: %v\n", i, r)
	}
	return nil
}
