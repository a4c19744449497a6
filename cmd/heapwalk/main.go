// The heapwalk tool is a command-line front end over the heapwalk
// library's post-mortem heap inspector. It has no dump-file or
// live-process reader of its own, so every subcommand operates over
// a small synthetic heap built by
// newDemoHeap; a real deployment would swap that for a HeapBuilder
// backed by an actual debugger/DAC layer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose     bool
	windowBytes int64
)

func main() {
	root := &cobra.Command{
		Use:   "heapwalk",
		Short: "Inspect a managed heap captured from a stopped process",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().Int64Var(&windowBytes, "window", 0, "memory reader cache window size in bytes (0 = default)")

	root.AddCommand(
		newSegmentsCommand(),
		newObjectsCommand(),
		newRootsCommand(),
		newPathCommand(),
		newStatsCommand(),
		newStepsCommand(),
		newShellCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustLogger() *zap.Logger {
	logger, err := newLogger(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heapwalk: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
