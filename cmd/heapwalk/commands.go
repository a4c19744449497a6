package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/heap"
	"github.com/heapwalk/heapwalk/pathfind"
)

func parseAddress(s string) (addr.Address, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr.Address(v), nil
}

func newSegmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "List the heap's segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "START\tEND\tCOMMITTED\tKIND")
			for _, seg := range h.Segments() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", seg.Start, seg.End, seg.CommittedEnd, seg.Generation())
			}
			return w.Flush()
		},
	}
}

func newObjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "objects",
		Short: "List every live object in the heap",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			h.LogHeapWalkSteps(16)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tTYPE\tSIZE")
			h.EnumerateObjects(nil, func(o heap.Object) bool {
				fmt.Fprintf(w, "%s\t%s\t%d\n", o.Address, o.Type.Name, h.GetObjectSize(o.Address, o.Type))
				return true
			})
			if err := w.Flush(); err != nil {
				return err
			}
			for _, s := range h.Steps() {
				logger.Debug("walk step", zap.String("step", s.String()))
			}
			return nil
		},
	}
}

func newRootsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "List the heap's GC roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tOBJECT")
			err = h.EnumerateRoots(func(r heap.Root) bool {
				fmt.Fprintf(w, "%s\t%s\n", rootKindName(r.Kind), r.Object)
				return true
			})
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
}

func rootKindName(k heap.RootKind) string {
	switch k {
	case heap.RootHandle:
		return "handle"
	case heap.RootStack:
		return "stack"
	case heap.RootFinalizer:
		return "finalizer"
	default:
		return "unknown"
	}
}

func newPathCommand() *cobra.Command {
	var unique bool
	var all bool
	var showStats bool
	var parallel bool
	var maxTasks int

	cmd := &cobra.Command{
		Use:   "path <source-address-hex> <target-address-hex>",
		Short: "Find a reference chain from a source object (or 'roots') to a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			finder := pathfind.NewFinder(h)
			finder.RegisterProgressCallback(func(n int) {
				logger.Debug("search progress", zap.Int("processed", n))
			})
			if parallel {
				// The demo heap is entirely memory-resident, so the
				// parallel mode's thread-safety precondition holds.
				finder.AllowParallelSearch = true
				if err := finder.SetMaximumTasksAllowed(maxTasks); err != nil {
					return err
				}
			}

			target, err := parseAddress(args[1])
			if err != nil {
				return err
			}

			ctx := context.Background()

			if args[0] == "roots" {
				return finder.EnumerateGCRoots(ctx, target, unique, func(p pathfind.Path) bool {
					printPath(p)
					return all
				})
			}

			src, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			if all {
				stats, err := finder.EnumerateAllPaths(ctx, src, target, unique, func(p pathfind.Path) bool {
					printPath(p)
					return true
				})
				if err != nil {
					return err
				}
				if showStats {
					fmt.Printf("fresh=%d spliced=%d\n", stats.Fresh, stats.Spliced)
				}
				return nil
			}
			path, err := finder.FindSinglePath(ctx, src, target)
			if err != nil {
				return err
			}
			if path == nil {
				fmt.Println("no path found")
				return nil
			}
			printPath(path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unique, "unique", false, "suppress paths that reuse an intermediate address of an earlier one")
	cmd.Flags().BoolVar(&all, "all", false, "enumerate every path instead of stopping at the first")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print a fresh-vs-spliced path count (requires --all)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "search roots with a bounded worker pool (source 'roots' only)")
	cmd.Flags().IntVar(&maxTasks, "max-tasks", 4, "concurrent root searches when --parallel is set")
	return cmd
}

func printPath(p pathfind.Path) {
	for i, a := range p {
		if i > 0 {
			fmt.Print(" -> ")
		}
		fmt.Print(a.String())
	}
	fmt.Println()
}

func newStepsCommand() *cobra.Command {
	var capacity int
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Walk the heap with step logging enabled and dump the recorded steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			h.LogHeapWalkSteps(capacity)
			h.EnumerateObjects(nil, func(o heap.Object) bool { return true })
			for _, s := range h.Steps() {
				fmt.Println(s.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&capacity, "capacity", 32, "number of most recent steps to retain")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the heap's memory-use breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			printStatistic(h.Stats(), 0)
			return nil
		},
	}
}

func printStatistic(s *heap.Statistic, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Printf("%s: %d\n", s.Name, s.Value)
	s.Children(func(c *heap.Statistic) bool {
		printStatistic(c, depth+1)
		return true
	})
}
