package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/heapwalk/heapwalk/heap"
	"github.com/heapwalk/heapwalk/pathfind"
)

// newShellCommand starts an interactive REPL over the demo heap: one
// long-lived attached heap, many queries issued against it, the way a
// debugger console drives repeated inspections without re-attaching.
func newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive shell over the demo heap",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mustLogger()
			defer logger.Sync()

			h, err := newDemoHeap(logger)
			if err != nil {
				return err
			}
			finder := pathfind.NewFinder(h)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "heapwalk> ",
				HistoryFile:     "",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			fmt.Println("heapwalk interactive shell. Type 'help' for commands, 'exit' to quit.")
			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				runShellLine(h, finder, line)
			}
		},
	}
}

func runShellLine(h *heap.Heap, finder *pathfind.Finder, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "help":
		fmt.Println("commands: segments, objects, roots, path <src> <tgt>, stats, exit")
	case "segments":
		for _, seg := range h.Segments() {
			fmt.Printf("%s .. %s (%s)\n", seg.Start, seg.End, seg.Generation())
		}
	case "objects":
		h.EnumerateObjects(nil, func(o heap.Object) bool {
			fmt.Printf("%s %s size=%d\n", o.Address, o.Type.Name, h.GetObjectSize(o.Address, o.Type))
			return true
		})
	case "roots":
		h.EnumerateRoots(func(r heap.Root) bool {
			fmt.Printf("%s %s\n", rootKindName(r.Kind), r.Object)
			return true
		})
	case "path":
		if len(fields) != 3 {
			fmt.Println("usage: path <source-address-hex> <target-address-hex>")
			return
		}
		src, err := parseAddress(fields[1])
		if err != nil {
			fmt.Println(err)
			return
		}
		tgt, err := parseAddress(fields[2])
		if err != nil {
			fmt.Println(err)
			return
		}
		p, err := finder.FindSinglePath(context.Background(), src, tgt)
		if err != nil {
			fmt.Println(err)
			return
		}
		if p == nil {
			fmt.Println("no path found")
			return
		}
		printPath(p)
	case "stats":
		printStatistic(h.Stats(), 0)
	default:
		fmt.Printf("unknown command %q (try 'help')\n", fields[0])
	}
}
