package main

import (
	"go.uber.org/zap"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/heap"
	"github.com/heapwalk/heapwalk/providers/fixture"
)

// Method tables for the synthetic demo heap. A real deployment would
// get these, and everything else in newDemoHeap, from a dump-file or
// live-process provider; heapwalk itself never parses one.
const (
	mtFree   heap.MethodTable = 1
	mtObject heap.MethodTable = 2
	mtExc    heap.MethodTable = 3
	mtString heap.MethodTable = 4
	mtNode   heap.MethodTable = 100
	mtLeaf   heap.MethodTable = 101
)

// newDemoHeap builds a small, self-consistent heap.Heap over an
// in-memory fixture: a handful of linked-list-style nodes reachable
// from a strong handle, one of which dangles a leaf with no outbound
// references. It exists so the CLI has something to walk without a
// real dump-file reader, which is explicitly out of this module's
// scope. logger receives the heap's construction and walk
// diagnostics; nil is silent.
func newDemoHeap(logger *zap.Logger) (*heap.Heap, error) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	reg.Register(mtFree, &heap.Type{Name: "Free", BaseSize: 24, ComponentSize: 1})
	reg.Register(mtObject, &heap.Type{Name: "System.Object", BaseSize: 24})
	reg.Register(mtExc, &heap.Type{Name: "System.Exception", BaseSize: 32})
	reg.Register(mtString, &heap.Type{Name: "System.String", BaseSize: 22, ComponentSize: 2})

	nodeType := &heap.Type{
		Name:             "demo.Node",
		BaseSize:         24,
		ContainsPointers: true,
		GCDesc:           fixture.OffsetListDesc{Offsets: []int64{8}},
	}
	reg.Register(mtNode, nodeType)
	leafType := &heap.Type{Name: "demo.Leaf", BaseSize: 16}
	reg.Register(mtLeaf, leafType)

	// Objects are laid out back to back by their actual computed sizes
	// (root:24, mid:24, leaf:24 after the minimum-object-size floor,
	// str:40, a zero-length free block:24), so the segment walk
	// crosses every object in one straight pass and ends exactly at
	// CommittedEnd without tripping the type-lookup-failed step.
	const (
		root addr.Address = 0x1000
		mid  addr.Address = 0x1018
		leaf addr.Address = 0x1030
		str  addr.Address = 0x1048
		free addr.Address = 0x1070
	)
	mem.WritePtr(root, uint64(mtNode))
	mem.WritePtr(root.Add(8), uint64(mid))
	mem.WritePtr(mid, uint64(mtNode))
	mem.WritePtr(mid.Add(8), uint64(leaf))
	mem.WritePtr(leaf, uint64(mtLeaf))
	mem.WritePtr(str, uint64(mtString))
	mem.WriteUint32(str.Add(8), 5)
	mem.WritePtr(free, uint64(mtFree))
	mem.WriteUint32(free.Add(8), 0)

	seg := &heap.Segment{Start: 0x1000, End: 0x2000, CommittedEnd: 0x1088, FirstObject: 0x1000, Length: 0x1000}
	builder := &fixture.Builder{
		CanWalk:     true,
		StringMT:    mtString,
		ObjectMT:    mtObject,
		FreeMT:      mtFree,
		ExceptionMT: mtExc,
		Segments:    []*heap.Segment{seg},
	}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	runtime := &fixture.Runtime{Handles: []heap.Handle{{Kind: heap.HandleStrong, Object: root}}}

	h, err := heap.Core(builder, helpers, runtime, 8, logger)
	if err != nil {
		return nil, err
	}
	h.SetReaderWindowSize(windowBytes)
	return h, nil
}
