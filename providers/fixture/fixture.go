// Package fixture is a synthetic, in-memory implementation of the
// external collaborator interfaces the heap and pathfind packages
// consume: the data reader, heap builder, heap helpers, and runtime.
// It exists purely for tests and for the CLI's demo mode; it is not a
// real dump-file or live-process reader, which is out of this
// module's scope.
package fixture

import (
	"cmp"
	"encoding/binary"
	"slices"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/heap"
	"github.com/heapwalk/heapwalk/internal/memio"
)

// Memory is a sparse, infinitely-extensible byte store standing in
// for a real process's address space. Unwritten bytes read as zero,
// which is enough to model "uninitialized" or "never allocated"
// memory for test purposes; a real DataReader would instead refuse
// the read.
type Memory struct {
	ptrSize int
	bytes   map[addr.Address]byte
}

// NewMemory creates an empty Memory for a process with the given
// pointer width (4 or 8).
func NewMemory(ptrSize int) *Memory {
	return &Memory{ptrSize: ptrSize, bytes: make(map[addr.Address]byte)}
}

// WriteBytes stores b starting at a.
func (m *Memory) WriteBytes(a addr.Address, b []byte) {
	for i, c := range b {
		m.bytes[a.Add(int64(i))] = c
	}
}

// WritePtr stores a pointer-sized little-endian value at a.
func (m *Memory) WritePtr(a addr.Address, v uint64) {
	buf := make([]byte, m.ptrSize)
	if m.ptrSize == 4 {
		binary.LittleEndian.PutUint32(buf, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(buf, v)
	}
	m.WriteBytes(a, buf)
}

// WriteUint32 stores a 4-byte little-endian value at a.
func (m *Memory) WriteUint32(a addr.Address, v uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	m.WriteBytes(a, buf)
}

// ReadMemory implements memio.DataReader.
func (m *Memory) ReadMemory(a addr.Address, buf []byte) int {
	for i := range buf {
		buf[i] = m.bytes[a.Add(int64(i))]
	}
	return len(buf)
}

// ReadPointerUnsafe implements memio.DataReader.
func (m *Memory) ReadPointerUnsafe(a addr.Address, ptrSize int) uint64 {
	buf := make([]byte, ptrSize)
	m.ReadMemory(a, buf)
	var v uint64
	for i, c := range buf {
		v |= uint64(c) << (8 * uint(i))
	}
	return v
}

// ReadUint32Unsafe implements memio.DataReader.
func (m *Memory) ReadUint32Unsafe(a addr.Address) uint32 {
	return uint32(m.ReadPointerUnsafe(a, 4))
}

// TypeRegistry is a minimal heap.TypeFactory: a flat map from method
// table to *heap.Type, ignoring the candidate object address (the
// fixture has no need for per-object polymorphic resolution).
type TypeRegistry struct {
	types map[heap.MethodTable]*heap.Type
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[heap.MethodTable]*heap.Type)}
}

// Register associates mt with t. Returns mt's Type for convenience.
func (r *TypeRegistry) Register(mt heap.MethodTable, t *heap.Type) *heap.Type {
	r.types[mt] = t
	return t
}

// GetOrCreateType implements heap.TypeFactory.
func (r *TypeRegistry) GetOrCreateType(mt heap.MethodTable, _ addr.Address) *heap.Type {
	return r.types[mt]
}

// OffsetListDesc is a heap.GCDesc that reports a fixed list of
// pointer-sized field offsets, used by fixture types that contain
// pointers. It stands in for a real runtime's encoded GC bitmap.
type OffsetListDesc struct {
	Offsets []int64
}

// WalkObject implements heap.GCDesc.
func (d OffsetListDesc) WalkObject(object addr.Address, _ int64, read func(addr.Address) uint64, yield func(offset int64, referent addr.Address) bool) {
	for _, off := range d.Offsets {
		v := read(object.Add(off))
		if !yield(off, addr.Address(v)) {
			return
		}
	}
}

// Builder is a synthetic heap.HeapBuilder: callers set its fields
// directly before passing it to heap.Core.
type Builder struct {
	CanWalk     bool
	Server      bool
	StringMT    heap.MethodTable
	ObjectMT    heap.MethodTable
	FreeMT      heap.MethodTable
	ExceptionMT heap.MethodTable

	Segments         []*heap.Segment
	AllocContexts    []heap.AllocationContext
	FinalizerRoots   []heap.FinalizerRoot
	FinalizerObjects []addr.Address
}

func (b *Builder) CanWalkHeap() bool                      { return b.CanWalk }
func (b *Builder) IsServer() bool                         { return b.Server }
func (b *Builder) StringMethodTable() heap.MethodTable    { return b.StringMT }
func (b *Builder) ObjectMethodTable() heap.MethodTable    { return b.ObjectMT }
func (b *Builder) FreeMethodTable() heap.MethodTable      { return b.FreeMT }
func (b *Builder) ExceptionMethodTable() heap.MethodTable { return b.ExceptionMT }

func (b *Builder) CreateSegments() ([]*heap.Segment, []heap.AllocationContext, []heap.FinalizerRoot, []addr.Address, error) {
	return b.Segments, b.AllocContexts, b.FinalizerRoots, b.FinalizerObjects, nil
}

// Helpers is a synthetic heap.HeapHelpers.
type Helpers struct {
	Factory        heap.TypeFactory
	DependentEdges []heap.DependentHandleEdge
	Mem            *Memory
}

func (h *Helpers) TypeFactory() heap.TypeFactory { return h.Factory }

func (h *Helpers) EnumerateDependentHandleLinks() ([]heap.DependentHandleEdge, error) {
	out := append([]heap.DependentHandleEdge(nil), h.DependentEdges...)
	slices.SortFunc(out, func(a, b heap.DependentHandleEdge) int {
		return cmp.Compare(a.Source, b.Source)
	})
	return out, nil
}

func (h *Helpers) DataReader() memio.DataReader {
	return h.Mem
}

// Thread is a synthetic heap.Thread.
type Thread struct {
	IDValue uint64
	Roots   []heap.StackRoot
}

func (t *Thread) ID() uint64 { return t.IDValue }
func (t *Thread) EnumerateStackRoots() ([]heap.StackRoot, error) {
	return t.Roots, nil
}

// Runtime is a synthetic heap.Runtime.
type Runtime struct {
	Handles    []heap.Handle
	ThreadList []*Thread
}

func (r *Runtime) EnumerateHandles() ([]heap.Handle, error) {
	return r.Handles, nil
}

func (r *Runtime) Threads() ([]heap.Thread, error) {
	out := make([]heap.Thread, len(r.ThreadList))
	for i, t := range r.ThreadList {
		out[i] = t
	}
	return out, nil
}
