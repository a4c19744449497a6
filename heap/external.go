// External collaborator interfaces. Dump-file parsing, the
// debugger/DAC data-access layer, type/metadata caching, and CLI/UI
// all live outside this package; it consumes them strictly through
// the contracts below.
package heap

import (
	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/internal/memio"
)

// AllocationContext is a half-open range of unused bump-pointer space
// inside a non-large segment that the walker must skip over. Pointer
// is the key under which a HeapBuilder reports it; Limit is the end
// of the reserved range.
type AllocationContext struct {
	Pointer addr.Address
	Limit   addr.Address
}

// FinalizerRoot is a root rooted at a slot within a finalizer queue
// segment.
type FinalizerRoot struct {
	SlotAddress addr.Address
	Object      addr.Address
}

// HeapBuilder supplies the static facts needed to construct a Heap:
// whether the target can be walked at all, whether it's a server GC
// configuration, the four mandatory method tables, and the segment
// layout.
type HeapBuilder interface {
	CanWalkHeap() bool
	IsServer() bool

	StringMethodTable() MethodTable
	ObjectMethodTable() MethodTable
	FreeMethodTable() MethodTable
	ExceptionMethodTable() MethodTable

	// CreateSegments returns the heap's segments (sorted by Start,
	// non-overlapping), the allocation contexts to skip during
	// walking, and the finalizer queue's roots and reachable objects.
	CreateSegments() (segments []*Segment, allocContexts []AllocationContext, finalizerRoots []FinalizerRoot, finalizerObjects []addr.Address, err error)
}

// DependentHandleEdge is a single (source, target) pair reported by a
// HeapHelpers' dependent-handle enumeration.
type DependentHandleEdge struct {
	Source addr.Address
	Target addr.Address
}

// HeapHelpers bundles the type factory, dependent-handle enumeration,
// and raw memory reader a Heap needs from the metadata/debugger
// layer.
type HeapHelpers interface {
	TypeFactory() TypeFactory
	EnumerateDependentHandleLinks() ([]DependentHandleEdge, error)
	DataReader() memio.DataReader
}

// HandleKind classifies an entry in the runtime's handle table.
type HandleKind int

const (
	HandleStrong HandleKind = iota
	HandleWeak
	HandlePinned
	HandleAsyncPinned
	HandleOther
)

// Handle is one entry in the runtime's handle table.
type Handle struct {
	Kind   HandleKind
	Object addr.Address
}

// StackRoot is a root found on a thread's stack.
type StackRoot struct {
	ThreadID uint64
	Object   addr.Address
	// SlotAddress is the stack location the pointer was read from, for
	// display/diagnostic purposes; it is not required to be
	// meaningful for every Runtime implementation.
	SlotAddress addr.Address
}

// Thread is one OS/managed thread the Runtime enumerates stack roots
// for.
type Thread interface {
	ID() uint64
	EnumerateStackRoots() ([]StackRoot, error)
}

// Runtime supplies the handle table and thread list a RootEnumerator
// walks.
type Runtime interface {
	EnumerateHandles() ([]Handle, error)
	Threads() ([]Thread, error)
}
