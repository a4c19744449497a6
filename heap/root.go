package heap

import "github.com/heapwalk/heapwalk/addr"

// RootKind identifies which of the three root phases a
// Root came from.
type RootKind int

const (
	RootHandle RootKind = iota
	RootStack
	RootFinalizer
)

// Root is a tagged union over the three kinds of GC root the engine
// enumerates: a handle-table entry, a thread-stack slot, or a
// finalizer-queue slot. Every variant exposes the object it
// keeps alive.
type Root struct {
	Kind RootKind

	// Object is the address this root keeps alive. Always populated.
	Object addr.Address

	// The following fields are populated depending on Kind and are
	// zero-valued otherwise.
	IsStrong    bool         // RootHandle
	ThreadID    uint64       // RootStack
	SlotAddress addr.Address // RootStack, RootFinalizer
}

// RootEnumerator yields GC roots in a fixed phase order: strong
// handles first, then finalizer-queue roots, then per-thread stack
// roots. Within a phase, ordering mirrors the external provider.
type RootEnumerator struct {
	runtime        Runtime
	finalizerRoots []FinalizerRoot
}

// NewRootEnumerator builds a RootEnumerator over the given Runtime and
// the finalizer roots reported by a HeapBuilder.
func NewRootEnumerator(runtime Runtime, finalizerRoots []FinalizerRoot) *RootEnumerator {
	return &RootEnumerator{runtime: runtime, finalizerRoots: finalizerRoots}
}

// Enumerate calls yield for every root in phase order: strong
// handles, finalizer roots, then stack roots for every live thread.
// It stops early if yield returns false.
func (re *RootEnumerator) Enumerate(yield func(Root) bool) error {
	handles, err := re.runtime.EnumerateHandles()
	if err != nil {
		return err
	}
	for _, h := range handles {
		if h.Kind != HandleStrong {
			continue
		}
		if !yield(Root{Kind: RootHandle, Object: h.Object, IsStrong: true}) {
			return nil
		}
	}

	for _, fr := range re.finalizerRoots {
		if fr.Object.IsZero() {
			continue
		}
		if !yield(Root{Kind: RootFinalizer, Object: fr.Object, SlotAddress: fr.SlotAddress}) {
			return nil
		}
	}

	threads, err := re.runtime.Threads()
	if err != nil {
		return err
	}
	for _, th := range threads {
		roots, err := th.EnumerateStackRoots()
		if err != nil {
			// A single thread's stack being unreadable doesn't
			// invalidate the whole enumeration; skip it.
			continue
		}
		for _, sr := range roots {
			if !yield(Root{Kind: RootStack, Object: sr.Object, ThreadID: sr.ThreadID, SlotAddress: sr.SlotAddress}) {
				return nil
			}
		}
	}
	return nil
}
