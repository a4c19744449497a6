package heap

import "github.com/heapwalk/heapwalk/addr"

// MethodTable is the runtime pointer stored as the first word of
// every managed object, identifying its type.
type MethodTable addr.Address

// GCDesc is the opaque per-type encoded reference map used to yield
// (referent, offset) pairs for a live object of this type. The engine
// treats it as data owned by the metadata provider; it is interpreted
// only by the provider's WalkObject implementation passed in via
// GCDescWalker, never by this package directly.
type GCDesc interface {
	// WalkObject yields (fieldOffset, referentAddress) pairs for an
	// object of the owning type living at addr with the given size.
	// read is supplied by the engine and should be used for every
	// pointer-sized read the descriptor needs to perform; it consults
	// the per-thread MemoryReader first and falls back to the raw
	// data reader.
	WalkObject(object addr.Address, size int64, read func(addr.Address) uint64, yield func(offset int64, referent addr.Address) bool)
}

// Type is an immutable per-method-table descriptor. The same
// MethodTable always yields an equal *Type reference from the
// external metadata factory, so Type values may be compared by
// pointer identity.
type Type struct {
	Name                  string
	BaseSize              int64
	ComponentSize         int64
	ContainsPointers      bool
	IsCollectible         bool
	LoaderAllocatorHandle addr.Address // 0 if not collectible
	GCDesc                GCDesc       // nil if ContainsPointers is false
}

// RuntimeTypes holds identity-comparable references to the four
// method tables the engine must be able to recognize by identity: the
// String, Object, Free, and Exception types. A HeapBuilder
// supplies these once; the type factory guarantees that looking up
// the corresponding method table always returns these same pointers.
type RuntimeTypes struct {
	String    *Type
	Object    *Type
	Free      *Type
	Exception *Type
}

// TypeFactory resolves a MethodTable (optionally disambiguated by the
// address of a candidate object, for polymorphic free lists) to a
// *Type. Returning nil signals "could not resolve": walking records
// that as a StepTypeLookupFailed WalkStep and stops the segment, and
// Heap.GetObjectType callers tolerate a nil result.
type TypeFactory interface {
	GetOrCreateType(mt MethodTable, objectAddr addr.Address) *Type
}

// An Object is a (address, type) pair identifying a single live
// object reachable in the inspected heap.
type Object struct {
	Address addr.Address
	Type    *Type
}
