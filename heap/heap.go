// Package heap implements the core of the post-mortem managed-heap
// inspector: the linear heap walker, the GC-descriptor-driven
// reference enumerator, and the root enumerator, wired together
// behind the Heap type. Dump-file parsing, the debugger data-access
// layer, and type/metadata construction are external collaborators
// consumed through the interfaces in external.go; this package never
// reads a file or decodes DWARF/PDB metadata itself.
package heap

import (
	"cmp"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/internal/memio"
	"github.com/heapwalk/heapwalk/sizeof"
)

// Heap is the state of one attached, stopped managed-runtime process:
// its segment layout, its mandatory type identities, and the
// collaborators needed to walk it. It is created once per attached
// runtime and lives until the caller is done with it; per-thread
// caches are created fresh for each top-level enumeration rather than
// stored here.
type Heap struct {
	builder HeapBuilder
	helpers HeapHelpers
	runtime Runtime

	factory      TypeFactory
	runtimeTypes RuntimeTypes

	segIndex         *SegmentIndex
	allocContexts    map[addr.Address]addr.Address
	finalizerRoots   []FinalizerRoot
	finalizerObjects []addr.Address

	ptrSize int64
	stats   *Statistic
	logger  *zap.Logger

	windowSize int64

	depOnce  sync.Once
	depEdges []DependentHandleEdge
	depErr   error

	stepBufSize int
	lastSteps   *StepLog
}

// Core attaches to a process through the given collaborators,
// eagerly populating type singletons and the segment layout.
// Construction-time failures (nil collaborators, a mandatory type
// that the factory can't resolve, an out-of-order segment list) are
// fatal and returned as an error; nothing is retried. logger receives
// construction and walk diagnostics; nil means silent.
func Core(builder HeapBuilder, helpers HeapHelpers, runtime Runtime, ptrSize int64, logger *zap.Logger) (*Heap, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil || helpers == nil || runtime == nil {
		return nil, &InvalidInputError{Msg: "builder, helpers, and runtime must all be non-nil"}
	}
	if ptrSize != 4 && ptrSize != 8 {
		return nil, &InvalidInputError{Msg: "ptrSize must be 4 or 8"}
	}
	if !builder.CanWalkHeap() {
		return nil, &InvariantViolationError{Msg: "target heap cannot be walked"}
	}

	factory := helpers.TypeFactory()
	if factory == nil {
		return nil, &InvalidInputError{Msg: "HeapHelpers.TypeFactory must be non-nil"}
	}

	rt := RuntimeTypes{
		String:    factory.GetOrCreateType(builder.StringMethodTable(), 0),
		Object:    factory.GetOrCreateType(builder.ObjectMethodTable(), 0),
		Free:      factory.GetOrCreateType(builder.FreeMethodTable(), 0),
		Exception: factory.GetOrCreateType(builder.ExceptionMethodTable(), 0),
	}
	if rt.String == nil || rt.Object == nil || rt.Free == nil || rt.Exception == nil {
		return nil, &InvariantViolationError{Msg: errMandatoryTypeMissing.Error()}
	}

	segments, allocCtxList, finalizerRoots, finalizerObjects, err := builder.CreateSegments()
	if err != nil {
		return nil, err
	}
	segIndex, err := NewSegmentIndex(segments)
	if err != nil {
		return nil, err
	}

	allocContexts := make(map[addr.Address]addr.Address, len(allocCtxList))
	for _, ac := range allocCtxList {
		allocContexts[ac.Pointer] = ac.Limit
	}

	h := &Heap{
		builder:          builder,
		helpers:          helpers,
		runtime:          runtime,
		factory:          factory,
		runtimeTypes:     rt,
		segIndex:         segIndex,
		allocContexts:    allocContexts,
		finalizerRoots:   finalizerRoots,
		finalizerObjects: finalizerObjects,
		ptrSize:          ptrSize,
		logger:           logger,
	}
	h.stats = segmentStats(segIndex.Segments())
	logger.Debug("heap attached",
		zap.Int("segments", len(segments)),
		zap.Int("allocationContexts", len(allocCtxList)),
		zap.Int("finalizerRoots", len(finalizerRoots)),
		zap.Int64("committedBytes", h.stats.Value))
	return h, nil
}

// newReader creates a fresh, unshared per-call MemoryReader over the
// raw data reader. Every public method that needs to read memory
// creates its own: no Reader is ever retained across calls or shared
// between goroutines.
func (h *Heap) newReader() *memio.Reader {
	return memio.NewReader(h.helpers.DataReader(), int(h.ptrSize), h.windowSize)
}

// SetReaderWindowSize sets the cache window size, in bytes, of the
// MemoryReaders created for subsequent enumerations. A size of 0
// restores memio.DefaultWindowSize.
func (h *Heap) SetReaderWindowSize(n int64) {
	h.windowSize = n
}

// LogHeapWalkSteps enables (bufferSize > 0) or disables (bufferSize
// == 0) the diagnostic step log for subsequent EnumerateObjects
// calls. It is process-wide configuration with per-enumeration
// storage: it has no effect on walk results.
func (h *Heap) LogHeapWalkSteps(bufferSize int) {
	h.stepBufSize = bufferSize
}

// Steps returns the WalkSteps recorded by the most recent
// EnumerateObjects call, oldest first. Empty if step logging was
// never enabled.
func (h *Heap) Steps() []WalkStep {
	if h.lastSteps == nil {
		return nil
	}
	return h.lastSteps.Steps()
}

// Step returns the i'th recorded step from the most recent
// EnumerateObjects call.
func (h *Heap) Step(i int) WalkStep {
	return h.Steps()[i]
}

// Segments returns the heap's segments in ascending Start order.
func (h *Heap) Segments() []*Segment {
	return h.segIndex.Segments()
}

// GetSegmentByAddress returns the segment containing a, or nil.
func (h *Heap) GetSegmentByAddress(a addr.Address) *Segment {
	return h.segIndex.SegmentOf(a)
}

// EnumerateObjects walks the given segments (or every segment, if
// segs is nil) in Start order, yielding every live object in
// strictly ascending address order within each segment. It stops
// early, across all segments, as soon as yield returns false.
func (h *Heap) EnumerateObjects(segs []*Segment, yield func(Object) bool) {
	if segs == nil {
		segs = h.segIndex.Segments()
	}
	reader := h.newReader()
	steps := NewStepLog(h.stepBufSize)
	h.lastSteps = steps
	walker := NewWalker(reader, h.helpers.DataReader(), h.ptrSize, h.allocContexts, h.factory, h.runtimeTypes, steps, h.logger)

	stopped := false
	for _, seg := range segs {
		if stopped {
			break
		}
		walker.EnumerateObjects(seg, func(o Object) bool {
			if !yield(o) {
				stopped = true
				return false
			}
			return true
		})
	}
	reader.Reset()
}

// GetObjectType returns the type of the object whose header lives at
// a, or nil if a isn't in a known segment or its method table can't
// be resolved.
func (h *Heap) GetObjectType(a addr.Address) *Type {
	seg := h.segIndex.SegmentOf(a)
	if seg == nil {
		return nil
	}
	reader := h.newReader()
	v, _ := reader.ReadPtr(a)
	return h.factory.GetOrCreateType(MethodTable(addr.Address(v)), a)
}

// GetObjectSize computes the in-memory size of the object of type
// typ living at a: base size plus component count times component
// size, aligned for the segment kind, floored at the minimum object
// size.
func (h *Heap) GetObjectSize(a addr.Address, typ *Type) int64 {
	seg := h.segIndex.SegmentOf(a)
	large := seg != nil && seg.IsLarge

	var count int64
	if typ.ComponentSize != 0 {
		reader := h.newReader()
		v, _ := reader.ReadDword(a.Add(h.ptrSize))
		count = int64(v)
	}
	isString := typ == h.runtimeTypes.String
	return sizeof.ObjectSize(typ.BaseSize, typ.ComponentSize, count, isString, sizeof.PointerWidth(h.ptrSize), large)
}

// dependentEdges materializes the dependent-handle edge array on the
// first reference query that asks for it and reuses it for the
// lifetime of the heap instance. The sort by Source is done here, once,
// so every ReferenceEnumerator can binary-search it directly.
func (h *Heap) dependentEdges() ([]DependentHandleEdge, error) {
	h.depOnce.Do(func() {
		edges, err := h.helpers.EnumerateDependentHandleLinks()
		if err != nil {
			h.depErr = err
			return
		}
		sorted := append([]DependentHandleEdge(nil), edges...)
		slices.SortFunc(sorted, func(a, b DependentHandleEdge) int {
			return cmp.Compare(a.Source, b.Source)
		})
		h.depEdges = sorted
	})
	return h.depEdges, h.depErr
}

// EnumerateObjectReferences yields every outbound reference from the
// object of type typ living at a: dependent-handle targets, the
// loader-allocator edge, then GC-descriptor field references.
func (h *Heap) EnumerateObjectReferences(a addr.Address, typ *Type, carefully, considerDependentHandles bool, yield func(Object) bool) error {
	reader := h.newReader()
	defer reader.Reset()
	gcWalker := NewGCDescWalker(reader, h.helpers.DataReader(), int(h.ptrSize))
	re := NewReferenceEnumerator(gcWalker, h.segIndex, reader, h.GetObjectType, h.GetObjectSize, h.dependentEdges)
	return re.EnumerateReferences(Object{Address: a, Type: typ}, carefully, considerDependentHandles, yield)
}

// EnumerateRoots yields every GC root: strong handles, then
// finalizer-queue roots, then per-thread stack roots.
func (h *Heap) EnumerateRoots(yield func(Root) bool) error {
	return NewRootEnumerator(h.runtime, h.finalizerRoots).Enumerate(yield)
}

// EnumerateFinalizableObjects yields every object pending
// finalization.
func (h *Heap) EnumerateFinalizableObjects(yield func(addr.Address) bool) {
	for _, o := range h.finalizerObjects {
		if !yield(o) {
			return
		}
	}
}

// EnumerateFinalizerRoots yields every root rooted in the finalizer
// queue.
func (h *Heap) EnumerateFinalizerRoots(yield func(FinalizerRoot) bool) {
	for _, r := range h.finalizerRoots {
		if !yield(r) {
			return
		}
	}
}

// Stats returns a breakdown of the heap's memory use by segment
// generation.
func (h *Heap) Stats() *Statistic {
	return h.stats
}

// RuntimeTypesOf exposes the four mandatory runtime type singletons
// resolved at construction time, for callers that need identity
// comparisons (e.g. "is this the String type") without duplicating
// the factory lookup.
func (h *Heap) RuntimeTypesOf() RuntimeTypes {
	return h.runtimeTypes
}
