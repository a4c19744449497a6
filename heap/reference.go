package heap

import (
	"cmp"
	"slices"
	"sync"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/internal/memio"
	"github.com/heapwalk/heapwalk/sizeof"
)

// ReferenceEnumerator combines a GCDescWalker with dependent-handle
// lookups and loader-allocator edges to produce the full outbound
// reference set of one object.
type ReferenceEnumerator struct {
	gcWalker *GCDescWalker
	segIndex *SegmentIndex
	reader   *memio.Reader

	getObjectType func(addr.Address) *Type
	getObjectSize func(addr.Address, *Type) int64

	loadDependentEdges func() ([]DependentHandleEdge, error)

	once  sync.Once
	edges []DependentHandleEdge
	err   error
}

// NewReferenceEnumerator builds a ReferenceEnumerator. getObjectType
// and getObjectSize let the enumerator resolve referents without
// depending on the whole Heap type; loadDependentEdges is invoked at
// most once, on first use, and must return edges already sorted by
// Source (Heap.dependentEdges materializes and sorts the array once
// per heap instance, so enumerators created per call don't repeat
// that work).
func NewReferenceEnumerator(gcWalker *GCDescWalker, segIndex *SegmentIndex, reader *memio.Reader, getObjectType func(addr.Address) *Type, getObjectSize func(addr.Address, *Type) int64, loadDependentEdges func() ([]DependentHandleEdge, error)) *ReferenceEnumerator {
	return &ReferenceEnumerator{
		gcWalker:           gcWalker,
		segIndex:           segIndex,
		reader:             reader,
		getObjectType:      getObjectType,
		getObjectSize:      getObjectSize,
		loadDependentEdges: loadDependentEdges,
	}
}

func (re *ReferenceEnumerator) dependentEdges() ([]DependentHandleEdge, error) {
	re.once.Do(func() {
		re.edges, re.err = re.loadDependentEdges()
	})
	return re.edges, re.err
}

// IsTooLarge implements the oversize sanity check used by
// "carefully" mode: an object is too large if it would run past its
// segment's end, or if it claims to be gen-2-sized while living
// outside a large-object segment.
func IsTooLarge(seg *Segment, object addr.Address, size int64) bool {
	if object.Add(size) > seg.End {
		return true
	}
	if !seg.IsLarge && size >= sizeof.LargeObjectThreshold {
		return true
	}
	return false
}

// EnumerateReferences yields every outbound reference from object,
// in a fixed order: dependent-handle targets (if includeDependent),
// the loader-allocator edge (if the type is collectible), then
// GC-descriptor-driven field references (if the type contains
// pointers). Each referent is wrapped with its resolved type; a
// referent whose type can't be resolved is still yielded, with a nil
// Type.
func (re *ReferenceEnumerator) EnumerateReferences(object Object, carefully, includeDependent bool, yield func(Object) bool) error {
	if includeDependent {
		edges, err := re.dependentEdges()
		if err != nil {
			return err
		}
		// BinarySearchFunc returns the first matching index, so every
		// edge for this source follows contiguously from i.
		i, _ := slices.BinarySearchFunc(edges, object.Address, func(e DependentHandleEdge, a addr.Address) int {
			return cmp.Compare(e.Source, a)
		})
		for ; i < len(edges) && edges[i].Source == object.Address; i++ {
			target := edges[i].Target
			if target.IsZero() {
				continue
			}
			if !yield(Object{Address: target, Type: re.getObjectType(target)}) {
				return nil
			}
		}
	}

	if object.Type.IsCollectible {
		v, _ := re.reader.ReadPtr(object.Type.LoaderAllocatorHandle)
		la := addr.Address(v)
		if !la.IsZero() {
			if !yield(Object{Address: la, Type: re.getObjectType(la)}) {
				return nil
			}
		}
	}

	if object.Type.ContainsPointers {
		size := re.getObjectSize(object.Address, object.Type)
		if carefully {
			seg := re.segIndex.SegmentOf(object.Address)
			if seg == nil || IsTooLarge(seg, object.Address, size) {
				return nil
			}
		}
		stop := false
		re.gcWalker.WalkObject(object.Address, size, object.Type, func(referent addr.Address, _ int64) bool {
			if referent.IsZero() {
				return true
			}
			if !yield(Object{Address: referent, Type: re.getObjectType(referent)}) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return nil
		}
	}
	return nil
}
