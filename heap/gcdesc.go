package heap

import (
	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/internal/memio"
)

// GCDescWalker drives a type's GC descriptor over a live object,
// yielding the (offset, referent) pairs it reports. The descriptor
// is trusted to stay within [object, object+size); this walker does
// no bounds checking of its own beyond supplying a reader.
type GCDescWalker struct {
	reader     *memio.Reader
	dataReader memio.DataReader
	ptrSize    int
}

// NewGCDescWalker builds a GCDescWalker over the given per-thread
// reader cache and raw data reader.
func NewGCDescWalker(reader *memio.Reader, dataReader memio.DataReader, ptrSize int) *GCDescWalker {
	return &GCDescWalker{reader: reader, dataReader: dataReader, ptrSize: ptrSize}
}

// WalkObject calls fn for each (referent, offset) pair the type's GC
// descriptor reports for an object at the given address and size. It
// is only meaningful to call this when typ.ContainsPointers is true
// and typ.GCDesc is non-nil; callers (ReferenceEnumerator) are
// responsible for that check.
func (w *GCDescWalker) WalkObject(object addr.Address, size int64, typ *Type, fn func(referent addr.Address, offset int64) bool) {
	if typ.GCDesc == nil {
		return
	}
	read := func(a addr.Address) uint64 {
		if v, ok := w.reader.ReadPtr(a); ok {
			return v
		}
		return w.dataReader.ReadPointerUnsafe(a, w.ptrSize)
	}
	typ.GCDesc.WalkObject(object, size, read, func(offset int64, referent addr.Address) bool {
		return fn(referent, offset)
	})
}
