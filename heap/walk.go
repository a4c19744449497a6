package heap

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/internal/memio"
	"github.com/heapwalk/heapwalk/sizeof"
)

// Walker performs the linear, lazy enumeration of objects within a
// single segment. It owns no state that outlives one top-level
// enumeration except the allocation-context map and type factory,
// which are shared, read-only inputs.
type Walker struct {
	reader       *memio.Reader
	dataReader   memio.DataReader
	ptrSize      int64
	allocCtx     map[addr.Address]addr.Address
	factory      TypeFactory
	runtimeTypes RuntimeTypes
	steps        *StepLog
	logger       *zap.Logger
}

// NewWalker builds a Walker. reader is the caller's per-thread
// MemoryReader (never shared across goroutines); steps may be nil to
// disable step logging; logger may be nil for silence.
func NewWalker(reader *memio.Reader, dataReader memio.DataReader, ptrSize int64, allocCtx map[addr.Address]addr.Address, factory TypeFactory, rt RuntimeTypes, steps *StepLog, logger *zap.Logger) *Walker {
	if steps == nil {
		steps = NewStepLog(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		reader:       reader,
		dataReader:   dataReader,
		ptrSize:      ptrSize,
		allocCtx:     allocCtx,
		factory:      factory,
		runtimeTypes: rt,
		steps:        steps,
		logger:       logger,
	}
}

// EnumerateObjects walks seg from its FirstObject to its
// CommittedEnd, calling yield for each live object found in strictly
// ascending address order. It stops early if yield returns false.
//
// A nil type lookup or a corrupt allocation-context skip terminates
// the walk of this segment only (recorded as a WalkStep); it never
// returns an error. Walk-time faults stay localized to the current
// segment so the remaining segments can still be enumerated.
func (w *Walker) EnumerateObjects(seg *Segment, yield func(Object) bool) {
	obj := seg.FirstObject
	for obj < seg.CommittedEnd {
		mt, count, haveCount := w.readMTAndCount(seg, obj)

		typ := w.factory.GetOrCreateType(mt, obj)
		if typ == nil {
			w.steps.Record(WalkStep{Address: obj, MethodTable: mt, BaseSize: StepTypeLookupFailed})
			w.logger.Warn("type lookup failed, stopping segment walk",
				zap.Stringer("object", obj),
				zap.Stringer("methodTable", addr.Address(mt)))
			return
		}

		if !yield(Object{Address: obj, Type: typ}) {
			return
		}

		if typ.ComponentSize != 0 && !haveCount {
			count = w.readCount(obj)
		}
		isString := typ == w.runtimeTypes.String
		size := sizeof.ObjectSize(typ.BaseSize, typ.ComponentSize, int64(count), isString, sizeof.PointerWidth(w.ptrSize), seg.IsLarge)

		w.steps.Record(WalkStep{Address: obj, MethodTable: mt, BaseSize: typ.BaseSize, ComponentSize: typ.ComponentSize, Count: int64(count)})

		next := obj.Add(size)

		if limit, isCtx := w.allocCtx[next]; isCtx {
			gap := sizeof.Align(sizeof.MinObjectSize(sizeof.PointerWidth(w.ptrSize)), sizeof.PointerWidth(w.ptrSize), seg.IsLarge)
			skipped := limit.Add(gap)
			if skipped > seg.End || skipped <= next {
				w.steps.Record(WalkStep{Address: next, BaseSize: StepAllocContextCorrupt})
				w.logger.Warn("allocation-context skip detected corruption, stopping segment walk",
					zap.Stringer("context", next),
					zap.Stringer("limit", limit),
					zap.Stringer("segmentEnd", seg.End))
				return
			}
			next = skipped
		}

		obj = next
	}
}

// readMTAndCount resolves the method table at obj and, for
// large-object segments, also the array/string count word in the
// same bulk read.
func (w *Walker) readMTAndCount(seg *Segment, obj addr.Address) (mt MethodTable, count uint32, haveCount bool) {
	if seg.IsLarge {
		buf := make([]byte, 2*w.ptrSize+4)
		n := w.dataReader.ReadMemory(obj, buf)
		if int64(n) < w.ptrSize+4 {
			return MethodTable(addr.Address(w.dataReader.ReadPointerUnsafe(obj, int(w.ptrSize)))), 0, false
		}
		mtVal := readUintLE(buf[:w.ptrSize])
		cnt := binary.LittleEndian.Uint32(buf[w.ptrSize : w.ptrSize+4])
		return MethodTable(addr.Address(mtVal)), cnt, true
	}
	v, _ := w.reader.ReadPtr(obj)
	return MethodTable(addr.Address(v)), 0, false
}

func (w *Walker) readCount(obj addr.Address) uint32 {
	v, _ := w.reader.ReadDword(obj.Add(w.ptrSize))
	return v
}

func readUintLE(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * uint(i))
	}
	return v
}
