// Package memio provides the heap walker's view of raw process
// memory: the external DataReader contract it is given, and a small
// per-thread cache (MemoryReader) in front of it that serves the
// pointer- and dword-sized reads the walker issues many times over in
// a tight loop.
//
// Nothing in this package is safe to share across goroutines: each
// worker goroutine in a parallel path search owns its own
// MemoryReader, created at the start of an enumeration and discarded
// at its end.
package memio

import "github.com/heapwalk/heapwalk/addr"

// DataReader is the raw memory-access contract the core walker
// consumes from an external debugger/DAC layer. Reads
// return zero/garbage silently on invalid addresses; callers
// validate via segment bounds before trusting the result.
type DataReader interface {
	// ReadMemory copies as many bytes as are available starting at
	// addr into buf, returning the count actually read.
	ReadMemory(a addr.Address, buf []byte) int

	// ReadPointerUnsafe reads a pointer-sized value at addr without
	// validating the address; invalid addresses yield garbage, not
	// an error.
	ReadPointerUnsafe(a addr.Address, ptrSize int) uint64

	// ReadUint32Unsafe reads a 4-byte little-endian value at addr
	// without validating the address.
	ReadUint32Unsafe(a addr.Address) uint32
}

// DefaultWindowSize is the default size of the cached memory window,
// chosen to comfortably cover a handful of consecutive small objects
// without re-fetching on every step of a heap walk.
const DefaultWindowSize = 64 * 1024

// Reader is a single-window read cache over a DataReader. It is not
// safe for concurrent use; each goroutine walking a heap or searching
// a path must have its own Reader.
type Reader struct {
	src        DataReader
	ptrSize    int
	windowSize int64

	base  addr.Address
	valid bool
	buf   []byte // len(buf) <= windowSize; buf covers [base, base+len(buf))
}

// NewReader creates a Reader over src with the given pointer width
// and cache window size. A windowSize of 0 selects DefaultWindowSize.
func NewReader(src DataReader, ptrSize int, windowSize int64) *Reader {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Reader{src: src, ptrSize: ptrSize, windowSize: windowSize}
}

// Contains reports whether a currently falls within the cached
// window.
func (r *Reader) Contains(a addr.Address) bool {
	return r.valid && a >= r.base && a.Sub(r.base) < int64(len(r.buf))
}

// ensureRangeInCache loads the window covering addr if it isn't
// already cached, discarding the previous window. Returns false if
// the underlying reader could not satisfy any of the requested range.
func (r *Reader) ensureRangeInCache(a addr.Address) bool {
	if r.Contains(a) {
		return true
	}
	buf := make([]byte, r.windowSize)
	n := r.src.ReadMemory(a, buf)
	if n <= 0 {
		r.valid = false
		return false
	}
	r.base = a
	r.buf = buf[:n]
	r.valid = true
	return true
}

// ReadPtr reads a pointer-sized value at addr, serving from the cache
// when possible and falling back to a direct, unsafe read otherwise.
// ok reports whether the value was served from the cached window; it
// is false when no window covering the full pointer-sized read could
// be loaded, in which case the value comes from the direct read, so a
// false ok is informational, not fatal.
func (r *Reader) ReadPtr(a addr.Address) (value uint64, ok bool) {
	if r.ensureRangeInCache(a) && a.Sub(r.base)+int64(r.ptrSize) <= int64(len(r.buf)) {
		off := a.Sub(r.base)
		return readUintLE(r.buf[off:off+int64(r.ptrSize)], r.ptrSize), true
	}
	return r.src.ReadPointerUnsafe(a, r.ptrSize), false
}

// ReadDword reads a 4-byte little-endian value at addr, serving from
// the cache when possible.
func (r *Reader) ReadDword(a addr.Address) (value uint32, ok bool) {
	if r.ensureRangeInCache(a) && a.Sub(r.base)+4 <= int64(len(r.buf)) {
		off := a.Sub(r.base)
		return uint32(readUintLE(r.buf[off:off+4], 4)), true
	}
	return r.src.ReadUint32Unsafe(a), false
}

// Reset discards the cached window. Called at the end of a top-level
// enumeration so that a later enumeration doesn't observe memory
// contents captured under a stale phase of the walk.
func (r *Reader) Reset() {
	r.valid = false
	r.buf = nil
}

func readUintLE(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}
