// Package sizeof implements the object-size arithmetic shared by the
// heap walker and the path finder: alignment, the minimum object
// size, and the string trailing-terminator adjustment. It holds no
// state and does no memory reads; every function here is a pure
// function of its arguments.
package sizeof

// PointerWidth identifies whether the inspected process is 32-bit or
// 64-bit; alignment and minimum object size both depend on it.
type PointerWidth int64

const (
	PointerWidth32 PointerWidth = 4
	PointerWidth64 PointerWidth = 8
)

// alignMask returns the mask K such that Align rounds up to K+1
// bytes: K=3 on 32-bit, K=7 on 64-bit, and K=7 unconditionally for
// large-object segments regardless of pointer width.
func alignMask(ptrSize PointerWidth, large bool) uint64 {
	if large {
		return 7
	}
	if ptrSize == PointerWidth32 {
		return 3
	}
	return 7
}

// Align rounds size up to the next alignment boundary for the given
// pointer width and segment kind.
func Align(size int64, ptrSize PointerWidth, large bool) int64 {
	k := alignMask(ptrSize, large)
	return int64((uint64(size) + k) &^ k)
}

// MinObjectSize is the floor below which no object size is reported,
// regardless of what the type's base/component size computation
// yields: 3 pointer-widths.
func MinObjectSize(ptrSize PointerWidth) int64 {
	return 3 * int64(ptrSize)
}

// ObjectSize computes the in-memory size of an object given its
// type's base and component sizes, the array/string component count
// read from the object itself (0 if componentSize == 0), whether the
// type is the runtime's String type (which gets a +1 on count for its
// trailing terminator), and the segment it lives in.
func ObjectSize(baseSize, componentSize, count int64, isString bool, ptrSize PointerWidth, largeObjectSegment bool) int64 {
	var size int64
	if componentSize == 0 {
		size = baseSize
	} else {
		if isString {
			count++
		}
		size = count*componentSize + baseSize
	}
	size = Align(size, ptrSize, largeObjectSegment)
	if min := MinObjectSize(ptrSize); size < min {
		size = min
	}
	return size
}

// LargeObjectThreshold is the size (in bytes) at or above which an
// object is expected to live in a large-object segment; used only by
// the "carefully" oversize sanity check, not by segment
// classification itself (segments self-report via Segment.IsLarge).
const LargeObjectThreshold = 85_000
