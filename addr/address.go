// Package addr defines the address type shared by every layer of the
// heap inspector: the memory reader, the segment index, the walkers,
// and the path finder all talk in terms of addr.Address rather than a
// raw integer type, so that pointer arithmetic reads the same way the
// runtime being inspected would describe it.
package addr

import "fmt"

// Address is a location in the inspected process's address space.
type Address uint64

// Add returns a+n.
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns a-b, the distance in bytes from b to a.
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

// Max returns the larger of a and b.
func (a Address) Max(b Address) Address {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func (a Address) Min(b Address) Address {
	if a < b {
		return a
	}
	return b
}

// IsZero reports whether a is the nil/zero address.
func (a Address) IsZero() bool {
	return a == 0
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Range is a half-open byte range [Min, Max).
type Range struct {
	Min, Max Address
}

// Size returns the number of bytes in r.
func (r Range) Size() int64 {
	return r.Max.Sub(r.Min)
}

// Contains reports whether a lies in [Min, Max).
func (r Range) Contains(a Address) bool {
	return a >= r.Min && a < r.Max
}
