package heap

import "github.com/heapwalk/heapwalk/addr"

// A Segment is a contiguous region of heap memory managed by the
// collector. Segments in a SegmentIndex are kept sorted by
// Start and are non-overlapping.
type Segment struct {
	Start        addr.Address
	End          addr.Address
	CommittedEnd addr.Address
	FirstObject  addr.Address
	Length       int64
	IsLarge      bool // large-object segment: 8-byte alignment regardless of platform
}

// Contains reports whether a falls within [Start, Start+Length).
func (s *Segment) Contains(a addr.Address) bool {
	return a >= s.Start && a.Sub(s.Start) < s.Length
}

// Generation is a display helper: "LOH" for large-object segments,
// "gen" otherwise. It carries no semantic weight in the engine
// itself, which only distinguishes large-object segments from all
// others.
func (s *Segment) Generation() string {
	if s.IsLarge {
		return "LOH"
	}
	return "gen"
}

// SegmentIndex is an ordered list of segments with an MRU hint for
// fast address->segment lookup. Heap walks exhibit strong
// spatial locality, so checking the last-hit segment first before
// falling back to a full scan amortizes lookups to O(1) in practice.
type SegmentIndex struct {
	segments []*Segment
	mru      int
}

// NewSegmentIndex builds a SegmentIndex from segments, which must
// already be sorted by Start and non-overlapping (the HeapBuilder
// collaborator is responsible for that invariant; violations are an
// InvariantViolation and are returned to the caller as an
// InvariantViolationError rather than silently sorted here, since silently re-sorting could hide a real
// corruption signal upstream).
func NewSegmentIndex(segments []*Segment) (*SegmentIndex, error) {
	for i := 1; i < len(segments); i++ {
		if segments[i].Start < segments[i-1].End {
			return nil, &InvariantViolationError{Msg: "segments are not sorted and non-overlapping"}
		}
	}
	for _, s := range segments {
		if s.FirstObject < s.Start {
			return nil, &InvariantViolationError{Msg: "segment FirstObject precedes Start"}
		}
		if s.CommittedEnd > s.End {
			return nil, &InvariantViolationError{Msg: "segment CommittedEnd exceeds End"}
		}
	}
	return &SegmentIndex{segments: segments}, nil
}

// Segments returns the full ordered segment list.
func (si *SegmentIndex) Segments() []*Segment {
	return si.segments
}

// SegmentOf returns the segment containing a, or nil if a isn't in
// any known segment. On hit, the MRU hint is updated so that
// subsequent nearby lookups are O(1); this is the main win for heap
// walks, which touch addresses in ascending order within one segment
// at a time.
func (si *SegmentIndex) SegmentOf(a addr.Address) *Segment {
	n := len(si.segments)
	if n == 0 {
		return nil
	}
	if a < si.segments[0].FirstObject || a >= si.segments[n-1].End {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (si.mru + i) % n
		s := si.segments[idx]
		if s.Contains(a) {
			si.mru = idx
			return s
		}
	}
	return nil
}
