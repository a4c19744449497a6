package heap

// Statistic is a node in a tree breaking down the heap's memory use
// by category (segment kind, at the top level). The invariant is
// maintained that a node with children has Value equal to the sum of
// its children's Values.
type Statistic struct {
	Name  string
	Value int64

	children map[string]*Statistic
}

func leafStat(name string, value int64) *Statistic {
	return &Statistic{Name: name, Value: value}
}

func groupStat(name string, children ...*Statistic) *Statistic {
	var cmap map[string]*Statistic
	var value int64
	if len(children) != 0 {
		cmap = make(map[string]*Statistic)
		for _, c := range children {
			cmap[c.Name] = c
			value += c.Value
		}
	}
	return &Statistic{Name: name, Value: value, children: cmap}
}

// Sub walks the tree following chain, returning nil if any segment of
// the chain doesn't exist.
func (s *Statistic) Sub(chain ...string) *Statistic {
	for _, name := range chain {
		if s == nil {
			return nil
		}
		s = s.children[name]
	}
	return s
}

// Children calls yield once per immediate child, stopping early if
// yield returns false, matching the callback-enumeration idiom used
// throughout this package.
func (s *Statistic) Children(yield func(*Statistic) bool) {
	for _, c := range s.children {
		if !yield(c) {
			return
		}
	}
}

// segmentStats builds the top-level Statistic tree for a set of
// segments: total committed bytes, split between ordinary and
// large-object segments.
func segmentStats(segments []*Segment) *Statistic {
	var small, large int64
	for _, s := range segments {
		n := s.CommittedEnd.Sub(s.Start)
		if s.IsLarge {
			large += n
		} else {
			small += n
		}
	}
	return groupStat("heap",
		leafStat("small object segments", small),
		leafStat("large object segments", large),
	)
}
