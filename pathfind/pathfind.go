// Package pathfind implements the chain-of-references search over an
// already-walked heap: given a source object or the full GC root
// set, find one or every acyclic path of references leading to a
// target object.
//
// The search is built on top of heap.Heap's public surface only
// (EnumerateRoots, GetObjectType, EnumerateObjectReferences); it never
// reads process memory itself.
package pathfind

import (
	"context"
	"sync"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/heap"
)

// Path is an ordered chain of object addresses from a root or search
// source to the target, inclusive of both endpoints.
type Path []addr.Address

// Finder runs reference-chain searches against one Heap.
type Finder struct {
	Heap *heap.Heap

	// Careful and ConsiderDependentHandles are forwarded to every
	// EnumerateObjectReferences call the search makes.
	Careful                  bool
	ConsiderDependentHandles bool

	// AllowParallelSearch opts EnumerateGCRoots into the bounded
	// worker-pool mode. Only legal when the caller has copied the
	// relevant memory into process-local buffers, making the data
	// reader read-only and thread-safe; this package has no way to
	// verify that and trusts the caller's opt-in.
	AllowParallelSearch bool

	// MaximumTasksAllowed bounds the number of roots searched
	// concurrently when AllowParallelSearch is set. Values below 1
	// are treated as 1 (sequential).
	MaximumTasksAllowed int

	mu       sync.Mutex
	progress []func(int)
}

// NewFinder builds a Finder with dependent-handle edges considered by
// default and parallel search disabled.
func NewFinder(h *heap.Heap) *Finder {
	return &Finder{Heap: h, ConsiderDependentHandles: true, MaximumTasksAllowed: 1}
}

// SetMaximumTasksAllowed validates n before storing it; a rejected
// value leaves the previous setting in place.
func (f *Finder) SetMaximumTasksAllowed(n int) error {
	if n < 0 {
		return &heap.InvalidInputError{Msg: "maxTasks must be >= 0"}
	}
	f.mu.Lock()
	f.MaximumTasksAllowed = n
	f.mu.Unlock()
	return nil
}

// RegisterProgressCallback adds fn to the set invoked every time the
// processed-object count changes, and returns a token for
// UnregisterProgressCallback. Invocation happens on the enumerating
// goroutine (or, in parallel mode, on whichever task goroutine
// advanced the count).
func (f *Finder) RegisterProgressCallback(fn func(processed int)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, fn)
	return len(f.progress) - 1
}

// UnregisterProgressCallback removes a callback previously registered
// with RegisterProgressCallback. It is a no-op for an unknown or
// already-unregistered token.
func (f *Finder) UnregisterProgressCallback(token int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token >= 0 && token < len(f.progress) {
		f.progress[token] = nil
	}
}

func (f *Finder) reportProgress(n int) {
	f.mu.Lock()
	var cbs []func(int)
	cbs = append(cbs, f.progress...)
	f.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(n)
		}
	}
}

func (f *Finder) children(a addr.Address) ([]addr.Address, error) {
	typ := f.Heap.GetObjectType(a)
	if typ == nil {
		return nil, nil
	}
	var out []addr.Address
	err := f.Heap.EnumerateObjectReferences(a, typ, f.Careful, f.ConsiderDependentHandles, func(o heap.Object) bool {
		out = append(out, o.Address)
		return true
	})
	return out, err
}

// FindSinglePath returns the DFS pre-order-earliest path from src to
// target, or a nil Path if target is unreachable from src.
func (f *Finder) FindSinglePath(ctx context.Context, src, target addr.Address) (Path, error) {
	seen := newSeenSet()
	endpoints := newEndpointMap()
	var processed int
	var result Path
	_, err := f.dfs(ctx, src, target, true, seen, endpoints, &processed, nil, func(p Path) bool {
		result = append(Path(nil), p...)
		return false
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PathStats counts how the paths an EnumerateAllPaths call yielded
// were produced: Spliced counts paths completed by reusing a known
// endpoint suffix instead of re-expanding it, Fresh counts paths whose
// full suffix to target was walked. It has no effect on the search
// itself; it exists so callers (the CLI's `path --stats` flag) can
// report how much the known-endpoint shortcut saved.
type PathStats struct {
	Fresh   int
	Spliced int
}

// EnumerateAllPaths yields the paths from src to target found by a
// DFS over a shared seen-set: each address is expanded at most once,
// so a path that could only be reached through an already-expanded
// address is not yielded. With unique == false, later paths may
// splice onto the suffix of an earlier one via the known-endpoint
// shortcut; with unique == true, no intermediate address (anything
// other than src and target) appears in two yielded paths, and the
// returned PathStats.Spliced is always 0.
func (f *Finder) EnumerateAllPaths(ctx context.Context, src, target addr.Address, unique bool, yield func(Path) bool) (*PathStats, error) {
	seen := newSeenSet()
	endpoints := newEndpointMap()
	var processed int
	var stats PathStats
	_, err := f.dfs(ctx, src, target, unique, seen, endpoints, &processed, &stats, yield)
	return &stats, err
}

// EnumerateGCRoots searches from every GC root to target, sharing one
// seen-set and known-endpoint map across all of them, in root
// enumeration order. When AllowParallelSearch is set and
// MaximumTasksAllowed > 1, roots are searched by a bounded worker
// pool instead of sequentially; path ordering is then undefined.
func (f *Finder) EnumerateGCRoots(ctx context.Context, target addr.Address, unique bool, yield func(Path) bool) error {
	var roots []addr.Address
	err := f.Heap.EnumerateRoots(func(r heap.Root) bool {
		roots = append(roots, r.Object)
		return true
	})
	if err != nil {
		return err
	}

	seen := newSeenSet()
	endpoints := newEndpointMap()
	var processed int

	f.mu.Lock()
	maxTasks := f.MaximumTasksAllowed
	parallel := f.AllowParallelSearch && maxTasks > 1
	f.mu.Unlock()

	if parallel {
		return f.parallelSearch(ctx, roots, target, unique, seen, endpoints, &processed, maxTasks, yield)
	}

	for _, r := range roots {
		if ctx.Err() != nil {
			return heap.ErrCancelled
		}
		stop, err := f.dfs(ctx, r, target, unique, seen, endpoints, &processed, nil, yield)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// parallelSearch runs one dfs per root under a semaphore-bounded pool
// of at most maxTasks concurrent tasks: launch up to maxTasks, then
// wait-any and replace, expressed with a buffered channel as the
// semaphore and a sync.WaitGroup to drain the rest once every root
// has been launched.
func (f *Finder) parallelSearch(ctx context.Context, roots []addr.Address, target addr.Address, unique bool, seen *seenSet, endpoints *endpointMap, processed *int, maxTasks int, yield func(Path) bool) error {
	sem := make(chan struct{}, maxTasks)
	var wg sync.WaitGroup

	var mu sync.Mutex
	stopped := false
	var firstErr error

	safeYield := func(p Path) bool {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return false
		}
		if !yield(p) {
			stopped = true
			return false
		}
		return true
	}

	for _, r := range roots {
		mu.Lock()
		halt := stopped
		mu.Unlock()
		if halt || ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(root addr.Address) {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := f.dfs(ctx, root, target, unique, seen, endpoints, processed, nil, safeYield)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	return firstErr
}

// frame is one level of the explicit DFS stack: the object it
// represents and the children still to be explored from it.
type frame struct {
	children []addr.Address
	idx      int
}

// dfs performs the sequential explicit-stack search starting from
// start. It reports whether the caller's yield
// asked to stop (stop == true short-circuits any further roots in
// EnumerateGCRoots).
func (f *Finder) dfs(ctx context.Context, start, target addr.Address, unique bool, seen *seenSet, endpoints *endpointMap, processed *int, stats *PathStats, yield func(Path) bool) (stop bool, err error) {
	if ctx.Err() != nil {
		return true, heap.ErrCancelled
	}
	if !seen.add(start) {
		return false, nil
	}
	f.bump(processed)

	if start == target {
		if stats != nil {
			stats.Fresh++
		}
		return !yield(Path{start}), nil
	}
	if !unique {
		if suffix, ok := endpoints.lookup(start); ok {
			full := append(Path{start}, suffix[1:]...)
			if stats != nil {
				stats.Spliced++
			}
			return !yield(full), nil
		}
	}

	firstChildren, err := f.children(start)
	if err != nil {
		return false, err
	}

	path := Path{start}
	stack := []*frame{{children: firstChildren}}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return true, heap.ErrCancelled
		}
		top := stack[len(stack)-1]
		if top.idx >= len(top.children) {
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		child := top.children[top.idx]
		top.idx++

		if child.IsZero() {
			continue
		}

		if child == target {
			full := appendPath(path, target)
			if !unique {
				endpoints.recordPath(full)
			}
			if stats != nil {
				stats.Fresh++
			}
			if !yield(full) {
				return true, nil
			}
			continue
		}

		if !unique {
			if suffix, ok := endpoints.lookup(child); ok {
				full := append(appendPath(path, child), suffix[1:]...)
				endpoints.recordPath(full)
				if stats != nil {
					stats.Spliced++
				}
				if !yield(full) {
					return true, nil
				}
				continue
			}
		}

		if !seen.add(child) {
			continue
		}
		f.bump(processed)

		grandChildren, err := f.children(child)
		if err != nil {
			return false, err
		}
		path = append(path, child)
		stack = append(stack, &frame{children: grandChildren})
	}
	return false, nil
}

func (f *Finder) bump(processed *int) {
	f.mu.Lock()
	*processed++
	n := *processed
	f.mu.Unlock()
	f.reportProgress(n)
}

func appendPath(prefix Path, last addr.Address) Path {
	out := make(Path, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = last
	return out
}

// seenSet is a concurrency-safe set of visited addresses, shared
// across every root search (sequential or parallel) so an address is
// expanded at most once per top-level call.
type seenSet struct {
	mu   sync.Mutex
	data map[addr.Address]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{data: make(map[addr.Address]struct{})}
}

// add reports whether a was newly added (false means it was already
// present).
func (s *seenSet) add(a addr.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[a]; ok {
		return false
	}
	s.data[a] = struct{}{}
	return true
}

// endpointMap records, for every address seen so far on a path that
// reached the target, the suffix of that path from the address to the
// target (first-occurrence wins). Guarded by a single lock: splice
// lookups are cheap relative to the graph walk, so
// contention is not a concern worth a finer-grained scheme.
type endpointMap struct {
	mu   sync.Mutex
	data map[addr.Address]Path
}

func newEndpointMap() *endpointMap {
	return &endpointMap{data: make(map[addr.Address]Path)}
}

func (m *endpointMap) lookup(a addr.Address) (Path, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[a]
	return p, ok
}

func (m *endpointMap) recordPath(p Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range p {
		if _, ok := m.data[a]; !ok {
			m.data[a] = append(Path(nil), p[i:]...)
		}
	}
}
