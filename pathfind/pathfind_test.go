package pathfind_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/heapwalk/heapwalk/addr"
	"github.com/heapwalk/heapwalk/heap"
	"github.com/heapwalk/heapwalk/pathfind"
	"github.com/heapwalk/heapwalk/providers/fixture"
)

const (
	mtFree heap.MethodTable = 1
	mtObj  heap.MethodTable = 2
	mtExc  heap.MethodTable = 3
	mtStr  heap.MethodTable = 4
	mtA    heap.MethodTable = 100
)

func mandatoryTypes(reg *fixture.TypeRegistry) {
	reg.Register(mtFree, &heap.Type{Name: "Free", BaseSize: 24})
	reg.Register(mtObj, &heap.Type{Name: "Object", BaseSize: 24})
	reg.Register(mtExc, &heap.Type{Name: "Exception", BaseSize: 24})
	reg.Register(mtStr, &heap.Type{Name: "string", BaseSize: 22, ComponentSize: 2})
}

func pathsEqual(got []pathfind.Path, want [][]addr.Address) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			return false
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				return false
			}
		}
	}
	return true
}

// TestEnumerateGCRootsSplicesKnownEndpoint checks the known-endpoint
// splice: a root R1 reaches the target through
// X; a second root R2 that also reaches X gets its path spliced
// without re-searching from X, when unique is false, and gets nothing
// when unique is true (X is already marked seen).
func TestEnumerateGCRootsSplicesKnownEndpoint(t *testing.T) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	mandatoryTypes(reg)

	plain := &heap.Type{
		Name:             "Plain",
		BaseSize:         24,
		ContainsPointers: true,
		GCDesc:           fixture.OffsetListDesc{Offsets: []int64{8}},
	}
	reg.Register(mtA, plain)

	const (
		r1     addr.Address = 0x1000
		r2     addr.Address = 0x1100
		x      addr.Address = 0x2000
		target addr.Address = 0x3000
	)
	mem.WritePtr(r1, uint64(mtA))
	mem.WritePtr(r1.Add(8), uint64(x))
	mem.WritePtr(x, uint64(mtA))
	mem.WritePtr(x.Add(8), uint64(target))
	mem.WritePtr(r2, uint64(mtA))
	mem.WritePtr(r2.Add(8), uint64(x))

	seg := &heap.Segment{Start: 0x1000, End: 0x4000, CommittedEnd: 0x4000, FirstObject: 0x1000, Length: 0x3000}
	builder := &fixture.Builder{
		CanWalk: true, StringMT: mtStr, ObjectMT: mtObj, FreeMT: mtFree, ExceptionMT: mtExc,
		Segments: []*heap.Segment{seg},
	}
	runtime := &fixture.Runtime{Handles: []heap.Handle{
		{Kind: heap.HandleStrong, Object: r1},
		{Kind: heap.HandleStrong, Object: r2},
	}}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	hp, err := heap.Core(builder, helpers, runtime, 8, nil)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}

	finder := pathfind.NewFinder(hp)
	var spliced []pathfind.Path
	if err := finder.EnumerateGCRoots(context.Background(), target, false, func(p pathfind.Path) bool {
		spliced = append(spliced, p)
		return true
	}); err != nil {
		t.Fatalf("EnumerateGCRoots: %v", err)
	}
	want := [][]addr.Address{{r1, x, target}, {r2, x, target}}
	if !pathsEqual(spliced, want) {
		t.Errorf("non-unique: got %v, want %v", spliced, want)
	}

	finder2 := pathfind.NewFinder(hp)
	var unique []pathfind.Path
	if err := finder2.EnumerateGCRoots(context.Background(), target, true, func(p pathfind.Path) bool {
		unique = append(unique, p)
		return true
	}); err != nil {
		t.Fatalf("EnumerateGCRoots: %v", err)
	}
	wantUnique := [][]addr.Address{{r1, x, target}}
	if !pathsEqual(unique, wantUnique) {
		t.Errorf("unique: got %v, want %v (R2's path should be suppressed, X already seen)", unique, wantUnique)
	}
}

// TestFindSinglePathCycleUnreachable checks cycle handling:
// A -> B -> A, target C unreachable; no path is yielded, the progress
// callback still fires, and the search terminates rather than looping
// forever.
func TestFindSinglePathCycleUnreachable(t *testing.T) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	mandatoryTypes(reg)

	plain := &heap.Type{
		Name:             "Plain",
		BaseSize:         24,
		ContainsPointers: true,
		GCDesc:           fixture.OffsetListDesc{Offsets: []int64{8}},
	}
	reg.Register(mtA, plain)

	const (
		a addr.Address = 0x5000
		b addr.Address = 0x5100
		c addr.Address = 0x6000
	)
	mem.WritePtr(a, uint64(mtA))
	mem.WritePtr(a.Add(8), uint64(b))
	mem.WritePtr(b, uint64(mtA))
	mem.WritePtr(b.Add(8), uint64(a))

	seg := &heap.Segment{Start: 0x5000, End: 0x7000, CommittedEnd: 0x7000, FirstObject: 0x5000, Length: 0x2000}
	builder := &fixture.Builder{
		CanWalk: true, StringMT: mtStr, ObjectMT: mtObj, FreeMT: mtFree, ExceptionMT: mtExc,
		Segments: []*heap.Segment{seg},
	}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	hp, err := heap.Core(builder, helpers, &fixture.Runtime{}, 8, nil)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}

	finder := pathfind.NewFinder(hp)
	progressCalls := 0
	finder.RegisterProgressCallback(func(int) { progressCalls++ })

	path, err := finder.FindSinglePath(context.Background(), a, c)
	if err != nil {
		t.Fatalf("FindSinglePath: %v", err)
	}
	if path != nil {
		t.Errorf("got path %v, want none (target unreachable)", path)
	}
	if progressCalls == 0 {
		t.Errorf("expected the progress callback to fire at least once")
	}
}

// TestFindSinglePathDirect covers the simplest case: a source object
// whose only reference is the target.
func TestFindSinglePathDirect(t *testing.T) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	mandatoryTypes(reg)

	plain := &heap.Type{
		Name:             "Plain",
		BaseSize:         24,
		ContainsPointers: true,
		GCDesc:           fixture.OffsetListDesc{Offsets: []int64{8}},
	}
	reg.Register(mtA, plain)

	const (
		src    addr.Address = 0x1000
		target addr.Address = 0x2000
	)
	mem.WritePtr(src, uint64(mtA))
	mem.WritePtr(src.Add(8), uint64(target))

	seg := &heap.Segment{Start: 0x1000, End: 0x3000, CommittedEnd: 0x3000, FirstObject: 0x1000, Length: 0x2000}
	builder := &fixture.Builder{
		CanWalk: true, StringMT: mtStr, ObjectMT: mtObj, FreeMT: mtFree, ExceptionMT: mtExc,
		Segments: []*heap.Segment{seg},
	}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	hp, err := heap.Core(builder, helpers, &fixture.Runtime{}, 8, nil)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}

	finder := pathfind.NewFinder(hp)
	path, err := finder.FindSinglePath(context.Background(), src, target)
	if err != nil {
		t.Fatalf("FindSinglePath: %v", err)
	}
	want := pathfind.Path{src, target}
	if len(path) != len(want) || path[0] != want[0] || path[1] != want[1] {
		t.Errorf("got %v, want %v", path, want)
	}
}

// TestEnumerateGCRootsParallel runs the bounded-worker-pool search
// over several roots that each reach the target directly. Path
// ordering is undefined in parallel mode, so the assertion is on the
// set of paths, not their order.
func TestEnumerateGCRootsParallel(t *testing.T) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	mandatoryTypes(reg)

	plain := &heap.Type{
		Name:             "Plain",
		BaseSize:         24,
		ContainsPointers: true,
		GCDesc:           fixture.OffsetListDesc{Offsets: []int64{8}},
	}
	reg.Register(mtA, plain)

	roots := []addr.Address{0x1000, 0x1018, 0x1030}
	const target addr.Address = 0x2000
	var handles []heap.Handle
	for _, r := range roots {
		mem.WritePtr(r, uint64(mtA))
		mem.WritePtr(r.Add(8), uint64(target))
		handles = append(handles, heap.Handle{Kind: heap.HandleStrong, Object: r})
	}
	mem.WritePtr(target, uint64(mtA))

	seg := &heap.Segment{Start: 0x1000, End: 0x3000, CommittedEnd: 0x3000, FirstObject: 0x1000, Length: 0x2000}
	builder := &fixture.Builder{
		CanWalk: true, StringMT: mtStr, ObjectMT: mtObj, FreeMT: mtFree, ExceptionMT: mtExc,
		Segments: []*heap.Segment{seg},
	}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	hp, err := heap.Core(builder, helpers, &fixture.Runtime{Handles: handles}, 8, nil)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}

	finder := pathfind.NewFinder(hp)
	finder.AllowParallelSearch = true
	if err := finder.SetMaximumTasksAllowed(3); err != nil {
		t.Fatalf("SetMaximumTasksAllowed: %v", err)
	}

	var mu sync.Mutex
	found := make(map[addr.Address]bool)
	if err := finder.EnumerateGCRoots(context.Background(), target, true, func(p pathfind.Path) bool {
		mu.Lock()
		defer mu.Unlock()
		if len(p) != 2 || p[1] != target {
			t.Errorf("unexpected path %v", p)
		} else {
			found[p[0]] = true
		}
		return true
	}); err != nil {
		t.Fatalf("EnumerateGCRoots: %v", err)
	}
	for _, r := range roots {
		if !found[r] {
			t.Errorf("no path yielded for root %s (got %v)", r, found)
		}
	}
}

// TestEnumerateGCRootsCancelled checks that a signalled token
// surfaces as the canonical cancelled error.
func TestEnumerateGCRootsCancelled(t *testing.T) {
	mem := fixture.NewMemory(8)
	reg := fixture.NewTypeRegistry()
	mandatoryTypes(reg)
	reg.Register(mtA, &heap.Type{Name: "Plain", BaseSize: 24})

	const root addr.Address = 0x1000
	mem.WritePtr(root, uint64(mtA))

	seg := &heap.Segment{Start: 0x1000, End: 0x2000, CommittedEnd: 0x2000, FirstObject: 0x1000, Length: 0x1000}
	builder := &fixture.Builder{
		CanWalk: true, StringMT: mtStr, ObjectMT: mtObj, FreeMT: mtFree, ExceptionMT: mtExc,
		Segments: []*heap.Segment{seg},
	}
	helpers := &fixture.Helpers{Factory: reg, Mem: mem}
	hp, err := heap.Core(builder, helpers, &fixture.Runtime{Handles: []heap.Handle{{Kind: heap.HandleStrong, Object: root}}}, 8, nil)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finder := pathfind.NewFinder(hp)
	err = finder.EnumerateGCRoots(ctx, 0x9999, false, func(p pathfind.Path) bool {
		t.Errorf("unexpected path %v after cancellation", p)
		return true
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}

	if _, err := finder.FindSinglePath(ctx, root, 0x9999); !errors.Is(err, context.Canceled) {
		t.Errorf("FindSinglePath: got %v, want context.Canceled", err)
	}
}

// TestSetMaximumTasksAllowedValidatesArgument exercises the corrected
// setter behavior flagged as an open question in the original design:
// it validates the incoming value, not whatever was already stored.
func TestSetMaximumTasksAllowedValidatesArgument(t *testing.T) {
	f := &pathfind.Finder{MaximumTasksAllowed: 4}
	if err := f.SetMaximumTasksAllowed(-1); err == nil {
		t.Errorf("expected an error for a negative maxTasks")
	}
	if f.MaximumTasksAllowed != 4 {
		t.Errorf("a rejected value must not overwrite the existing setting, got %d", f.MaximumTasksAllowed)
	}
	if err := f.SetMaximumTasksAllowed(8); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if f.MaximumTasksAllowed != 8 {
		t.Errorf("got %d, want 8", f.MaximumTasksAllowed)
	}
}
