package sizeof

import "testing"

func TestAlign(t *testing.T) {
	cases := []struct {
		size     int64
		ptrSize  PointerWidth
		large    bool
		expected int64
	}{
		{0, PointerWidth64, false, 0},
		{1, PointerWidth64, false, 8},
		{8, PointerWidth64, false, 8},
		{9, PointerWidth64, false, 16},
		{1, PointerWidth32, false, 4},
		{5, PointerWidth32, false, 8},
		// Large-object segments always align to 8, even on 32-bit.
		{1, PointerWidth32, true, 8},
		{9, PointerWidth32, true, 16},
	}
	for _, c := range cases {
		got := Align(c.size, c.ptrSize, c.large)
		if got != c.expected {
			t.Errorf("Align(%d, %d, %v) = %d, want %d", c.size, c.ptrSize, c.large, got, c.expected)
		}
	}
}

func TestMinObjectSize(t *testing.T) {
	if got := MinObjectSize(PointerWidth64); got != 24 {
		t.Errorf("MinObjectSize(64) = %d, want 24", got)
	}
	if got := MinObjectSize(PointerWidth32); got != 12 {
		t.Errorf("MinObjectSize(32) = %d, want 12", got)
	}
}

func TestObjectSizeFixed(t *testing.T) {
	// componentSize == 0: size is just baseSize, aligned and floored.
	got := ObjectSize(24, 0, 0, false, PointerWidth64, false)
	if got != 24 {
		t.Errorf("got %d, want 24", got)
	}
	// A tiny base size is bumped up to the minimum object size.
	got = ObjectSize(4, 0, 0, false, PointerWidth64, false)
	if got != MinObjectSize(PointerWidth64) {
		t.Errorf("got %d, want %d", got, MinObjectSize(PointerWidth64))
	}
}

func TestObjectSizeArray(t *testing.T) {
	// count=3, componentSize=2, baseSize=22 -> 3*2+22 = 28, aligned to 32.
	got := ObjectSize(22, 2, 3, false, PointerWidth64, false)
	if got != 32 {
		t.Errorf("got %d, want 32", got)
	}
}

func TestObjectSizeString(t *testing.T) {
	// String +1: count=3, componentSize=2, baseSize=22 -> (3+1)*2+22 = 30, aligned to 32.
	got := ObjectSize(22, 2, 3, true, PointerWidth64, false)
	if got != 32 {
		t.Errorf("got %d, want 32", got)
	}
}
