package buffer

import "testing"

func TestWindowContains(t *testing.T) {
	w := Window{Start: 100, Data: make([]byte, 50)}

	tests := []struct {
		pos, n uint64
		want   bool
	}{
		{100, 0, true},
		{100, 50, true},
		{120, 30, true},
		{120, 31, false},
		{99, 1, false},
		{150, 0, true},
		{150, 1, false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.pos, tt.n); got != tt.want {
			t.Errorf("Contains(%d, %d) = %v, want %v", tt.pos, tt.n, got, tt.want)
		}
	}
}

func TestWindowSliceAliases(t *testing.T) {
	w := Window{Start: 10, Data: make([]byte, 8)}
	v := w.Slice(12, 3)
	v[0] = 0xAB
	if w.Data[2] != 0xAB {
		t.Fatalf("slice does not alias window data")
	}
	if cap(v) != 3 {
		t.Fatalf("slice capacity = %d, want 3", cap(v))
	}
}

func TestWindowResetClearsDirty(t *testing.T) {
	w := Window{Data: []byte{1}, Dirty: true}
	w.Reset(4096, []byte{2, 3})
	if w.Dirty {
		t.Error("Reset should clear Dirty")
	}
	if w.Start != 4096 || w.End() != 4098 {
		t.Errorf("unexpected bounds [%d, %d)", w.Start, w.End())
	}
}
