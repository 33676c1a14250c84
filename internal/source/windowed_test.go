package source

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// memStore is an in-memory store with an optional sector size.
type memStore struct {
	data     []byte
	sector   uint64
	reads    []int64
	writes   []int64
	geomErr  error
	writeErr error
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Geometry() (Geometry, error) {
	if m.geomErr != nil {
		return Geometry{}, m.geomErr
	}
	sector := m.sector
	if sector == 0 {
		sector = 1
	}
	size := uint64(len(m.data))
	return Geometry{Size: size - size%sector, SectorSize: sector}, nil
}

func (m *memStore) ReadAt(p []byte, off int64) (int, error) {
	m.reads = append(m.reads, off)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStore) WriteAt(p []byte, off int64) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, off)
	return copy(m.data[off:], p), nil
}

func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestPlaceWindow(t *testing.T) {
	tests := []struct {
		name                     string
		pos, n, max, total, sect uint64
		wantStart, wantSize      uint64
	}{
		{"at zero", 0, 16, 1024, 4096, 1, 0, 1024},
		{"centered", 2000, 16, 1024, 4096, 1, 1488, 1024},
		{"clipped at end", 4000, 16, 1024, 4096, 1, 3488, 608},
		{"small total", 10, 16, 1024, 100, 1, 0, 100},
		{"request longer than half", 600, 900, 1024, 4096, 1, 476, 1024},
		{"request longer than window", 600, 2000, 1024, 4096, 1, 600, 2000},
		{"sector rounds start down", 1000, 64, 1024, 8192, 512, 0, 1536},
		{"sector centered", 3000, 64, 1024, 8192, 512, 2048, 1024},
		{"sector grows size", 600, 2000, 1024, 8192, 512, 512, 2560},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, size := placeWindow(tt.pos, tt.n, tt.max, tt.total, tt.sect)
			if start != tt.wantStart || size != tt.wantSize {
				t.Errorf("placeWindow = (%d, %d), want (%d, %d)", start, size, tt.wantStart, tt.wantSize)
			}
			if start > tt.pos || tt.pos+tt.n > start+size && start+size < tt.total {
				t.Errorf("window [%d, %d) does not cover request [%d, %d)", start, start+size, tt.pos, tt.pos+tt.n)
			}
		})
	}
}

func TestReadReturnsClippedLength(t *testing.T) {
	st := &memStore{data: patterned(5000)}
	w, err := newWindowed(st, true, 1024)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		pos := uint64(rng.Intn(5000))
		n := uint32(rng.Intn(3000))
		v, err := w.Read(pos, n)
		if err != nil {
			t.Fatalf("Read(%d, %d) failed: %v", pos, n, err)
		}
		want := uint64(n)
		if rest := 5000 - pos; rest < want {
			want = rest
		}
		if uint64(len(v)) != want {
			t.Fatalf("Read(%d, %d) returned %d bytes, want %d", pos, n, len(v), want)
		}
		if !bytes.Equal(v, st.data[pos:pos+want]) {
			t.Fatalf("Read(%d, %d) returned wrong bytes", pos, n)
		}
		start, length := w.Window()
		if start > pos || pos+uint64(len(v)) > start+length {
			t.Fatalf("window [%d, %d) does not cover [%d, %d)", start, start+length, pos, pos+uint64(len(v)))
		}
	}
}

func TestReadOutOfRange(t *testing.T) {
	w, err := newWindowed(&memStore{data: patterned(100)}, true, 64)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}
	for _, pos := range []uint64{100, 101, 1 << 40} {
		if _, err := w.Read(pos, 1); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Read(%d) err = %v, want ErrOutOfRange", pos, err)
		}
	}
}

func TestReadMemoizesRepeatedCall(t *testing.T) {
	st := &memStore{data: patterned(4096)}
	w, err := newWindowed(st, true, 1024)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}
	a, _ := w.Read(3000, 32)
	reads := len(st.reads)
	b, _ := w.Read(3000, 32)
	if len(st.reads) != reads {
		t.Errorf("repeated read hit the store")
	}
	if &a[0] != &b[0] {
		t.Errorf("repeated read returned a different view")
	}
}

func TestFlushWritesWindowBack(t *testing.T) {
	st := &memStore{data: patterned(4096)}
	w, err := newWindowed(st, false, 1024)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}
	v, err := w.Read(3000, 2)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	copy(v, []byte{0xDE, 0xAD})
	w.SetModified()
	if st.data[3000] == 0xDE {
		t.Fatal("write reached the store before flush")
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	start, _ := w.Window()
	if len(st.writes) != 1 || st.writes[0] != int64(start) {
		t.Errorf("writes = %v, want one at window start %d", st.writes, start)
	}
	if st.data[3000] != 0xDE || st.data[3001] != 0xAD {
		t.Errorf("store bytes = % X", st.data[3000:3002])
	}
	if w.Modified() {
		t.Error("Modified after successful flush")
	}
	if err := w.Flush(); err != nil || len(st.writes) != 1 {
		t.Errorf("clean flush wrote again: err=%v writes=%v", err, st.writes)
	}
}

func TestReloadFlushesFirst(t *testing.T) {
	st := &memStore{data: patterned(8192)}
	w, err := newWindowed(st, false, 1024)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}
	v, _ := w.Read(10, 1)
	v[0] = 0xFF
	w.SetModified()

	if _, err := w.Read(7000, 1); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.data[10] != 0xFF {
		t.Error("dirty window was not flushed before reload")
	}
	if w.Reloads() != 1 {
		t.Errorf("Reloads = %d, want 1", w.Reloads())
	}
}

func TestFailedFlushAbortsReload(t *testing.T) {
	st := &memStore{data: patterned(8192)}
	w, err := newWindowed(st, false, 1024)
	if err != nil {
		t.Fatalf("newWindowed failed: %v", err)
	}
	v, _ := w.Read(10, 1)
	v[0] = 0xFF
	w.SetModified()
	st.writeErr = errors.New("disk on fire")

	if _, err := w.Read(7000, 1); err == nil {
		t.Fatal("expected reload to fail")
	}
	if start, _ := w.Window(); start != 0 {
		t.Errorf("window moved to %d after failed flush", start)
	}
	if !w.Modified() {
		t.Error("failed flush cleared modified")
	}
	if err := w.Close(); err == nil {
		t.Error("Close should fail while the flush fails")
	}

	st.writeErr = nil
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if st.data[10] != 0xFF {
		t.Error("edit lost")
	}
	if _, err := w.Read(0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close err = %v, want ErrClosed", err)
	}
}

func TestReadOnlyFlushKeepsModified(t *testing.T) {
	path := writeTempFile(t, patterned(4096))
	src, err := OpenFile(path, false, Options{})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if !src.ReadOnly() {
		t.Fatal("source should be readonly")
	}

	v, _ := src.Read(0, 1)
	v[0] = 0xAA
	src.SetModified()

	if err := src.Flush(); !errors.Is(err, ErrReadOnlyViolation) {
		t.Fatalf("Flush err = %v, want ErrReadOnlyViolation", err)
	}
	if !src.Modified() {
		t.Error("window should remain modified")
	}
	if err := src.Close(); !errors.Is(err, ErrReadOnlyViolation) {
		t.Errorf("Close err = %v, want ErrReadOnlyViolation", err)
	}
	onDisk, _ := os.ReadFile(path)
	if onDisk[0] != 0 {
		t.Error("readonly source wrote to disk")
	}
}

func TestFileSingleReloadAcrossWindow(t *testing.T) {
	const size = 1 << 20
	path := writeTempFile(t, patterned(size))
	src, err := OpenFile(path, false, Options{})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer src.Close()

	if _, err := src.Read(100, 16); err != nil {
		t.Fatalf("Read near start failed: %v", err)
	}
	if src.Reloads() != 0 {
		t.Fatalf("Reloads = %d after reading inside the initial window", src.Reloads())
	}

	pos := uint64(900 * 1024)
	v, err := src.Read(pos, 16)
	if err != nil {
		t.Fatalf("Read near 900K failed: %v", err)
	}
	if src.Reloads() != 1 {
		t.Errorf("Reloads = %d, want 1", src.Reloads())
	}
	start, length := src.Window()
	if start != pos-256*1024 {
		t.Errorf("window start = %d, want %d", start, pos-256*1024)
	}
	if pos+uint64(len(v)) > start+length {
		t.Errorf("window [%d, %d) does not cover the request", start, start+length)
	}
}

func TestFileRoundTripThroughFlush(t *testing.T) {
	path := writeTempFile(t, make([]byte, 3000))
	src, err := OpenFile(path, true, Options{WindowSize: 512})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	payload := []byte("Petter")
	if n, err := Write(src, 2500, payload); err != nil || n != len(payload) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	again, err := OpenFile(path, false, Options{WindowSize: 512})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer again.Close()
	got, err := Snapshot(again, 2500, uint32(len(payload)))
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip = %q, want %q", got, payload)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)
	if _, err := OpenFile(path, false, Options{}); !errors.Is(err, ErrEmptySource) {
		t.Errorf("OpenFile err = %v, want ErrEmptySource", err)
	}
	if _, err := Open(path, false, Options{}); !errors.Is(err, ErrEmptySource) {
		t.Errorf("Open err = %v, want ErrEmptySource", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope"), false, Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenFile err = %v, want not exist", err)
	}
}

func TestOpenDirectory(t *testing.T) {
	if _, err := OpenFile(t.TempDir(), false, Options{}); err == nil {
		t.Error("expected error opening a directory")
	}
}

func TestFileLengthRefreshedOnReload(t *testing.T) {
	path := writeTempFile(t, patterned(2048))
	src, err := OpenFile(path, false, Options{WindowSize: 512})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer src.Close()

	if err := os.WriteFile(path, patterned(1024), 0644); err != nil {
		t.Fatal(err)
	}
	if src.Len() != 2048 {
		t.Errorf("Len before reload = %d, want cached 2048", src.Len())
	}
	if _, err := src.Read(1500, 16); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Read past shrunk file err = %v, want ErrOutOfRange", err)
	}
	if src.Len() != 1024 {
		t.Errorf("Len after reload = %d, want 1024", src.Len())
	}
}
