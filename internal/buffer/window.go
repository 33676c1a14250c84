package buffer

// DefaultWindowSize is the largest window a source keeps in memory unless a
// single request needs more.
const DefaultWindowSize = 512 * 1024

// Window holds one contiguous slice of a backing store and its dirty state.
// Data is owned by the window; views returned to callers alias it.
type Window struct {
	Start uint64
	Data  []byte
	Dirty bool
}

// Len is the number of bytes currently loaded.
func (w *Window) Len() uint64 {
	return uint64(len(w.Data))
}

// End is the first offset past the loaded bytes.
func (w *Window) End() uint64 {
	return w.Start + w.Len()
}

// Contains reports whether [pos, pos+n) lies inside the loaded bytes.
func (w *Window) Contains(pos, n uint64) bool {
	return pos >= w.Start && pos+n <= w.End()
}

// Slice returns the n bytes at absolute offset pos. The caller must have
// checked Contains.
func (w *Window) Slice(pos, n uint64) []byte {
	off := pos - w.Start
	return w.Data[off : off+n : off+n]
}

// Reset replaces the loaded bytes. The window becomes clean.
func (w *Window) Reset(start uint64, data []byte) {
	w.Start = start
	w.Data = data
	w.Dirty = false
}
