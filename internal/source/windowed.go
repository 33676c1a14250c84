package source

import (
	"errors"
	"fmt"
	"io"

	"hexwin/internal/buffer"
	"hexwin/internal/logging"
)

// Geometry describes a backing store. SectorSize is 1 for byte-addressable
// stores.
type Geometry struct {
	Size       uint64
	SectorSize uint64
}

// store is positioned storage behind a window. Implementations open
// whatever handle they need per call; a source never holds one across reads.
type store interface {
	Name() string
	Geometry() (Geometry, error)
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

type lastRead struct {
	ok   bool
	pos  uint64
	n    uint32
	view View
}

// windowed is the reload/flush engine shared by the file and device
// variants.
type windowed struct {
	store    store
	readonly bool
	maxLen   uint64
	geom     Geometry
	win      buffer.Window
	last     lastRead
	reloads  int
	closed   bool
}

func newWindowed(st store, readonly bool, maxLen uint64) (*windowed, error) {
	w := &windowed{store: st, readonly: readonly, maxLen: maxLen}
	geom, err := st.Geometry()
	if err != nil {
		return nil, err
	}
	w.setGeometry(geom)
	if w.geom.Size == 0 {
		return nil, fmt.Errorf("open %s: %w", st.Name(), ErrEmptySource)
	}
	if err := w.load(0, 0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *windowed) setGeometry(g Geometry) {
	if g.SectorSize == 0 {
		g.SectorSize = 1
	}
	w.geom = g
}

func (w *windowed) Read(pos uint64, n uint32) (View, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if w.last.ok && w.last.pos == pos && w.last.n == n && w.memoFits() {
		return w.last.view, nil
	}
	if pos >= w.geom.Size {
		return nil, fmt.Errorf("read %s at %d of %d: %w", w.store.Name(), pos, w.geom.Size, ErrOutOfRange)
	}
	actual := clip(pos, uint64(n), w.geom.Size)
	if !w.win.Contains(pos, actual) {
		if err := w.reload(pos, actual); err != nil {
			return nil, err
		}
		// The reload may have seen a shorter store.
		if pos >= w.geom.Size {
			return nil, fmt.Errorf("read %s at %d of %d: %w", w.store.Name(), pos, w.geom.Size, ErrOutOfRange)
		}
		actual = clip(pos, uint64(n), w.geom.Size)
	}
	v := View(w.win.Slice(pos, actual))
	w.last = lastRead{ok: true, pos: pos, n: n, view: v}
	return v, nil
}

// memoFits reports whether the memoized view still lies inside the store.
func (w *windowed) memoFits() bool {
	return w.last.pos < w.geom.Size && uint64(len(w.last.view)) <= w.geom.Size-w.last.pos
}

func clip(pos, n, size uint64) uint64 {
	if n > size-pos {
		return size - pos
	}
	return n
}

// reload flushes a dirty window, re-queries geometry, and loads a window
// covering [pos, pos+n). A failed flush leaves the old window in place.
func (w *windowed) reload(pos, n uint64) error {
	if err := w.Flush(); err != nil {
		return fmt.Errorf("reload %s at %d: %w", w.store.Name(), pos, err)
	}
	geom, err := w.store.Geometry()
	if err != nil {
		return err
	}
	w.setGeometry(geom)
	if pos >= w.geom.Size {
		return nil
	}
	if err := w.load(pos, clip(pos, n, w.geom.Size)); err != nil {
		return err
	}
	w.reloads++
	return nil
}

func (w *windowed) load(pos, n uint64) error {
	start, size := placeWindow(pos, n, w.maxLen, w.geom.Size, w.geom.SectorSize)
	if start%w.geom.SectorSize != 0 {
		return fmt.Errorf("load %s at %d (sector %d): %w", w.store.Name(), start, w.geom.SectorSize, ErrAlignment)
	}
	data := make([]byte, size)
	read, err := w.store.ReadAt(data, int64(start))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(read) == size) {
		return err
	}
	w.win.Reset(start, data)
	w.last = lastRead{}
	logging.Debugf("Loaded window of %s: start=%d length=%d", w.store.Name(), start, size)
	return nil
}

// placeWindow picks the window for a request of n bytes at pos: it starts
// maxLen/2 before pos, slides forward when the request would not fit, grows
// when the request is longer than maxLen, and respects sector alignment.
func placeWindow(pos, n, maxLen, total, sector uint64) (start, size uint64) {
	if pos > maxLen/2 {
		start = pos - maxLen/2
	}
	end := pos + n
	if end-start > maxLen {
		start = end - maxLen
	}
	if start > pos {
		start = pos
	}
	start -= start % sector

	size = maxLen
	if end-start > size {
		size = end - start
	}
	if rem := size % sector; rem != 0 {
		size += sector - rem
	}
	if start+size > total {
		size = total - start
	}
	return start, size
}

func (w *windowed) Len() uint64 {
	return w.geom.Size
}

func (w *windowed) Flush() error {
	if !w.win.Dirty {
		return nil
	}
	if w.readonly {
		return fmt.Errorf("flush %s: %w", w.store.Name(), ErrReadOnlyViolation)
	}
	if w.win.Start%w.geom.SectorSize != 0 {
		return fmt.Errorf("flush %s at %d (sector %d): %w", w.store.Name(), w.win.Start, w.geom.SectorSize, ErrAlignment)
	}
	if _, err := w.store.WriteAt(w.win.Data, int64(w.win.Start)); err != nil {
		return err
	}
	w.win.Dirty = false
	logging.Debugf("Flushed window of %s: start=%d length=%d", w.store.Name(), w.win.Start, w.win.Len())
	return nil
}

func (w *windowed) ReadOnly() bool {
	return w.readonly
}

func (w *windowed) SetModified() {
	w.win.Dirty = true
}

func (w *windowed) Modified() bool {
	return w.win.Dirty
}

func (w *windowed) Close() error {
	if w.closed {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true
	w.win.Reset(0, nil)
	w.last = lastRead{}
	return nil
}

// Window reports the loaded window bounds.
func (w *windowed) Window() (start, length uint64) {
	return w.win.Start, w.win.Len()
}

// Reloads counts window reloads since open; the initial load is not counted.
func (w *windowed) Reloads() int {
	return w.reloads
}

// WindowedFileSource serves a regular file (or a remote workspace object)
// through one in-memory window.
type WindowedFileSource struct {
	*windowed
}

var _ ByteSource = (*WindowedFileSource)(nil)

// OpenFile opens a regular file. Without wantWrite the source is readonly.
func OpenFile(path string, wantWrite bool, opts Options) (*WindowedFileSource, error) {
	st := &fileStore{path: path}
	if wantWrite {
		if err := st.checkWritable(); err != nil {
			return nil, err
		}
	}
	w, err := newWindowed(st, !wantWrite, opts.windowSize())
	if err != nil {
		return nil, err
	}
	return &WindowedFileSource{w}, nil
}
