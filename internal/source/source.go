// Package source exposes large byte streams (files, raw devices, remote
// workspace objects, in-memory buffers) through a small sliding window.
//
// Read returns a View that aliases the window. Writing into the view is the
// only way to change bytes; the writer then calls SetModified and the bytes
// reach the backing store on Flush, on the next reload, or on Close.
// A view is valid until the next Read or Flush on the same source.
package source

import (
	"context"
	"fmt"

	"hexwin/internal/buffer"
	"hexwin/internal/databricks"
	"hexwin/internal/filecache"
)

// View aliases window memory. len(View) is the number of bytes the read
// actually covered.
type View []byte

// ByteSource is the capability shared by every stream variant.
type ByteSource interface {
	// Read returns min(n, Len()-pos) bytes at pos, reloading the window if
	// needed. It fails with ErrOutOfRange when pos >= Len().
	Read(pos uint64, n uint32) (View, error)
	Len() uint64
	// Flush writes a modified window back. It is a no-op when clean.
	Flush() error
	ReadOnly() bool
	SetModified()
	Modified() bool
	// Close flushes and releases the source. A failed flush keeps it open.
	Close() error
}

// Options tunes how sources are opened.
type Options struct {
	// WindowSize is the window length in bytes; 0 means buffer.DefaultWindowSize.
	WindowSize uint64

	// Device forces raw device handling for a path.
	Device bool

	// Workspace and Cache serve "ws:" targets.
	Workspace databricks.WorkspaceFilesAPI
	Cache     *filecache.DiskCache

	// Context bounds remote calls; nil means context.Background.
	Context context.Context
}

func (o Options) windowSize() uint64 {
	if o.WindowSize == 0 {
		return buffer.DefaultWindowSize
	}
	return o.WindowSize
}

func (o Options) context() context.Context {
	if o.Context == nil {
		return context.Background()
	}
	return o.Context
}

// Borrow reads [pos, pos+n) and hands the view to fn. The view must not be
// kept after fn returns.
func Borrow(src ByteSource, pos uint64, n uint32, fn func(View) error) error {
	v, err := src.Read(pos, n)
	if err != nil {
		return err
	}
	return fn(v)
}

// Snapshot copies up to n bytes at pos out of the window.
func Snapshot(src ByteSource, pos uint64, n uint32) ([]byte, error) {
	var out []byte
	err := Borrow(src, pos, n, func(v View) error {
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// maxChunk bounds a single read issued by Write.
const maxChunk = 64 * 1024

// Write copies p into the stream at pos through views and marks the source
// modified. Bytes past the end are not written; the count of written bytes
// is returned. Writing to a readonly source fails with ErrReadOnlyViolation.
func Write(src ByteSource, pos uint64, p []byte) (int, error) {
	if src.ReadOnly() {
		return 0, fmt.Errorf("write at %d: %w", pos, ErrReadOnlyViolation)
	}
	written := 0
	for written < len(p) {
		at := pos + uint64(written)
		if at >= src.Len() {
			break
		}
		n := len(p) - written
		if n > maxChunk {
			n = maxChunk
		}
		v, err := src.Read(at, uint32(n))
		if err != nil {
			return written, err
		}
		copy(v, p[written:written+len(v)])
		src.SetModified()
		written += len(v)
	}
	return written, nil
}
