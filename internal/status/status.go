// Package status formats the position and size indicators shown next to
// the byte grid.
package status

import (
	"fmt"

	"hexwin/internal/cursor"
)

const (
	kB = 1024
	mB = 1024 * kB
	gB = 1024 * mB
)

// FileSize describes a stream length in bytes and the largest fitting unit.
func FileSize(n uint64) string {
	switch {
	case n < kB:
		return fmt.Sprintf("File size: %d bytes", n)
	case n < mB:
		return fmt.Sprintf("File size: %d bytes (%.2f kB)", n, float64(n)/kB)
	case n < gB:
		return fmt.Sprintf("File size: %d bytes (%.2f MB)", n, float64(n)/mB)
	}
	return fmt.Sprintf("File size: %d bytes (%.2f GB)", n, float64(n)/gB)
}

// Line reports the cursor position in decimal and hex, how far into the
// stream it is, and whether there are unflushed edits.
func Line(m *cursor.Model) string {
	src := m.Source()
	if src == nil {
		return ""
	}
	pos := m.CursorPosition()
	s := fmt.Sprintf("%d  0x%x  %.2f%%", pos, pos, 100*float64(pos+1)/float64(src.Len()))
	if src.Modified() {
		s += "  Modified."
	}
	return s
}
