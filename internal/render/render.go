// Package render formats stream bytes for a terminal: offset, hex, and
// text columns, plus copy-out of a selection.
package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"hexwin/internal/cursor"
	"hexwin/internal/source"
)

// Char is the display form of one byte. Control bytes show as '.';
// other bytes decode as Windows-1252, falling back to code page 850 for
// the few that 1252 leaves undefined.
func Char(b byte) rune {
	if b < 0x20 || b == 0x7F {
		return '.'
	}
	if r := charmap.Windows1252.DecodeByte(b); r != utf8.RuneError && !isC1(r) {
		return r
	}
	return charmap.CodePage850.DecodeByte(b)
}

func isC1(r rune) bool {
	return r >= 0x80 && r <= 0x9F
}

// Text decodes b for display.
func Text(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(Char(c))
	}
	return sb.String()
}

// Hex formats b as space separated upper-case pairs.
func Hex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// Dump writes rows lines starting at firstLine. One read covers the whole
// screen; the view is not kept after Dump returns.
func Dump(w io.Writer, src source.ByteSource, firstLine uint64, rows uint32) error {
	pos := firstLine * cursor.RowWidth
	if pos >= src.Len() {
		return nil
	}
	bw := bufio.NewWriter(w)
	err := source.Borrow(src, pos, rows*cursor.RowWidth, func(v source.View) error {
		for off := 0; off < len(v); off += cursor.RowWidth {
			end := off + cursor.RowWidth
			if end > len(v) {
				end = len(v)
			}
			row := v[off:end]
			fmt.Fprintf(bw, "0x%016X  %-47s  %s\n", pos+uint64(off), Hex(row), Text(row))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func selectionBytes(src source.ByteSource, sel cursor.Selection) ([]byte, error) {
	n := sel.Len()
	if n == 0 {
		return nil, nil
	}
	if n > math.MaxUint32 {
		return nil, fmt.Errorf("selection of %d bytes is too large to copy", n)
	}
	return source.Snapshot(src, sel.Start, uint32(n))
}

// CopyText returns the selected bytes as display text.
func CopyText(src source.ByteSource, sel cursor.Selection) (string, error) {
	b, err := selectionBytes(src, sel)
	if err != nil {
		return "", err
	}
	return Text(b), nil
}

// CopyHex returns the selected bytes as hex pairs.
func CopyHex(src source.ByteSource, sel cursor.Selection) (string, error) {
	b, err := selectionBytes(src, sel)
	if err != nil {
		return "", err
	}
	return Hex(b), nil
}

// Copy copies the model's selection in the form of its current view:
// text in text mode, hex otherwise. ok is false without a selection.
func Copy(m *cursor.Model) (s string, ok bool, err error) {
	sel, ok := m.Selection()
	if !ok {
		return "", false, nil
	}
	if m.Submode() == cursor.Text {
		s, err = CopyText(m.Source(), sel)
	} else {
		s, err = CopyHex(m.Source(), sel)
	}
	return s, true, err
}
