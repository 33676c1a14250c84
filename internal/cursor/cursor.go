// Package cursor implements navigation, scrolling, selection, and byte or
// nibble editing over a source.ByteSource.
//
// The model addresses the stream as rows of RowWidth bytes. The cursor is a
// (line, column) pair that always names a byte inside the stream; the
// viewport is the range of lines the display shows.
package cursor

import (
	"errors"
	"fmt"

	"hexwin/internal/source"
)

// RowWidth is the number of bytes per line.
const RowWidth = 16

// Submode selects what typed input edits.
type Submode int

const (
	Text Submode = iota
	HexHigh
	HexLow
)

func (s Submode) String() string {
	switch s {
	case HexHigh:
		return "hex-high"
	case HexLow:
		return "hex-low"
	}
	return "text"
}

// Selection is the half-open byte range [Start, End).
type Selection struct {
	Start, End uint64
}

func (s Selection) Len() uint64 {
	return s.End - s.Start
}

type Model struct {
	src source.ByteSource

	line   uint64
	column uint32
	sel    struct {
		on         bool
		start, end uint64
	}
	submode Submode

	firstLine      uint64
	linesPerScreen uint32

	// Encoder converts InputText; nil means UTF8.
	Encoder Encoder

	// OnChange receives the viewport line after every navigation or edit.
	OnChange func(viewportLine uint64)
}

// New returns an unbound model showing linesPerScreen lines.
func New(linesPerScreen uint32) *Model {
	m := &Model{}
	m.SetLinesPerScreen(linesPerScreen)
	return m
}

// Bind attaches the model to src. The selection is cleared and a cursor
// past the new end moves to the last byte.
func (m *Model) Bind(src source.ByteSource) error {
	if src.Len() == 0 {
		return fmt.Errorf("bind: %w", source.ErrEmptySource)
	}
	m.src = src
	m.sel.on = false
	if m.CursorPosition() >= src.Len() {
		m.setPosition(src.Len() - 1)
		m.recenterIfHidden()
	}
	if m.firstLine > m.Rows() {
		m.firstLine = m.Rows()
	}
	m.changed()
	return nil
}

func (m *Model) Source() source.ByteSource {
	return m.src
}

func (m *Model) Line() uint64 {
	return m.line
}

func (m *Model) Column() uint32 {
	return m.column
}

func (m *Model) Submode() Submode {
	return m.submode
}

func (m *Model) ViewportLine() uint64 {
	return m.firstLine
}

func (m *Model) LinesPerScreen() uint32 {
	return m.linesPerScreen
}

// SetLinesPerScreen is called by the display when its height changes.
func (m *Model) SetLinesPerScreen(n uint32) {
	if n == 0 {
		n = 1
	}
	m.linesPerScreen = n
}

// Rows is the number of lines needed to show the whole stream.
func (m *Model) Rows() uint64 {
	n := m.length()
	return (n + RowWidth - 1) / RowWidth
}

func (m *Model) length() uint64 {
	if m.src == nil {
		return 0
	}
	return m.src.Len()
}

func (m *Model) lastLine() uint64 {
	n := m.length()
	if n == 0 {
		return 0
	}
	return (n - 1) / RowWidth
}

func (m *Model) CursorPosition() uint64 {
	return m.line*RowWidth + uint64(m.column)
}

func (m *Model) setPosition(pos uint64) {
	m.line = pos / RowWidth
	m.column = uint32(pos % RowWidth)
}

// SetCursorPosition moves the cursor to pos, clamped to the last byte.
// The viewport is kept when the cursor stays visible and recentered
// otherwise.
func (m *Model) SetCursorPosition(pos uint64) {
	if n := m.length(); n > 0 && pos >= n {
		pos = n - 1
	}
	m.setPosition(pos)
	m.recenterIfHidden()
	m.changed()
}

// Visible reports whether the cursor line is inside the viewport.
func (m *Model) Visible() bool {
	return m.line >= m.firstLine && m.line < m.firstLine+uint64(m.linesPerScreen)
}

func (m *Model) recenterIfHidden() {
	if !m.Visible() {
		m.recenter()
	}
}

func (m *Model) recenter() {
	half := uint64(m.linesPerScreen / 2)
	if m.line > half {
		m.firstLine = m.line - half
	} else {
		m.firstLine = 0
	}
}

// scrollToCursor moves the viewport the least needed to show the cursor.
func (m *Model) scrollToCursor() {
	lps := uint64(m.linesPerScreen)
	switch {
	case m.line >= m.firstLine+lps:
		m.firstLine = m.line - lps + 1
	case m.line < m.firstLine:
		m.firstLine = m.line
	}
}

func (m *Model) changed() {
	if m.OnChange != nil {
		m.OnChange(m.firstLine)
	}
}

func (m *Model) up() bool {
	if m.line == 0 {
		return false
	}
	m.line--
	m.scrollToCursor()
	return true
}

// down moves one line down. Landing on a short last row clamps the column
// to the last byte.
func (m *Model) down() bool {
	if m.line >= m.lastLine() {
		return false
	}
	m.line++
	if n := m.length(); m.CursorPosition() >= n {
		m.column = uint32((n - 1) % RowWidth)
	}
	m.scrollToCursor()
	return true
}

func (m *Model) left() bool {
	switch {
	case m.column > 0:
		m.column--
	case m.line > 0:
		m.line--
		m.column = RowWidth - 1
	default:
		return false
	}
	m.scrollToCursor()
	return true
}

func (m *Model) right() bool {
	if m.CursorPosition()+1 >= m.length() {
		return false
	}
	if m.column < RowWidth-1 {
		m.column++
	} else {
		m.column = 0
		m.line++
	}
	m.scrollToCursor()
	return true
}

func (m *Model) MoveUp() {
	m.up()
	m.changed()
}

func (m *Model) MoveDown() {
	m.down()
	m.changed()
}

func (m *Model) MoveLeft() {
	m.left()
	m.changed()
}

// MoveRight is a no-op on the last byte.
func (m *Model) MoveRight() {
	m.right()
	m.changed()
}

// PageUp jumps a screen up. A visible cursor keeps its place on screen; a
// hidden one is recentered. Near the start it falls back to single moves.
func (m *Model) PageUp() {
	lps := uint64(m.linesPerScreen)
	if m.line >= lps {
		visible := m.Visible()
		m.line -= lps
		if visible {
			if m.firstLine > lps {
				m.firstLine -= lps
			} else {
				m.firstLine = 0
			}
		} else {
			m.recenter()
		}
	} else {
		for i := uint64(0); i < lps; i++ {
			m.up()
		}
	}
	m.changed()
}

// PageDown is PageUp's mirror; near the end it falls back to single moves.
func (m *Model) PageDown() {
	lps := uint64(m.linesPerScreen)
	if m.CursorPosition()+lps*RowWidth < m.length() {
		visible := m.Visible()
		m.line += lps
		if visible {
			m.firstLine += lps
			if rows := m.Rows(); m.firstLine > rows {
				m.firstLine = rows
			}
		} else {
			m.recenter()
		}
	} else {
		for i := uint64(0); i < lps; i++ {
			m.down()
		}
	}
	m.changed()
}

// KeyLeft steps back one nibble in hex submodes and one byte in text.
func (m *Model) KeyLeft() {
	switch m.submode {
	case Text:
		m.left()
	case HexLow:
		m.submode = HexHigh
	case HexHigh:
		if m.left() {
			m.submode = HexLow
		}
	}
	m.changed()
}

func (m *Model) KeyBackspace() {
	m.KeyLeft()
}

// KeyRight steps forward one nibble in hex submodes and one byte in text.
func (m *Model) KeyRight() {
	switch m.submode {
	case Text:
		m.right()
	case HexHigh:
		m.submode = HexLow
	case HexLow:
		if m.right() {
			m.submode = HexHigh
		}
	}
	m.changed()
}

// SwitchView toggles between text and hex editing.
func (m *Model) SwitchView() {
	if m.submode == Text {
		m.submode = HexHigh
	} else {
		m.submode = Text
	}
	m.changed()
}

// SelectTo selects from the cursor to clickPos, both ends inclusive.
// Clicking the cursor itself clears the selection. Clicks past the end
// are ignored.
func (m *Model) SelectTo(clickPos uint64) {
	if clickPos >= m.length() {
		return
	}
	cur := m.CursorPosition()
	switch {
	case clickPos > cur:
		m.setSelection(cur, clickPos+1)
	case clickPos < cur:
		m.setSelection(clickPos, cur+1)
	default:
		m.sel.on = false
	}
	m.changed()
}

// SetSelection selects [start, end). The bounds are swapped if needed and
// clipped to the stream. An empty range is a valid, zero-length selection.
func (m *Model) SetSelection(start, end uint64) {
	if start > end {
		start, end = end, start
	}
	if n := m.length(); end > n {
		end = n
		if start > end {
			start = end
		}
	}
	m.setSelection(start, end)
	m.changed()
}

func (m *Model) setSelection(start, end uint64) {
	m.sel.on = true
	m.sel.start = start
	m.sel.end = end
}

func (m *Model) ClearSelection() {
	m.sel.on = false
	m.changed()
}

func (m *Model) Selection() (Selection, bool) {
	if !m.sel.on {
		return Selection{}, false
	}
	return Selection{Start: m.sel.start, End: m.sel.end}, true
}

// ScrollLines moves the viewport by delta lines without moving the cursor.
func (m *Model) ScrollLines(delta int64) {
	if delta < 0 {
		d := uint64(-delta)
		if d > m.firstLine {
			m.firstLine = 0
		} else {
			m.firstLine -= d
		}
	} else {
		m.firstLine += uint64(delta)
		if rows := m.Rows(); m.firstLine > rows {
			m.firstLine = rows
		}
	}
	m.changed()
}

// SetViewportLine positions the viewport, as a scrollbar does.
func (m *Model) SetViewportLine(line uint64) {
	if rows := m.Rows(); line > rows {
		line = rows
	}
	m.firstLine = line
	m.changed()
}

func (m *Model) editable() bool {
	return m.src != nil && !m.src.ReadOnly()
}

// InputText encodes s and writes it at the cursor. It does nothing in a hex
// submode; hex digits go through InputHexDigit.
func (m *Model) InputText(s string) error {
	if !m.editable() || m.submode != Text {
		return nil
	}
	enc := m.Encoder
	if enc == nil {
		enc = UTF8
	}
	b, err := enc.Encode(s)
	if err != nil {
		return err
	}
	_, err = m.WriteBytes(b)
	return err
}

// WriteBytes writes b starting at the cursor, advancing one byte per byte
// written. Bytes past the end are dropped. Each byte is written through a
// fresh read of its position.
func (m *Model) WriteBytes(b []byte) (int, error) {
	if !m.editable() || len(b) == 0 {
		return 0, nil
	}
	pos := m.CursorPosition()
	written := 0
	for i, c := range b {
		ok, err := m.storeByte(pos+uint64(i), func(byte) byte { return c })
		if err != nil {
			m.changed()
			return written, err
		}
		if !ok {
			break
		}
		written++
		m.right()
	}
	m.changed()
	return written, nil
}

// InputHexDigit applies one typed hex digit in a hex submode. It reports
// false when the rune is not a hex digit, the model is in text mode, or
// the source cannot be edited.
func (m *Model) InputHexDigit(r rune) (bool, error) {
	if m.submode == Text || !m.editable() {
		return false, nil
	}
	d, ok := hexValue(r)
	if !ok {
		return false, nil
	}

	pos := m.CursorPosition()
	var err error
	if m.submode == HexHigh {
		_, err = m.storeByte(pos, func(old byte) byte { return d<<4 | old&0x0F })
		if err == nil {
			m.submode = HexLow
		}
	} else {
		_, err = m.storeByte(pos, func(old byte) byte { return old&0xF0 | d })
		if err == nil {
			m.submode = HexHigh
			m.right()
		}
	}
	m.changed()
	if err != nil {
		return false, err
	}
	return true, nil
}

// storeByte rewrites the byte at pos through a view. A position past the
// end is reported as not stored rather than as an error.
func (m *Model) storeByte(pos uint64, f func(old byte) byte) (bool, error) {
	err := source.Borrow(m.src, pos, 1, func(v source.View) error {
		v[0] = f(v[0])
		m.src.SetModified()
		return nil
	})
	if errors.Is(err, source.ErrOutOfRange) {
		return false, nil
	}
	return err == nil, err
}

func hexValue(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r >= 'a' && r <= 'f':
		return byte(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return byte(r-'A') + 10, true
	}
	return 0, false
}
