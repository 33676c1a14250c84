package source

import "fmt"

// EphemeralSource is a zero-filled in-memory stream of fixed length.
// Flush only clears the modified flag.
type EphemeralSource struct {
	data     []byte
	modified bool
	closed   bool
}

func NewEphemeral(length int) *EphemeralSource {
	return &EphemeralSource{data: make([]byte, length)}
}

var _ ByteSource = (*EphemeralSource)(nil)

func (s *EphemeralSource) Read(pos uint64, n uint32) (View, error) {
	if s.closed {
		return nil, ErrClosed
	}
	length := uint64(len(s.data))
	if pos >= length {
		return nil, fmt.Errorf("read at %d of %d: %w", pos, length, ErrOutOfRange)
	}
	end := pos + uint64(n)
	if end > length {
		end = length
	}
	return View(s.data[pos:end:end]), nil
}

func (s *EphemeralSource) Len() uint64 {
	return uint64(len(s.data))
}

func (s *EphemeralSource) Flush() error {
	s.modified = false
	return nil
}

func (s *EphemeralSource) ReadOnly() bool {
	return false
}

func (s *EphemeralSource) SetModified() {
	s.modified = true
}

func (s *EphemeralSource) Modified() bool {
	return s.modified
}

func (s *EphemeralSource) Close() error {
	s.closed = true
	return nil
}

// Bytes exposes the backing array.
func (s *EphemeralSource) Bytes() []byte {
	return s.data
}
