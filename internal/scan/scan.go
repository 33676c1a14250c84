// Package scan searches a source in bounded chunks so a long search can be
// cancelled and its result handed back to the owner.
package scan

import (
	"context"

	"hexwin/internal/cursor"
	"hexwin/internal/handoff"
	"hexwin/internal/logging"
	"hexwin/internal/source"
)

// ChunkSize is how many new bytes each step reads.
const ChunkSize = 100 * 1024

// Match is the half-open byte range of a hit.
type Match struct {
	Start, End uint64
}

type Scanner struct {
	Src   source.ByteSource
	Query Query

	// Chunk overrides ChunkSize when non-zero.
	Chunk uint32

	// Progress, if set, is called after every chunk.
	Progress func(searched, total uint64)
}

func (s *Scanner) chunk() uint64 {
	if s.Chunk == 0 {
		return ChunkSize
	}
	return uint64(s.Chunk)
}

// Find returns the first match at or after from, wrapping around to the
// start of the stream once. ctx is checked between chunks. The source is
// only read.
func (s *Scanner) Find(ctx context.Context, from uint64) (Match, bool, error) {
	total := s.Src.Len()
	if total == 0 {
		return Match{}, false, nil
	}
	if from >= total {
		from = 0
	}

	var searched uint64
	spans := [][2]uint64{{from, total}, {0, from}}
	for _, span := range spans {
		for pos := span[0]; pos < span[1]; {
			if err := ctx.Err(); err != nil {
				return Match{}, false, err
			}

			advance := s.chunk()
			if rest := span[1] - pos; advance > rest {
				advance = rest
			}
			n := advance + s.Query.overlap()
			if rest := total - pos; n > rest {
				n = rest
			}

			var m Match
			var found bool
			err := source.Borrow(s.Src, pos, uint32(n), func(v source.View) error {
				start, end := s.Query.index(v)
				if start >= 0 && uint64(start) < advance {
					m = Match{Start: pos + uint64(start), End: pos + uint64(end)}
					found = true
				}
				return nil
			})
			if err != nil {
				return Match{}, false, err
			}
			if found {
				logging.Debugf("Found %s at %d", s.Query, m.Start)
				return m, true, nil
			}

			pos += advance
			searched += advance
			if s.Progress != nil {
				s.Progress(searched, total)
			}
		}
	}
	return Match{}, false, nil
}

// StartPosition is where a search from the model's cursor begins: past
// the selection when the cursor is inside it, so repeated searches step
// through successive matches.
func StartPosition(m *cursor.Model) uint64 {
	pos := m.CursorPosition()
	if sel, ok := m.Selection(); ok && sel.Start <= pos && pos < sel.End {
		pos = sel.End
	}
	if src := m.Source(); src != nil && pos >= src.Len() {
		pos = 0
	}
	return pos
}

// Result is the outcome of a background search.
type Result struct {
	Match Match
	Found bool
	Err   error
}

// Apply moves the cursor to a match and selects it.
func Apply(m *cursor.Model, r Result) {
	if !r.Found {
		return
	}
	m.SetCursorPosition(r.Match.Start)
	m.SetSelection(r.Match.Start, r.Match.End)
}

// Start runs Find on a new goroutine and posts done(result) to q. The
// returned channel is closed once the result is posted or ctx ends.
func Start(ctx context.Context, q *handoff.Queue, s *Scanner, from uint64, done func(Result)) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		m, found, err := s.Find(ctx, from)
		r := Result{Match: m, Found: found, Err: err}
		if err := q.Post(ctx, func() { done(r) }); err != nil {
			logging.Debugf("Search result dropped: %v", err)
		}
	}()
	return finished
}
