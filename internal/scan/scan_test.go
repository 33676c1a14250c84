package scan

import (
	"context"
	"errors"
	"testing"

	"hexwin/internal/cursor"
	"hexwin/internal/handoff"
	"hexwin/internal/source"
)

func sourceWith(t *testing.T, length int, at map[int]string) *source.EphemeralSource {
	t.Helper()
	src := source.NewEphemeral(length)
	for pos, s := range at {
		copy(src.Bytes()[pos:], s)
	}
	return src
}

func mustText(t *testing.T, s string) Query {
	t.Helper()
	q, err := Text(s, nil)
	if err != nil {
		t.Fatalf("Text(%q) failed: %v", s, err)
	}
	return q
}

func TestFindLiteral(t *testing.T) {
	src := sourceWith(t, 1000, map[int]string{300: "needle", 700: "needle"})
	s := &Scanner{Src: src, Query: mustText(t, "needle"), Chunk: 64}

	tests := []struct {
		from uint64
		want uint64
	}{
		{0, 300},
		{300, 300},
		{301, 700},
		{701, 300},
		{5000, 300},
	}
	for _, tt := range tests {
		m, ok, err := s.Find(context.Background(), tt.from)
		if err != nil || !ok {
			t.Fatalf("Find(%d) = %v, %v", tt.from, ok, err)
		}
		if m.Start != tt.want || m.End != tt.want+6 {
			t.Errorf("Find(%d) = %+v, want start %d", tt.from, m, tt.want)
		}
	}
}

func TestFindAcrossChunkBoundary(t *testing.T) {
	src := sourceWith(t, 1000, map[int]string{126: "abcdef"})
	s := &Scanner{Src: src, Query: mustText(t, "abcdef"), Chunk: 64}
	m, ok, err := s.Find(context.Background(), 0)
	if err != nil || !ok || m.Start != 126 {
		t.Errorf("Find = %+v, %v, %v; want start 126", m, ok, err)
	}
}

func TestFindRegexAcrossChunkBoundary(t *testing.T) {
	src := sourceWith(t, 1000, map[int]string{60: "id=12345;"})
	q, err := Regex(`id=[0-9]+;`)
	if err != nil {
		t.Fatalf("Regex failed: %v", err)
	}
	s := &Scanner{Src: src, Query: q, Chunk: 64}
	m, ok, err := s.Find(context.Background(), 0)
	if err != nil || !ok || m.Start != 60 || m.End != 69 {
		t.Errorf("Find = %+v, %v, %v; want [60, 69)", m, ok, err)
	}
}

func TestFindHex(t *testing.T) {
	src := source.NewEphemeral(500)
	copy(src.Bytes()[321:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	q, err := Hex("de ad BE EF")
	if err != nil {
		t.Fatalf("Hex failed: %v", err)
	}
	s := &Scanner{Src: src, Query: q}
	m, ok, _ := s.Find(context.Background(), 0)
	if !ok || m.Start != 321 {
		t.Errorf("Find = %+v, %v; want start 321", m, ok)
	}
}

func TestFindNoMatch(t *testing.T) {
	var calls int
	s := &Scanner{
		Src:      source.NewEphemeral(1000),
		Query:    mustText(t, "zzz"),
		Chunk:    100,
		Progress: func(searched, total uint64) { calls++ },
	}
	_, ok, err := s.Find(context.Background(), 450)
	if err != nil || ok {
		t.Errorf("Find = %v, %v; want no match", ok, err)
	}
	if calls != 11 {
		t.Errorf("progress calls = %d, want 11", calls)
	}
}

func TestFindCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		Src:   source.NewEphemeral(10000),
		Query: mustText(t, "zzz"),
		Chunk: 100,
		Progress: func(searched, total uint64) {
			if searched >= 300 {
				cancel()
			}
		},
	}
	_, ok, err := s.Find(ctx, 0)
	if !errors.Is(err, context.Canceled) || ok {
		t.Errorf("Find = %v, %v; want Canceled", ok, err)
	}
}

func TestQueryErrors(t *testing.T) {
	if _, err := Hex("xyz"); err == nil {
		t.Error("Hex accepted non-hex input")
	}
	if _, err := Hex("  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Hex(blank) err = %v, want ErrEmptyQuery", err)
	}
	if _, err := Regex("("); err == nil {
		t.Error("Regex accepted a bad expression")
	}
	if _, err := Text("", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Text(\"\") err = %v, want ErrEmptyQuery", err)
	}
}

func TestTextEncoding(t *testing.T) {
	src := source.NewEphemeral(100)
	src.Bytes()[40] = 0xE9 // é in cp1252
	enc, _ := cursor.EncoderByName("cp1252")
	q, err := Text("é", enc)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	m, ok, _ := (&Scanner{Src: src, Query: q}).Find(context.Background(), 0)
	if !ok || m.Start != 40 {
		t.Errorf("Find = %+v, %v; want start 40", m, ok)
	}
}

func TestStartPosition(t *testing.T) {
	src := source.NewEphemeral(100)
	m := cursor.New(4)
	if err := m.Bind(src); err != nil {
		t.Fatal(err)
	}

	m.SetCursorPosition(10)
	if got := StartPosition(m); got != 10 {
		t.Errorf("no selection: %d, want 10", got)
	}
	m.SetSelection(10, 16)
	if got := StartPosition(m); got != 16 {
		t.Errorf("cursor in selection: %d, want 16", got)
	}
	m.SetSelection(90, 100)
	m.SetCursorPosition(95)
	if got := StartPosition(m); got != 0 {
		t.Errorf("selection at end: %d, want 0", got)
	}
}

func TestStartHandsResultToOwner(t *testing.T) {
	src := sourceWith(t, 2000, map[int]string{1500: "mark"})
	m := cursor.New(4)
	if err := m.Bind(src); err != nil {
		t.Fatal(err)
	}
	q := handoff.New(1)
	s := &Scanner{Src: src, Query: mustText(t, "mark"), Chunk: 128}

	var got Result
	done := Start(context.Background(), q, s, StartPosition(m), func(r Result) {
		got = r
		Apply(m, r)
	})
	<-done

	if m.CursorPosition() != 0 {
		t.Fatal("cursor moved before the owner drained the queue")
	}
	if n := q.Drain(); n != 1 {
		t.Fatalf("Drain = %d, want 1", n)
	}
	if !got.Found || got.Err != nil {
		t.Fatalf("result = %+v", got)
	}
	sel, ok := m.Selection()
	if m.CursorPosition() != 1500 || !ok || sel != (cursor.Selection{Start: 1500, End: 1504}) {
		t.Errorf("cursor = %d, selection = %v %v", m.CursorPosition(), sel, ok)
	}
}
