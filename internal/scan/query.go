package scan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"hexwin/internal/cursor"
)

// ErrEmptyQuery is returned for a query that matches nothing.
var ErrEmptyQuery = errors.New("empty search query")

// regexOverlap is how far past a chunk a regex match may extend and still
// be found in one piece.
const regexOverlap = 4096

// Query is a literal byte string or a regular expression over bytes.
type Query struct {
	literal []byte
	re      *regexp.Regexp
}

func Literal(b []byte) (Query, error) {
	if len(b) == 0 {
		return Query{}, ErrEmptyQuery
	}
	return Query{literal: append([]byte(nil), b...)}, nil
}

// Text searches for s as encoded by enc. A nil enc means UTF-8.
func Text(s string, enc cursor.Encoder) (Query, error) {
	if enc == nil {
		enc = cursor.UTF8
	}
	b, err := enc.Encode(s)
	if err != nil {
		return Query{}, err
	}
	return Literal(b)
}

// Hex parses digits such as "DE AD be ef"; spaces are ignored.
func Hex(s string) (Query, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return Query{}, fmt.Errorf("parse hex query %q: %w", s, err)
	}
	return Literal(b)
}

func Regex(expr string) (Query, error) {
	if expr == "" {
		return Query{}, ErrEmptyQuery
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Query{}, fmt.Errorf("compile regex query: %w", err)
	}
	return Query{re: re}, nil
}

// overlap is how many bytes past a chunk are searched with it.
func (q Query) overlap() uint64 {
	if q.re != nil {
		return regexOverlap
	}
	return uint64(len(q.literal) - 1)
}

// index returns the leftmost match in b.
func (q Query) index(b []byte) (start, end int) {
	if q.re != nil {
		loc := q.re.FindIndex(b)
		if loc == nil {
			return -1, -1
		}
		return loc[0], loc[1]
	}
	i := bytes.Index(b, q.literal)
	if i < 0 {
		return -1, -1
	}
	return i, i + len(q.literal)
}

func (q Query) String() string {
	if q.re != nil {
		return "regex " + q.re.String()
	}
	return fmt.Sprintf("% X", q.literal)
}
