package cursor

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Encoder turns typed text into the bytes written at the cursor.
type Encoder interface {
	Encode(s string) ([]byte, error)
}

type EncoderFunc func(s string) ([]byte, error)

func (f EncoderFunc) Encode(s string) ([]byte, error) {
	return f(s)
}

// UTF8 writes text unchanged.
var UTF8 Encoder = EncoderFunc(func(s string) ([]byte, error) {
	return []byte(s), nil
})

// Charmap encodes text in a single-byte code page. Runes the code page
// cannot represent are an error.
func Charmap(cm *charmap.Charmap) Encoder {
	return EncoderFunc(func(s string) ([]byte, error) {
		b, err := cm.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("encode %q as %s: %w", s, cm, err)
		}
		return b, nil
	})
}

var codePages = map[string]*charmap.Charmap{
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"cp850":        charmap.CodePage850,
	"cp437":        charmap.CodePage437,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
}

// EncoderByName resolves an encoding flag value. The empty name is UTF-8.
func EncoderByName(name string) (Encoder, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf8", "utf-8":
		return UTF8, nil
	}
	if cm, ok := codePages[n]; ok {
		return Charmap(cm), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}
