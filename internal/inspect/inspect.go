// Package inspect interprets the bytes at a position as integers and
// floating point numbers.
package inspect

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"hexwin/internal/source"
)

// NotAvailable is shown when too few bytes remain.
const NotAvailable = "n/a"

// Format describes one interpretation. Floats ignore Signed.
type Format struct {
	Bits      int
	Signed    bool
	Float     bool
	BigEndian bool
}

// Formats lists what the info command prints, in order.
var Formats = []Format{
	{Bits: 8, Signed: true}, {Bits: 8},
	{Bits: 16, Signed: true}, {Bits: 16},
	{Bits: 32, Signed: true}, {Bits: 32},
	{Bits: 64, Signed: true}, {Bits: 64},
	{Bits: 32, Float: true}, {Bits: 64, Float: true},
}

// ParseFormat reads names such as "i8", "u16le", "i32be", "f64".
// Without a suffix the byte order is little endian.
func ParseFormat(s string) (Format, error) {
	var f Format
	name := strings.ToLower(s)
	switch {
	case strings.HasSuffix(name, "be"):
		f.BigEndian = true
		name = strings.TrimSuffix(name, "be")
	case strings.HasSuffix(name, "le"):
		name = strings.TrimSuffix(name, "le")
	}
	if name == "" {
		return Format{}, fmt.Errorf("unknown format %q", s)
	}
	switch name[0] {
	case 'i':
		f.Signed = true
	case 'u':
	case 'f':
		f.Float = true
	default:
		return Format{}, fmt.Errorf("unknown format %q", s)
	}
	bits, err := strconv.Atoi(name[1:])
	if err != nil {
		return Format{}, fmt.Errorf("unknown format %q", s)
	}
	f.Bits = bits
	if !f.valid() {
		return Format{}, fmt.Errorf("unsupported format %q", s)
	}
	return f, nil
}

func (f Format) valid() bool {
	if f.Float {
		return f.Bits == 32 || f.Bits == 64
	}
	switch f.Bits {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// Size is the number of bytes the format reads.
func (f Format) Size() int {
	return f.Bits / 8
}

func (f Format) String() string {
	kind := "u"
	switch {
	case f.Float:
		kind = "f"
	case f.Signed:
		kind = "i"
	}
	order := "le"
	if f.BigEndian {
		order = "be"
	}
	if f.Bits == 8 {
		order = ""
	}
	return fmt.Sprintf("%s%d%s", kind, f.Bits, order)
}

func (f Format) order() binary.ByteOrder {
	if f.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (f Format) bits(b []byte) uint64 {
	switch f.Bits {
	case 8:
		return uint64(b[0])
	case 16:
		return uint64(f.order().Uint16(b))
	case 32:
		return uint64(f.order().Uint32(b))
	}
	return f.order().Uint64(b)
}

// Decode formats the first Size bytes of b, or NotAvailable.
func Decode(b []byte, f Format) string {
	if !f.valid() || len(b) < f.Size() {
		return NotAvailable
	}
	u := f.bits(b)
	switch {
	case f.Float && f.Bits == 32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(u))), 'e', 6, 32)
	case f.Float:
		return strconv.FormatFloat(math.Float64frombits(u), 'e', 6, 64)
	case f.Signed:
		shift := 64 - f.Bits
		return strconv.FormatInt(int64(u<<shift)>>shift, 10)
	}
	return strconv.FormatUint(u, 10)
}

// At decodes the bytes at pos of src.
func At(src source.ByteSource, pos uint64, f Format) (string, error) {
	if pos >= src.Len() {
		return NotAvailable, nil
	}
	b, err := source.Snapshot(src, pos, uint32(f.Size()))
	if err != nil {
		return "", err
	}
	return Decode(b, f), nil
}

// Encode parses value and returns its bytes in format f.
func Encode(value string, f Format) ([]byte, error) {
	if !f.valid() {
		return nil, fmt.Errorf("unsupported format %v", f)
	}
	var u uint64
	switch {
	case f.Float:
		v, err := strconv.ParseFloat(value, f.Bits)
		if err != nil {
			return nil, err
		}
		if f.Bits == 32 {
			u = uint64(math.Float32bits(float32(v)))
		} else {
			u = math.Float64bits(v)
		}
	case f.Signed:
		v, err := strconv.ParseInt(value, 0, f.Bits)
		if err != nil {
			return nil, err
		}
		u = uint64(v)
	default:
		v, err := strconv.ParseUint(value, 0, f.Bits)
		if err != nil {
			return nil, err
		}
		u = v
	}

	b := make([]byte, 8)
	switch f.Bits {
	case 8:
		b[0] = byte(u)
	case 16:
		f.order().PutUint16(b, uint16(u))
	case 32:
		f.order().PutUint32(b, uint32(u))
	default:
		f.order().PutUint64(b, u)
	}
	return b[:f.Size()], nil
}
