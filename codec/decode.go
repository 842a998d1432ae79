package codec

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// Decoders read one value at off and return it with the offset of the next value.
// They never panic on truncated input.

// U8 decodes a single byte.
func U8(buf []byte, off int) (uint8, int, error) {
	if off < 0 || off+1 > len(buf) {
		return 0, off, ErrShortBuffer
	}
	return buf[off], off + 1, nil
}

// U32 decodes a big-endian uint32.
func U32(buf []byte, off int) (uint32, int, error) {
	if off < 0 || off+4 > len(buf) {
		return 0, off, ErrShortBuffer
	}
	return binary.BigEndian.Uint32(buf[off:]), off + 4, nil
}

// F32 decodes a big-endian IEEE-754 float32.
func F32(buf []byte, off int) (float32, int, error) {
	bits, next, err := U32(buf, off)
	if err != nil {
		return 0, off, err
	}
	return math.Float32frombits(bits), next, nil
}

// String decodes a length-prefixed string. Invalid UTF-8 sequences are
// replaced with U+FFFD rather than failing.
func String(buf []byte, off int) (string, int, error) {
	n, next, err := U8(buf, off)
	if err != nil {
		return "", off, err
	}
	end := next + int(n)
	if end > len(buf) {
		return "", off, ErrShortBuffer
	}
	raw := buf[next:end]
	s, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), end, nil
	}
	return string(s), end, nil
}

// U32Array decodes a count-prefixed array of uint32.
func U32Array(buf []byte, off int) ([]uint32, int, error) {
	n, next, err := U8(buf, off)
	if err != nil {
		return nil, off, err
	}
	if next+4*int(n) > len(buf) {
		return nil, off, ErrShortBuffer
	}
	vs := make([]uint32, n)
	for i := range vs {
		vs[i] = binary.BigEndian.Uint32(buf[next:])
		next += 4
	}
	return vs, next, nil
}
