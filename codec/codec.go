// Package codec implements the primitive wire encoding shared by every
// request, response and push datagram: big-endian integers, IEEE-754 floats,
// and strings and u32 arrays prefixed with a one-byte length.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// MaxLen is the largest string length or array count a one-byte prefix can carry.
const MaxLen = math.MaxUint8

// ErrShortBuffer is returned by every decoder when the buffer ends before the value does.
var ErrShortBuffer = errors.New("codec: short buffer")

// AppendU8 appends v verbatim.
func AppendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

// AppendU32 appends v as 4 big-endian bytes.
func AppendU32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// AppendF32 appends the IEEE-754 bits of v as 4 big-endian bytes.
func AppendF32(dst []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
}

// AppendString appends a one-byte length followed by the bytes of s.
// Strings longer than MaxLen bytes are cut at the last rune boundary that fits.
func AppendString(dst []byte, s string) []byte {
	if len(s) > MaxLen {
		n := MaxLen
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	dst = append(dst, uint8(len(s)))
	return append(dst, s...)
}

// AppendU32Array appends a one-byte count followed by each element as a u32.
// Only the first MaxLen elements are written.
func AppendU32Array(dst []byte, vs []uint32) []byte {
	if len(vs) > MaxLen {
		vs = vs[:MaxLen]
	}
	dst = append(dst, uint8(len(vs)))
	for _, v := range vs {
		dst = AppendU32(dst, v)
	}
	return dst
}
