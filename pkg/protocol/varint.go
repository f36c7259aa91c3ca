package protocol

import "math"

// VL64 is the variable-length wire form of a 32-bit integer. The first byte
// holds the byte count, the sign and the two lowest bits:
//
//	0x40 | count<<3 | negative<<2 | abs&3
//
// Each following byte carries six more bits, least significant first, offset
// by 0x40. Zero encodes as "H" and one as "I".

// MaxVL64Len is the maximum number of bytes a VL64 value can occupy.
const MaxVL64Len = 6

// EncodeVL64 returns the wire form of v.
func EncodeVL64(v int32) []byte {
	return AppendVL64(make([]byte, 0, VL64Len(v)), v)
}

// AppendVL64 appends the wire form of v to dst.
func AppendVL64(dst []byte, v int32) []byte {
	var buf [MaxVL64Len]byte

	abs := int64(v)
	var neg byte
	if abs < 0 {
		abs = -abs
		neg = 0x04
	}

	buf[0] = b64Offset | byte(abs&0x03)
	abs >>= 2
	n := 1
	for abs != 0 {
		buf[n] = b64Offset | byte(abs&b64Mask)
		abs >>= 6
		n++
	}
	buf[0] |= byte(n<<3) | neg

	return append(dst, buf[:n]...)
}

// DecodeVL64 decodes one VL64 value from the start of b.
// Returns the value and the number of bytes consumed.
func DecodeVL64(b []byte) (int32, int, error) {
	if len(b) == 0 {
		return 0, 0, encodingErrorf("DecodeVL64", "empty input")
	}

	first := b[0]
	if first < b64Offset || first > b64Offset+b64Mask {
		return 0, 0, encodingErrorf("DecodeVL64", "byte 0x%02x outside alphabet", first)
	}

	n := int(first>>3) & 0x07
	if n == 0 || n > MaxVL64Len {
		return 0, 0, encodingErrorf("DecodeVL64", "invalid byte count %d", n)
	}
	if len(b) < n {
		return 0, 0, encodingErrorf("DecodeVL64", "truncated: need %d bytes, have %d", n, len(b))
	}

	v := int64(first & 0x03)
	shift := uint(2)
	for i := 1; i < n; i++ {
		c := b[i]
		if c < b64Offset || c > b64Offset+b64Mask {
			return 0, 0, encodingErrorf("DecodeVL64", "byte 0x%02x outside alphabet", c)
		}
		v |= int64(c&b64Mask) << shift
		shift += 6
	}
	if first&0x04 != 0 {
		v = -v
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, 0, encodingErrorf("DecodeVL64", "value %d overflows int32", v)
	}

	return int32(v), n, nil
}

// VL64Len returns the number of bytes needed to encode v.
func VL64Len(v int32) int {
	abs := int64(v)
	if abs < 0 {
		abs = -abs
	}
	n := 1
	for abs >>= 2; abs != 0; abs >>= 6 {
		n++
	}
	return n
}
