package protocol

// B64 is the fixed-width base-64 style encoding used for message identifiers
// and packet lengths. Each byte carries six bits offset by 0x40, most
// significant group first.

const (
	// HeaderLength is the width of an encoded message identifier.
	HeaderLength = 2

	// MaxHeaderID is the largest identifier HeaderLength bytes can carry.
	MaxHeaderID = 1<<(6*HeaderLength) - 1

	// MaxB64Len is the widest B64 value that still fits in a uint32.
	MaxB64Len = 5

	b64Offset = 0x40
	b64Mask   = 0x3F
)

// B64Max returns the largest value representable in n B64 bytes.
func B64Max(n int) uint32 {
	return uint32(1)<<(6*uint(n)) - 1
}

// EncodeB64 encodes v into exactly n bytes.
// It fails with *EncodingError if n is outside 1..MaxB64Len or v does not fit.
func EncodeB64(v uint32, n int) ([]byte, error) {
	return AppendB64(make([]byte, 0, n), v, n)
}

// AppendB64 appends the n-byte encoding of v to dst.
func AppendB64(dst []byte, v uint32, n int) ([]byte, error) {
	if n < 1 || n > MaxB64Len {
		return dst, encodingErrorf("EncodeB64", "width %d out of range 1..%d", n, MaxB64Len)
	}
	if v > B64Max(n) {
		return dst, encodingErrorf("EncodeB64", "value %d exceeds %d-byte range (max %d)", v, n, B64Max(n))
	}
	for i := 0; i < n; i++ {
		shift := uint(6 * (n - 1 - i))
		dst = append(dst, byte(b64Offset+(v>>shift)&b64Mask))
	}
	return dst, nil
}

// DecodeB64 decodes every byte of b as one B64 value.
func DecodeB64(b []byte) (uint32, error) {
	if len(b) == 0 || len(b) > MaxB64Len {
		return 0, encodingErrorf("DecodeB64", "width %d out of range 1..%d", len(b), MaxB64Len)
	}
	var v uint32
	for _, c := range b {
		if c < b64Offset || c > b64Offset+b64Mask {
			return 0, encodingErrorf("DecodeB64", "byte 0x%02x outside alphabet", c)
		}
		v = v<<6 | uint32(c-b64Offset)
	}
	return v, nil
}
