package protocol

import "strconv"

// Wire constants shared by the encoder, decoder and outgoing messages.
const (
	// WireTrue is the single byte a true boolean encodes to.
	WireTrue byte = 'I'

	// WireFalse is the single byte a false boolean encodes to.
	WireFalse byte = 'H'

	// DefaultStringTerminator ends a string field unless the caller picks another.
	DefaultStringTerminator byte = 0x02

	// FrameTerminator is the trailing marker of every compiled outgoing frame.
	FrameTerminator byte = 0x01
)

// Encoder is a binary encoder that appends data to an internal buffer.
// It carries no lifecycle rules; OutgoingMessage layers those on top.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: make([]byte, 0, 256),
	}
}

// NewEncoderWithCap creates a new encoder with the specified initial capacity.
func NewEncoderWithCap(cap int) *Encoder {
	return &Encoder{
		buf: make([]byte, 0, cap),
	}
}

// Reset resets the encoder to empty state, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next call to Reset or any Write method.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends a single byte.
// Note: This intentionally doesn't return error (unlike io.ByteWriter)
// because our buffer is unbounded and can always append.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteText appends the UTF-8 bytes of s with no terminator.
func (e *Encoder) WriteText(s string) {
	e.buf = append(e.buf, s...)
}

// WriteDecimal appends the decimal text form of v.
func (e *Encoder) WriteDecimal(v int64) {
	e.buf = strconv.AppendInt(e.buf, v, 10)
}

// WriteUdecimal appends the decimal text form of v.
func (e *Encoder) WriteUdecimal(v uint64) {
	e.buf = strconv.AppendUint(e.buf, v, 10)
}

// WriteVL64 appends v in VL64 wire form.
func (e *Encoder) WriteVL64(v int32) {
	e.buf = AppendVL64(e.buf, v)
}

// WriteB64 appends v as an n-byte B64 value.
func (e *Encoder) WriteB64(v uint32, n int) error {
	buf, err := AppendB64(e.buf, v, n)
	if err != nil {
		return err
	}
	e.buf = buf
	return nil
}

// WriteBool appends a boolean as a single byte (WireTrue or WireFalse).
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, WireTrue)
	} else {
		e.buf = append(e.buf, WireFalse)
	}
}

// WriteString appends the UTF-8 bytes of s followed by terminator.
func (e *Encoder) WriteString(s string, terminator byte) {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, terminator)
}

// WriteLenString appends s prefixed with its 2-byte B64 length.
// This is the client-to-server string form.
func (e *Encoder) WriteLenString(s string) error {
	if err := e.WriteB64(uint32(len(s)), HeaderLength); err != nil {
		return err
	}
	e.buf = append(e.buf, s...)
	return nil
}
