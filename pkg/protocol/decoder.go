package protocol

import (
	"bytes"
	"io"
)

// Decoder reads client-to-server fields from a message body.
//
// Clients encode integers and booleans as VL64 and strings as a 2-byte B64
// length followed by the bytes.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// Skip advances the position by n bytes.
func (d *Decoder) Skip(n int) error {
	if n < 0 || d.pos+n > len(d.buf) {
		return io.ErrUnexpectedEOF
	}
	d.pos += n
	return nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadB64 reads an n-byte B64 value.
func (d *Decoder) ReadB64(n int) (uint32, error) {
	b, err := d.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return DecodeB64(b)
}

// ReadInt32 reads a VL64 integer.
func (d *Decoder) ReadInt32() (int32, error) {
	if d.EOF() {
		return 0, io.ErrUnexpectedEOF
	}
	v, n, err := DecodeVL64(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return v, nil
}

// ReadUint32 reads a VL64 integer and reinterprets it as unsigned.
func (d *Decoder) ReadUint32() (uint32, error) {
	v, err := d.ReadInt32()
	return uint32(v), err
}

// ReadBool reads a single wire boolean byte.
// Unlike the integer form, anything but WireTrue or WireFalse is rejected.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case WireTrue:
		return true, nil
	case WireFalse:
		return false, nil
	default:
		d.pos--
		return false, encodingErrorf("ReadBool", "byte 0x%02x is not a wire boolean", b)
	}
}

// ReadString reads a string prefixed with its 2-byte B64 length.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadB64(HeaderLength)
	if err != nil {
		return "", err
	}
	if uint64(length) > uint64(d.Remaining()) {
		return "", io.ErrUnexpectedEOF
	}
	n := int(length)
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

// ReadTerminated reads up to the next terminator byte and consumes it.
// This is the server-to-client string form.
func (d *Decoder) ReadTerminated(terminator byte) (string, error) {
	i := bytes.IndexByte(d.buf[d.pos:], terminator)
	if i < 0 {
		return "", io.ErrUnexpectedEOF
	}
	s := string(d.buf[d.pos : d.pos+i])
	d.pos += i + 1
	return s, nil
}

// Rest returns every unread byte and moves to EOF.
func (d *Decoder) Rest() []byte {
	b := d.buf[d.pos:]
	d.pos = len(d.buf)
	return b
}
