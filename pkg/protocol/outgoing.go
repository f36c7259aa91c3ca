package protocol

import (
	"bytes"

	"golang.org/x/text/encoding"
)

// OutgoingMessage accumulates a server-to-client message and compiles it into
// an immutable frame:
//
//	┌──────────────────────┬───────────────────────┬──────────────┐
//	│ Message ID           │ Content               │ Terminator   │
//	│ (2 bytes, B64)       │ (appended fields)     │ (0x01)       │
//	└──────────────────────┴───────────────────────┴──────────────┘
//
// A message moves from uninitialized to initialized to compiled and never
// back. Every mutation after Compile fails with ErrReadOnly; every use before
// Initialize fails with ErrNotInitialized.
//
// An OutgoingMessage is not safe for concurrent mutation.
type OutgoingMessage struct {
	id          uint32
	initialized bool
	content     *Encoder
	compiled    []byte
}

// NewOutgoingMessage creates an uninitialized message.
// Initialize must be called before any append.
func NewOutgoingMessage() *OutgoingMessage {
	return &OutgoingMessage{}
}

// NewMessage creates a message already initialized with id.
func NewMessage(id uint32) *OutgoingMessage {
	m := &OutgoingMessage{}
	_ = m.Initialize(id)
	return m
}

// Initialize sets the message id and prepares empty content.
func (m *OutgoingMessage) Initialize(id uint32) error {
	if m.compiled != nil {
		return ErrReadOnly
	}
	if m.initialized {
		return ErrAlreadyInitialized
	}
	m.id = id
	m.content = NewEncoder()
	m.initialized = true
	return nil
}

func (m *OutgoingMessage) checkMutable() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if m.compiled != nil {
		return ErrReadOnly
	}
	return nil
}

// IsCompiled reports whether Compile has succeeded.
func (m *OutgoingMessage) IsCompiled() bool {
	return m.compiled != nil
}

// IsInitialized reports whether Initialize has succeeded.
func (m *OutgoingMessage) IsInitialized() bool {
	return m.initialized
}

// ID returns the message id.
func (m *OutgoingMessage) ID() (uint32, error) {
	if !m.initialized {
		return 0, ErrNotInitialized
	}
	return m.id, nil
}

// Header returns the 2-byte B64 header as a string.
func (m *OutgoingMessage) Header() (string, error) {
	if !m.initialized {
		return "", ErrNotInitialized
	}
	b, err := EncodeB64(m.id, HeaderLength)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ContentLength returns the number of content bytes appended so far.
func (m *OutgoingMessage) ContentLength() (int, error) {
	if !m.initialized {
		return 0, ErrNotInitialized
	}
	return m.content.Len(), nil
}

// ContentString returns the content interpreted as UTF-8.
func (m *OutgoingMessage) ContentString() (string, error) {
	if !m.initialized {
		return "", ErrNotInitialized
	}
	return string(m.content.Bytes()), nil
}

// Clear empties the accumulated content.
func (m *OutgoingMessage) Clear() error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.Reset()
	return nil
}

// AppendByte appends a single raw byte.
func (m *OutgoingMessage) AppendByte(b byte) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteByte(b)
	return nil
}

// AppendBytes appends raw bytes. A nil or empty slice is a no-op.
func (m *OutgoingMessage) AppendBytes(b []byte) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteBytes(b)
	return nil
}

// AppendText appends the UTF-8 bytes of s with no terminator.
func (m *OutgoingMessage) AppendText(s string) error {
	return m.AppendTextEncoded(s, nil)
}

// AppendTextEncoded appends s transcoded with enc, or as UTF-8 if enc is nil.
// Runes enc cannot represent fail with *EncodingError and append nothing.
func (m *OutgoingMessage) AppendTextEncoded(s string, enc encoding.Encoding) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	if enc == nil {
		m.content.WriteText(s)
		return nil
	}
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return encodingErrorf("AppendTextEncoded", "%v", err)
	}
	m.content.WriteText(out)
	return nil
}

// AppendInt appends the decimal text form of i.
func (m *OutgoingMessage) AppendInt(i int32) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteDecimal(int64(i))
	return nil
}

// AppendUint appends the decimal text form of i read as an int32, so values
// above math.MaxInt32 go out negative ("4294967295" is sent as "-1").
func (m *OutgoingMessage) AppendUint(i uint32) error {
	return m.AppendInt(int32(i))
}

// AppendInt32 appends i in VL64 wire form.
func (m *OutgoingMessage) AppendInt32(i int32) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteVL64(i)
	return nil
}

// AppendUint32 appends i in VL64 wire form. Values above math.MaxInt32 wrap
// to their two's complement int32 reading.
func (m *OutgoingMessage) AppendUint32(i uint32) error {
	return m.AppendInt32(int32(i))
}

// AppendBoolean appends the 1-byte wire form of b.
func (m *OutgoingMessage) AppendBoolean(b bool) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteBool(b)
	return nil
}

// AppendString appends s followed by DefaultStringTerminator.
func (m *OutgoingMessage) AppendString(s string) error {
	return m.AppendStringWith(s, DefaultStringTerminator)
}

// AppendStringWith appends s followed by terminator.
func (m *OutgoingMessage) AppendStringWith(s string, terminator byte) error {
	if err := m.checkMutable(); err != nil {
		return err
	}
	m.content.WriteString(s, terminator)
	return nil
}

// Compile produces the final frame. Calling it again after success is a
// no-op that keeps the first frame. If the id cannot be encoded the message
// stays uncompiled.
func (m *OutgoingMessage) Compile() error {
	if m.compiled != nil {
		return nil
	}
	if !m.initialized {
		return ErrNotInitialized
	}

	content := m.content.Bytes()
	frame := make([]byte, 0, HeaderLength+len(content)+1)
	frame, err := AppendB64(frame, m.id, HeaderLength)
	if err != nil {
		return err
	}
	frame = append(frame, content...)
	frame = append(frame, FrameTerminator)

	m.compiled = frame
	return nil
}

// Bytes returns a copy of the compiled frame.
func (m *OutgoingMessage) Bytes() ([]byte, error) {
	if m.compiled == nil {
		return nil, ErrNotCompiled
	}
	return bytes.Clone(m.compiled), nil
}

// Field appends one value to a message. See Build.
type Field func(m *OutgoingMessage) error

// Build creates, fills and compiles a message in one call.
//
//	msg, err := protocol.Build(6, protocol.String("1500.0"))
func Build(id uint32, fields ...Field) (*OutgoingMessage, error) {
	m := NewMessage(id)
	for _, f := range fields {
		if err := f(m); err != nil {
			return nil, err
		}
	}
	if err := m.Compile(); err != nil {
		return nil, err
	}
	return m, nil
}

// String is a Field appending a terminated string.
func String(s string) Field {
	return func(m *OutgoingMessage) error { return m.AppendString(s) }
}

// Text is a Field appending raw UTF-8 text.
func Text(s string) Field {
	return func(m *OutgoingMessage) error { return m.AppendText(s) }
}

// Int32 is a Field appending a VL64 integer.
func Int32(i int32) Field {
	return func(m *OutgoingMessage) error { return m.AppendInt32(i) }
}

// Bool is a Field appending a wire boolean.
func Bool(b bool) Field {
	return func(m *OutgoingMessage) error { return m.AppendBoolean(b) }
}

// Raw is a Field appending raw bytes.
func Raw(b []byte) Field {
	return func(m *OutgoingMessage) error { return m.AppendBytes(b) }
}
