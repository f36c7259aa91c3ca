package protocol

import "fmt"

// IncomingMessage is a decoded client-to-server message.
type IncomingMessage struct {
	ID   uint32
	Body []byte
}

// NewIncomingMessage creates an IncomingMessage with the given id and body.
func NewIncomingMessage(id uint32, body []byte) *IncomingMessage {
	return &IncomingMessage{ID: id, Body: body}
}

// Header returns the 2-byte B64 form of the message id, or "" if the id is
// out of range.
func (m *IncomingMessage) Header() string {
	b, err := EncodeB64(m.ID, HeaderLength)
	if err != nil {
		return ""
	}
	return string(b)
}

// Reader returns a fresh decoder positioned at the start of the body.
func (m *IncomingMessage) Reader() *Decoder {
	return NewDecoder(m.Body)
}

// String implements fmt.Stringer for logging.
func (m *IncomingMessage) String() string {
	return fmt.Sprintf("[%d] %q", m.ID, m.Body)
}
