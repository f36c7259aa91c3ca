package protocol

import (
	"errors"
	"io"
)

// Packet errors.
var (
	ErrPacketTooLarge = errors.New("protocol: packet payload too large")
	ErrPacketTooShort = errors.New("protocol: packet shorter than its header")
)

// Inbound packets are framed as:
//
//	┌──────────────────────┬──────────────────────┬───────────────────┐
//	│ Length               │ Message ID           │ Body              │
//	│ (3 bytes, B64)       │ (2 bytes, B64)       │ (Length-2 bytes)  │
//	└──────────────────────┴──────────────────────┴───────────────────┘
//
// Length counts the message id and the body.

// ReadPacket reads one complete inbound packet from r.
// maxSize bounds the payload; values <= 0 select DefaultMaxPacketSize.
func ReadPacket(r io.Reader, maxSize int) (*IncomingMessage, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPacketSize
	}

	var prefix [PacketLengthWidth]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	length, err := DecodeB64(prefix[:])
	if err != nil {
		return nil, err
	}
	if int(length) > maxSize {
		return nil, ErrPacketTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return DecodeIncoming(payload)
}

// SplitPackets decodes every packet contained in data.
// A trailing partial packet is an error.
func SplitPackets(data []byte, maxSize int) ([]*IncomingMessage, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPacketSize
	}

	var out []*IncomingMessage
	for len(data) > 0 {
		if len(data) < PacketLengthWidth {
			return out, io.ErrUnexpectedEOF
		}
		length, err := DecodeB64(data[:PacketLengthWidth])
		if err != nil {
			return out, err
		}
		if int(length) > maxSize {
			return out, ErrPacketTooLarge
		}
		end := PacketLengthWidth + int(length)
		if len(data) < end {
			return out, io.ErrUnexpectedEOF
		}

		msg, err := DecodeIncoming(data[PacketLengthWidth:end])
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		data = data[end:]
	}
	return out, nil
}

// DecodeIncoming decodes a packet payload (message id + body).
// The body is copied and safe to retain.
func DecodeIncoming(payload []byte) (*IncomingMessage, error) {
	if len(payload) < HeaderLength {
		return nil, ErrPacketTooShort
	}

	id, err := DecodeB64(payload[:HeaderLength])
	if err != nil {
		return nil, err
	}

	body := make([]byte, len(payload)-HeaderLength)
	copy(body, payload[HeaderLength:])

	return &IncomingMessage{ID: id, Body: body}, nil
}

// EncodePacket frames a client-to-server packet.
func EncodePacket(id uint32, body []byte) ([]byte, error) {
	length := HeaderLength + len(body)
	if length > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}

	e := NewEncoderWithCap(PacketLengthWidth + length)
	if err := e.WriteB64(uint32(length), PacketLengthWidth); err != nil {
		return nil, err
	}
	if err := e.WriteB64(id, HeaderLength); err != nil {
		return nil, err
	}
	e.WriteBytes(body)
	return e.Bytes(), nil
}
