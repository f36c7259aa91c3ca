// Package protocol implements the binary wire protocol spoken between the
// game client and the server.
//
// # Wire Types
//
// The protocol uses a small alphabet of 0x40-offset bytes:
//
//   - B64: fixed-width, six bits per byte, most significant first. Used for
//     message identifiers (2 bytes, 0..4095) and inbound packet lengths
//     (3 bytes).
//   - VL64: variable-length signed 32-bit integers, 1..6 bytes.
//   - Boolean: one byte, 'I' for true and 'H' for false.
//   - Server strings: UTF-8 bytes followed by a terminator byte (0x02 by
//     default), never length-prefixed.
//   - Client strings: a 2-byte B64 length followed by the bytes.
//
// Integers also appear in decimal text form in some fields; the text and VL64
// forms are not interchangeable.
//
// # Outgoing Frames
//
//	[2 bytes: B64 message id][content][0x01]
//
// Build frames with OutgoingMessage:
//
//	msg := protocol.NewMessage(6)
//	if err := msg.AppendString("1500.0"); err != nil {
//	    return err
//	}
//	if err := msg.Compile(); err != nil {
//	    return err
//	}
//	frame, _ := msg.Bytes()
//
// or in one call with Build:
//
//	msg, err := protocol.Build(6, protocol.String("1500.0"))
//
// # Inbound Packets
//
//	[3 bytes: B64 length][2 bytes: B64 message id][body]
//
// ReadPacket and SplitPackets turn raw bytes into IncomingMessage values whose
// bodies are read with a Decoder.
//
// # File Structure
//
//   - b64.go: B64 encoding/decoding
//   - varint.go: VL64 encoding/decoding
//   - encoder.go: Binary encoder and wire constants
//   - decoder.go: Binary decoder for client fields
//   - outgoing.go: OutgoingMessage builder
//   - incoming.go: IncomingMessage
//   - frame.go: Inbound packet framing
//   - error.go: Lifecycle and encoding errors
package protocol
