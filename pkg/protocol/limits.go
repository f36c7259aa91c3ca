package protocol

// Packet limits for client-to-server traffic.
const (
	// PacketLengthWidth is the width of the B64 length prefix on inbound packets.
	PacketLengthWidth = 3

	// MaxPacketSize is the largest payload a 3-byte B64 length can describe.
	MaxPacketSize = 1<<(6*PacketLengthWidth) - 1

	// DefaultMaxPacketSize caps inbound payloads unless the reader picks another limit.
	DefaultMaxPacketSize = 64 * 1024
)
