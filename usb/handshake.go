package usb

import "fmt"

// Handshake responses the engine can assert for a transaction. At most one is
// asserted per response point; HandshakeNone means the engine stays silent and
// lets the host time out (used for transactions that target nobody).
const (
	HandshakeNone  Handshake = iota // No response
	HandshakeACK                    // Packet accepted
	HandshakeNAK                    // Not ready; host should retry
	HandshakeSTALL                  // Endpoint halted until cleared by policy
)

// Handshake is the engine's decision for one transaction.
type Handshake uint8

// String returns the handshake PID name.
func (h Handshake) String() string {
	switch h {
	case HandshakeNone:
		return "none"
	case HandshakeACK:
		return "ACK"
	case HandshakeNAK:
		return "NAK"
	case HandshakeSTALL:
		return "STALL"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(h))
	}
}
