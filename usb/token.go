// Package usb holds the wire-level value types shared by the transaction
// engine: decoded tokens, handshake responses, and the byte-stream beats that
// cross the link-layer boundary.
package usb

import "fmt"

// MaxEndpoints is the number of endpoint numbers addressable by a token.
// USB 2.0 encodes the endpoint field in four bits. [USB2.0: 8.4.1]
const MaxEndpoints = 16

// Token kinds, as classified by the link layer's token decoder.
const (
	TokenOut   TokenKind = iota // OUT token (host to device data)
	TokenIn                     // IN token (device to host data)
	TokenSetup                  // SETUP token (control transfer start)
	TokenPing                   // PING token (high-speed OUT flow control)
)

// TokenKind classifies a decoded token packet.
type TokenKind uint8

// String returns the canonical token name.
func (k TokenKind) String() string {
	switch k {
	case TokenOut:
		return "OUT"
	case TokenIn:
		return "IN"
	case TokenSetup:
		return "SETUP"
	case TokenPing:
		return "PING"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Token is one decoded token packet: the type/endpoint descriptor of a single
// bus transaction. The data toggle of the transaction's data phase travels
// alongside it, extracted from the DATA PID by the link layer.
type Token struct {
	Endpoint uint8     // Endpoint number, 0-15
	Kind     TokenKind // OUT, IN, SETUP, or PING

	// Toggle is the data toggle carried by the transaction's data phase
	// (false for DATA0, true for DATA1). Meaningful for OUT and SETUP
	// transactions once the data phase has been seen.
	Toggle bool
}

// IsOut reports whether the token carries host-to-device data (OUT or SETUP).
func (t Token) IsOut() bool { return t.Kind == TokenOut || t.Kind == TokenSetup }

// IsIn reports whether the token requests device-to-host data.
func (t Token) IsIn() bool { return t.Kind == TokenIn }

// String renders the token for logs, e.g. "OUT ep=2 toggle=1".
func (t Token) String() string {
	toggle := 0
	if t.Toggle {
		toggle = 1
	}
	return fmt.Sprintf("%s ep=%d toggle=%d", t.Kind, t.Endpoint, toggle)
}
