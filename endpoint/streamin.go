package endpoint

import (
	"log/slog"

	"github.com/usbforge/epcore/usb"
)

// StreamInEndpoint transmits an application byte stream to the host on one
// endpoint number. ZLP generation is always on, so record boundaries landing
// exactly on a packet edge remain unambiguous without out-of-band framing.
type StreamInEndpoint struct {
	epno uint8
	mgr  *InTransferManager
}

// NewStreamInEndpoint builds a transmit adapter for the given endpoint
// number and max packet size. logger may be nil.
func NewStreamInEndpoint(endpointNumber uint8, maxPacketSize int, logger *slog.Logger) *StreamInEndpoint {
	return &StreamInEndpoint{
		epno: endpointNumber & 0x0f,
		mgr:  NewInTransferManager(maxPacketSize, true, logger),
	}
}

// Number is the endpoint number this adapter answers for.
func (e *StreamInEndpoint) Number() uint8 { return e.epno }

// Write consumes one stream byte; last marks the end of a record. False
// means both packet buffers are occupied, try again after a packet drains.
func (e *StreamInEndpoint) Write(b byte, last bool) bool {
	return e.mgr.Write(b, last)
}

// Ready reports whether a packet is staged for the next IN token.
func (e *StreamInEndpoint) Ready() bool { return e.mgr.Ready() }

// Respond decides the reaction to an IN token: NAK when no packet is staged,
// HandshakeNone (data follows) otherwise. Tokens for other endpoints are
// ignored.
func (e *StreamInEndpoint) Respond(tok usb.Token) usb.Handshake {
	if !tok.IsIn() {
		return usb.HandshakeNone
	}
	return e.mgr.Respond(tok.Endpoint == e.epno)
}

// TxNext pulls the next transmit beat of the current packet.
func (e *StreamInEndpoint) TxNext() (usb.TxByte, bool) { return e.mgr.TxNext() }

// Toggle is the data PID attached to outgoing packets, tracked
// automatically: it flips when HandshakeIn observes the host's ACK.
func (e *StreamInEndpoint) Toggle() bool { return e.mgr.Toggle() }

// SetToggle overrides the tracked toggle, for use when the controller
// reconfigures the endpoint.
func (e *StreamInEndpoint) SetToggle(v bool) { e.mgr.SetToggle(v) }

// HandshakeIn delivers the host's handshake for the last transmitted packet.
func (e *StreamInEndpoint) HandshakeIn(h usb.Handshake) { e.mgr.HandshakeIn(h) }

// Reset drops buffered data and any transmission in progress.
func (e *StreamInEndpoint) Reset() { e.mgr.Reset() }
