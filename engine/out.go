package engine

import (
	"log/slog"

	"github.com/usbforge/epcore/fifo"
	"github.com/usbforge/epcore/usb"
)

// OutManager is the host-facing receive engine. The controller selects one
// endpoint and arms reception for exactly one packet; the manager buffers
// data-phase bytes only while armed and matching, ACKs the accepted packet,
// and clears the armed flag so the controller regains backpressure control.
// Everything else is NAK'd, except stalled endpoints, which answer STALL
// whether or not they are the selected one.
type OutManager struct {
	log    *slog.Logger
	stalls *StallTable
	fifo   *fifo.Transactional[byte]

	epno      uint8
	armed     bool
	crcFailed bool // current packet's CRC failed; no handshake until the next token
}

// NewOutManager builds an OUT manager over the shared stall table.
// capacity <= 0 selects DefaultPacketSize; logger may be nil.
func NewOutManager(stalls *StallTable, capacity int, logger *slog.Logger) *OutManager {
	if capacity <= 0 {
		capacity = DefaultPacketSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutManager{
		log:    logger,
		stalls: stalls,
		fifo:   fifo.New[byte](capacity),
	}
}

// SetEndpoint selects the endpoint the next Arm applies to.
func (m *OutManager) SetEndpoint(ep uint8) { m.epno = ep & 0x0f }

// Endpoint is the currently selected endpoint number.
func (m *OutManager) Endpoint() uint8 { return m.epno }

// Arm enables reception of exactly one packet on the selected endpoint. The
// flag self-clears when a packet is accepted; re-arm to receive the next.
func (m *OutManager) Arm() {
	m.armed = true
	m.log.Debug("out armed", "endpoint", m.epno)
}

// Armed reports whether a reception is pending.
func (m *OutManager) Armed() bool { return m.armed }

// ReadByte pops the oldest received byte.
func (m *OutManager) ReadByte() (byte, bool) { return m.fifo.Read() }

// Have reports whether received bytes remain unread.
func (m *OutManager) Have() bool { return !m.fifo.Empty() }

// Reset clears the receive FIFO.
func (m *OutManager) Reset() { m.fifo.Reset() }

// StartToken handles the new-token edge; a SETUP token un-stalls its target.
func (m *OutManager) StartToken(tok usb.Token) {
	m.stalls.ObserveToken(tok)
	m.crcFailed = false
}

// accepting reports whether data-phase bytes of tok should be buffered:
// selected endpoint matches, reception armed, endpoint not stalled.
func (m *OutManager) accepting(tok usb.Token) bool {
	return tok.Kind == usb.TokenOut &&
		tok.Endpoint == m.epno &&
		m.armed &&
		!m.stalls.Stalled(tok.Endpoint)
}

// RxByte provisionally buffers one data-phase byte of an accepted OUT
// transaction. Bytes of unaccepted transactions are dropped without touching
// the FIFO.
func (m *OutManager) RxByte(tok usb.Token, b byte) {
	if !m.accepting(tok) {
		return
	}
	m.fifo.Write(b)
}

// RxComplete publishes the in-flight packet after its CRC validated.
func (m *OutManager) RxComplete(tok usb.Token) {
	if !m.accepting(tok) {
		return
	}
	m.fifo.Commit()
}

// RxInvalid rolls back the in-flight packet after a CRC failure; the host
// will retransmit.
func (m *OutManager) RxInvalid(tok usb.Token) {
	if tok.Kind != usb.TokenOut {
		return
	}
	m.fifo.Discard()
	m.crcFailed = true
}

// Respond decides the handshake for an OUT token at its ready-for-response
// edge. A packet whose CRC failed gets no handshake at all: the host sees
// the timeout and retransmits, and the armed flag survives for the retry.
// The stall check uses the token's endpoint, not the selected one: a
// stalled endpoint must answer STALL even when it isn't the reception
// target. An accepted packet ACKs and consumes the armed flag.
func (m *OutManager) Respond(tok usb.Token) usb.Handshake {
	if tok.Kind != usb.TokenOut {
		return usb.HandshakeNone
	}
	if m.crcFailed {
		return usb.HandshakeNone
	}
	if m.stalls.Stalled(tok.Endpoint) {
		return usb.HandshakeSTALL
	}
	if tok.Endpoint == m.epno && m.armed {
		m.armed = false
		m.log.Debug("out accepted", "endpoint", tok.Endpoint, "buffered", m.fifo.Len())
		return usb.HandshakeACK
	}
	return usb.HandshakeNAK
}
