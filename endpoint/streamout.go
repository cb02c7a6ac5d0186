package endpoint

import (
	"log/slog"

	"github.com/usbforge/epcore/fifo"
	"github.com/usbforge/epcore/usb"
)

// StreamOutEndpoint receives host data on one endpoint number and produces a
// byte stream tagged with per-packet first/last markers. Packets land in a
// transactional FIFO: committed only when their CRC validated, rolled back
// otherwise, so the consumer never sees a corrupt byte.
//
// A packet is accepted only when the endpoint matches, a full max-size
// packet still fits the buffer, and the incoming toggle matches the expected
// one. A toggle mismatch means the host never saw our previous ACK, so the
// packet is re-ACK'd without being buffered again. [USB2.0: 8.6.3]
// Insufficient space answers NAK, to DATA and PING alike; this adapter never
// STALLs.
type StreamOutEndpoint struct {
	log       *slog.Logger
	epno      uint8
	maxPacket int
	fifo      *fifo.Transactional[usb.StreamByte]

	expectedToggle bool

	// One byte is held back so the final byte of a packet can carry the
	// last marker once the CRC verdict arrives.
	held      byte
	haveHeld  bool
	firstByte bool
	receiving bool // current packet passed the acceptance gate
	crcFailed bool // current packet's CRC failed; no handshake until the next token
}

// NewStreamOutEndpoint builds a receive adapter. bufferSize <= 0 selects
// twice the max packet size, the smallest buffer that can accept a packet
// while the previous one drains. logger may be nil.
func NewStreamOutEndpoint(endpointNumber uint8, maxPacketSize, bufferSize int, logger *slog.Logger) *StreamOutEndpoint {
	if maxPacketSize <= 0 {
		maxPacketSize = 64
	}
	if bufferSize <= 0 {
		bufferSize = 2 * maxPacketSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamOutEndpoint{
		log:       logger,
		epno:      endpointNumber & 0x0f,
		maxPacket: maxPacketSize,
		fifo:      fifo.New[usb.StreamByte](bufferSize),
	}
}

// Number is the endpoint number this adapter answers for.
func (e *StreamOutEndpoint) Number() uint8 { return e.epno }

// ExpectedToggle is the data toggle the next accepted packet must carry.
func (e *StreamOutEndpoint) ExpectedToggle() bool { return e.expectedToggle }

// SetExpectedToggle resets toggle tracking, for use when the controller
// reconfigures the endpoint.
func (e *StreamOutEndpoint) SetExpectedToggle(v bool) { e.expectedToggle = v }

func (e *StreamOutEndpoint) matches(tok usb.Token) bool {
	return tok.Endpoint == e.epno
}

func (e *StreamOutEndpoint) sufficientSpace() bool {
	return e.fifo.SpaceAvailable() >= e.maxPacket
}

// StartToken evaluates the acceptance gate for an arriving OUT packet. The
// gate requires room for a full max-size packet up front so a packet is
// never half-accepted.
func (e *StreamOutEndpoint) StartToken(tok usb.Token) {
	if tok.Kind != usb.TokenOut || !e.matches(tok) {
		return
	}
	e.receiving = e.sufficientSpace() && tok.Toggle == e.expectedToggle
	e.haveHeld = false
	e.firstByte = true
	e.crcFailed = false
}

// RxByte buffers one data-phase byte of an accepted packet, one beat behind
// the wire so the final byte can be marked last.
func (e *StreamOutEndpoint) RxByte(tok usb.Token, b byte) {
	if !e.receiving || tok.Kind != usb.TokenOut || !e.matches(tok) {
		return
	}
	if e.haveHeld {
		e.fifo.Write(usb.StreamByte{Data: e.held, First: e.firstByte})
		e.firstByte = false
	}
	e.held = b
	e.haveHeld = true
}

// RxComplete commits the packet after a valid CRC: the held byte is flushed
// with the last marker and the run becomes visible to the reader.
func (e *StreamOutEndpoint) RxComplete(tok usb.Token) {
	if tok.Kind != usb.TokenOut || !e.matches(tok) {
		return
	}
	if e.receiving && e.haveHeld {
		e.fifo.Write(usb.StreamByte{Data: e.held, First: e.firstByte, Last: true})
	}
	e.fifo.Commit()
	e.haveHeld = false
}

// RxInvalid rolls the packet back after a CRC failure; committed data is
// untouched and the host retransmits.
func (e *StreamOutEndpoint) RxInvalid(tok usb.Token) {
	if tok.Kind != usb.TokenOut || !e.matches(tok) {
		return
	}
	e.fifo.Discard()
	e.haveHeld = false
	e.receiving = false
	e.crcFailed = true
}

// Respond decides the handshake for OUT and PING tokens targeting this
// endpoint. An accepted packet ACKs and flips the expected toggle; a
// toggle-mismatch skip re-ACKs without flipping; lack of space NAKs. A
// packet whose CRC failed gets no handshake at all, the duplicate-looking
// ones included: the host cannot be told a corrupt packet arrived.
func (e *StreamOutEndpoint) Respond(tok usb.Token) usb.Handshake {
	if !e.matches(tok) {
		return usb.HandshakeNone
	}
	switch tok.Kind {
	case usb.TokenPing:
		if e.sufficientSpace() {
			return usb.HandshakeACK
		}
		return usb.HandshakeNAK

	case usb.TokenOut:
		if e.crcFailed {
			return usb.HandshakeNone
		}
		if tok.Toggle != e.expectedToggle {
			e.log.Debug("duplicate packet re-ACKed", "endpoint", e.epno)
			return usb.HandshakeACK
		}
		if e.receiving {
			e.receiving = false
			e.expectedToggle = !e.expectedToggle
			return usb.HandshakeACK
		}
		return usb.HandshakeNAK

	default:
		return usb.HandshakeNone
	}
}

// Read pops the oldest received stream byte with its packet boundary
// markers. Short-packet detection is the consumer's business.
func (e *StreamOutEndpoint) Read() (usb.StreamByte, bool) {
	return e.fifo.Read()
}

// Have reports whether received bytes remain unread.
func (e *StreamOutEndpoint) Have() bool { return !e.fifo.Empty() }

// Reset clears buffered data and in-flight reception state.
func (e *StreamOutEndpoint) Reset() {
	e.fifo.Reset()
	e.haveHeld = false
	e.receiving = false
	e.crcFailed = false
}
