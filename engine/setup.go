package engine

import (
	"log/slog"

	"github.com/usbforge/epcore/fifo"
	"github.com/usbforge/epcore/usb"
)

// SetupDepth is the capture FIFO depth: the eight bytes of a SETUP packet
// plus slack for read-out lag.
const SetupDepth = 10

// SetupCapture accepts SETUP packets on any endpoint. A device must always be
// ready for control traffic, so the capture never exerts flow control and
// always answers ACK. [USB2.0: 8.6.1]
//
// A new SETUP token resets the FIFO, discarding any unread bytes of a
// previous SETUP: retransmitted or back-to-back control transfers always
// leave the most recent packet readable.
type SetupCapture struct {
	log    *slog.Logger
	stalls *StallTable
	fifo   *fifo.Transactional[byte]

	epno    uint8
	pending bool

	appliedAddr uint8
	pendingAddr uint8
	addrChanged bool
}

// NewSetupCapture builds a capture handler sharing the given stall table.
// logger may be nil.
func NewSetupCapture(stalls *StallTable, logger *slog.Logger) *SetupCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetupCapture{
		log:    logger,
		stalls: stalls,
		fifo:   fifo.New[byte](SetupDepth),
	}
}

// StartToken handles the new-token edge. A SETUP token re-arms the capture:
// the FIFO is cleared, the endpoint number latched, and the endpoint's stall
// flag dropped.
func (s *SetupCapture) StartToken(tok usb.Token) {
	if tok.Kind != usb.TokenSetup {
		return
	}
	s.stalls.ObserveToken(tok)
	s.fifo.Reset()
	s.pending = false
	s.epno = tok.Endpoint
	s.log.Debug("setup token", "endpoint", tok.Endpoint)
}

// RxByte buffers one data-phase byte of a SETUP transaction. Bytes are held
// provisionally until the packet's CRC verdict arrives.
func (s *SetupCapture) RxByte(tok usb.Token, b byte) {
	if tok.Kind != usb.TokenSetup {
		return
	}
	s.fifo.Write(b)
}

// RxComplete publishes the captured packet once its CRC validated.
func (s *SetupCapture) RxComplete(tok usb.Token) {
	if tok.Kind != usb.TokenSetup {
		return
	}
	s.fifo.Commit()
	s.pending = true
	s.log.Debug("setup captured", "endpoint", s.epno, "bytes", s.fifo.Len())
}

// RxInvalid rolls back the in-flight packet after a CRC failure. The host
// retransmits; nothing corrupt reaches the reader.
func (s *SetupCapture) RxInvalid(tok usb.Token) {
	if tok.Kind != usb.TokenSetup {
		return
	}
	s.fifo.Discard()
}

// Respond produces the handshake for a SETUP transaction: always ACK.
func (s *SetupCapture) Respond(tok usb.Token) usb.Handshake {
	if tok.Kind != usb.TokenSetup {
		return usb.HandshakeNone
	}
	return usb.HandshakeACK
}

// ReadByte pops the oldest captured byte; the first eight reads of a capture
// yield the core SETUP packet.
func (s *SetupCapture) ReadByte() (byte, bool) {
	return s.fifo.Read()
}

// Have reports whether captured bytes remain unread.
func (s *SetupCapture) Have() bool { return !s.fifo.Empty() }

// Pending reports whether a SETUP packet completed since the last Reset.
func (s *SetupCapture) Pending() bool { return s.pending }

// Endpoint is the endpoint number of the latest SETUP token.
func (s *SetupCapture) Endpoint() uint8 { return s.epno }

// Reset clears the capture FIFO and the pending flag, re-arming immediately.
func (s *SetupCapture) Reset() {
	s.fifo.Reset()
	s.pending = false
}

// SetAddress records the device address the controller decoded from a
// SET_ADDRESS request. The engine never applies addresses itself; the link
// layer collects the change through AddressChange.
func (s *SetupCapture) SetAddress(addr uint8) {
	s.pendingAddr = addr & 0x7f
	s.addrChanged = true
}

// AddressChange reports and consumes a pending address update. ok is false
// when no update is waiting.
func (s *SetupCapture) AddressChange() (addr uint8, ok bool) {
	if !s.addrChanged {
		return 0, false
	}
	s.addrChanged = false
	s.appliedAddr = s.pendingAddr
	s.log.Debug("address change signalled", "address", s.pendingAddr)
	return s.pendingAddr, true
}

// Address returns the address last handed to the link layer.
func (s *SetupCapture) Address() uint8 { return s.appliedAddr }
