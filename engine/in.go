package engine

import (
	"log/slog"

	"github.com/usbforge/epcore/fifo"
	"github.com/usbforge/epcore/usb"
)

// DefaultPacketSize is the FIFO capacity used when a manager's config leaves
// it zero: one full-speed bulk packet.
const DefaultPacketSize = 64

// IN manager states.
type inState uint8

const (
	inIdle inState = iota
	inPrimed
	inSendZLP
	inSendData
)

func (s inState) String() string {
	switch s {
	case inIdle:
		return "IDLE"
	case inPrimed:
		return "PRIMED"
	case inSendZLP:
		return "SEND_ZLP"
	default:
		return "SEND_DATA"
	}
}

// InManager is the host-facing transmit engine. The controller builds exactly
// one packet in the FIFO and primes an endpoint number; the manager answers
// the matching IN token with that packet (or a zero-length packet when
// nothing was queued), NAKs everything else, and honors the shared stall
// table. The data toggle is controller-owned: read and written explicitly,
// attached to every outgoing packet.
type InManager struct {
	log    *slog.Logger
	stalls *StallTable
	fifo   *fifo.Transactional[byte]

	state  inState
	epno   uint8
	toggle bool
	first  bool // next transmit beat is the packet's first byte
}

// NewInManager builds an IN manager over the shared stall table.
// maxPacketSize <= 0 selects DefaultPacketSize; logger may be nil.
func NewInManager(stalls *StallTable, maxPacketSize int, logger *slog.Logger) *InManager {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultPacketSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InManager{
		log:    logger,
		stalls: stalls,
		fifo:   fifo.New[byte](maxPacketSize),
	}
}

// WriteByte enqueues one byte of the packet under construction. It reports
// false when the packet buffer is full.
func (m *InManager) WriteByte(b byte) bool {
	if !m.fifo.Write(b) {
		return false
	}
	m.fifo.Commit()
	return true
}

// Prime declares the queued packet ready to transmit on endpoint ep. With an
// empty FIFO this primes a zero-length packet. Priming a stalled endpoint is
// ignored; the endpoint keeps answering STALL until the stall clears.
func (m *InManager) Prime(ep uint8) {
	m.epno = ep & 0x0f
	if m.state == inIdle && !m.stalls.Stalled(m.epno) {
		m.state = inPrimed
		m.log.Debug("in primed", "endpoint", m.epno, "bytes", m.fifo.Len())
	}
}

// Reset clears the packet buffer without transmitting and returns the
// manager to IDLE.
func (m *InManager) Reset() {
	m.fifo.Reset()
	m.state = inIdle
	m.first = false
}

// SetToggle writes the transmit data toggle (false = DATA0).
func (m *InManager) SetToggle(v bool) { m.toggle = v }

// Toggle reads the data toggle attached to outgoing packets.
func (m *InManager) Toggle() bool { return m.toggle }

// Idle reports whether no packet is primed or transmitting.
func (m *InManager) Idle() bool { return m.state == inIdle }

// Have reports whether bytes wait in the transmit FIFO.
func (m *InManager) Have() bool { return !m.fifo.Empty() }

// Endpoint is the endpoint number last primed.
func (m *InManager) Endpoint() uint8 { return m.epno }

// StartToken handles the new-token edge; a SETUP token un-stalls its target.
func (m *InManager) StartToken(tok usb.Token) {
	m.stalls.ObserveToken(tok)
}

// Respond decides the reaction to an IN token at its ready-for-response
// edge. HandshakeNone means a DATA packet follows: the link layer must drain
// it through TxNext. Stall precedence is absolute; a stalled endpoint
// answers STALL even with data queued.
func (m *InManager) Respond(tok usb.Token) usb.Handshake {
	if !tok.IsIn() {
		return usb.HandshakeNone
	}
	stalled := m.stalls.Stalled(tok.Endpoint)

	switch m.state {
	case inIdle:
		if stalled {
			return usb.HandshakeSTALL
		}
		return usb.HandshakeNAK

	case inPrimed:
		if stalled {
			return usb.HandshakeSTALL
		}
		if tok.Endpoint != m.epno {
			// Another endpoint is being polled; keep our packet primed.
			return usb.HandshakeNAK
		}
		if m.fifo.Empty() {
			m.state = inSendZLP
		} else {
			m.state = inSendData
			m.first = true
		}
		m.log.Debug("in responding", "endpoint", m.epno, "state", m.state.String())
		return usb.HandshakeNone

	default:
		// Mid-transmission; the link layer should not ask again.
		return usb.HandshakeNone
	}
}

// TxNext pulls the next transmit beat. ok is false when no packet is being
// sent. A zero-length packet yields a single empty beat with Last set; a
// data packet streams FIFO bytes with First on the first and Last exactly on
// the final buffered byte. Consuming the last beat returns the manager to
// IDLE.
func (m *InManager) TxNext() (usb.TxByte, bool) {
	switch m.state {
	case inSendZLP:
		m.state = inIdle
		return usb.TxByte{Last: true, Empty: true}, true

	case inSendData:
		b, _ := m.fifo.Read()
		beat := usb.TxByte{
			Data:  b,
			First: m.first,
			Last:  m.fifo.Empty(),
		}
		m.first = false
		if beat.Last {
			m.state = inIdle
		}
		return beat, true

	default:
		return usb.TxByte{}, false
	}
}
