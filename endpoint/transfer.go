// Package endpoint provides streaming adapters that sit between an
// application byte stream and the transaction engine: a double-buffered
// transmit packetizer and a boundary-detecting receiver with transactional
// discard of corrupt packets. Both serve a single bulk or interrupt endpoint
// number.
package endpoint

import (
	"log/slog"

	"github.com/usbforge/epcore/usb"
)

// txBuffer is one half of the transmit double buffer.
type txBuffer struct {
	data     []byte
	staged   bool // complete packet, ready to transmit
	zlpAfter bool // record ended exactly on the packet boundary
}

// InTransferManager packetizes a continuous byte stream for IN transactions.
// The stream carries an explicit last-of-record marker; a packet is staged
// once it fills to max packet size or the record ends. With ZLP generation
// enabled, a record ending exactly on a packet boundary is followed by a
// zero-length packet so the boundary stays visible to the host.
//
// Double buffered: one packet may be assembled while the previous one
// transmits. A staged packet is retransmitted with an unchanged toggle until
// the host's ACK is observed; the toggle flips on that ACK.
type InTransferManager struct {
	log          *slog.Logger
	maxPacket    int
	generateZLPs bool

	bufs [2]txBuffer
	fill int // buffer being assembled
	send int // buffer being transmitted

	toggle  bool
	sending bool // beats of the send buffer are being pulled
	first   bool
	txPos   int
}

// NewInTransferManager builds a manager for the given max packet size.
// logger may be nil.
func NewInTransferManager(maxPacket int, generateZLPs bool, logger *slog.Logger) *InTransferManager {
	if maxPacket <= 0 {
		maxPacket = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &InTransferManager{
		log:          logger,
		maxPacket:    maxPacket,
		generateZLPs: generateZLPs,
	}
	m.bufs[0].data = make([]byte, 0, maxPacket)
	m.bufs[1].data = make([]byte, 0, maxPacket)
	return m
}

// Write consumes one stream byte, last marking the end of a record. It
// reports false when both buffers are occupied and the byte must be offered
// again later.
func (m *InTransferManager) Write(b byte, last bool) bool {
	buf := &m.bufs[m.fill]
	if buf.staged {
		return false
	}
	buf.data = append(buf.data, b)
	if len(buf.data) == m.maxPacket {
		buf.staged = true
		buf.zlpAfter = last && m.generateZLPs
		m.fill ^= 1
		m.log.Debug("packet staged", "bytes", len(buf.data), "zlpAfter", buf.zlpAfter)
		return true
	}
	if last {
		buf.staged = true
		m.fill ^= 1
		m.log.Debug("short packet staged", "bytes", len(buf.data))
	}
	return true
}

// Ready reports whether a packet is staged for the next IN token.
func (m *InTransferManager) Ready() bool { return m.bufs[m.send].staged }

// Toggle is the data PID attached to the staged packet.
func (m *InTransferManager) Toggle() bool { return m.toggle }

// SetToggle overrides the automatic toggle, e.g. after the controller
// reconfigures the endpoint.
func (m *InTransferManager) SetToggle(v bool) { m.toggle = v }

// Respond decides the reaction to an IN token. active reports whether the
// token targets this manager's endpoint. HandshakeNone means a DATA packet
// (possibly zero-length) follows via TxNext; a re-poll before the host's ACK
// was observed replays the same packet with the same toggle.
func (m *InTransferManager) Respond(active bool) usb.Handshake {
	if !active {
		return usb.HandshakeNone
	}
	if !m.bufs[m.send].staged {
		return usb.HandshakeNAK
	}
	m.sending = true
	m.first = true
	m.txPos = 0
	return usb.HandshakeNone
}

// TxNext pulls the next transmit beat of the staged packet. A staged
// zero-length packet yields one empty beat with Last set.
func (m *InTransferManager) TxNext() (usb.TxByte, bool) {
	if !m.sending {
		return usb.TxByte{}, false
	}
	buf := &m.bufs[m.send]
	if len(buf.data) == 0 {
		m.sending = false
		return usb.TxByte{Last: true, Empty: true}, true
	}
	beat := usb.TxByte{
		Data:  buf.data[m.txPos],
		First: m.first,
		Last:  m.txPos == len(buf.data)-1,
	}
	m.first = false
	m.txPos++
	if beat.Last {
		m.sending = false
	}
	return beat, true
}

// HandshakeIn delivers the host's handshake for the transmitted packet. An
// ACK releases the packet and flips the toggle; a record that ended exactly
// on the packet boundary leaves a zero-length packet staged in its place.
// Anything other than ACK keeps the packet staged for retransmission.
func (m *InTransferManager) HandshakeIn(h usb.Handshake) {
	if h != usb.HandshakeACK {
		return
	}
	buf := &m.bufs[m.send]
	if !buf.staged {
		return
	}
	m.toggle = !m.toggle
	if buf.zlpAfter {
		// The boundary marker still owes the host a ZLP.
		buf.data = buf.data[:0]
		buf.zlpAfter = false
		return
	}
	buf.staged = false
	buf.data = buf.data[:0]
	m.send ^= 1
}

// Reset drops both buffers and any transmission in progress. The toggle is
// left for the caller to set.
func (m *InTransferManager) Reset() {
	for i := range m.bufs {
		m.bufs[i].data = m.bufs[i].data[:0]
		m.bufs[i].staged = false
		m.bufs[i].zlpAfter = false
	}
	m.fill = 0
	m.send = 0
	m.sending = false
	m.txPos = 0
}
