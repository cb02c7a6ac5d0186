package engine

import (
	"log/slog"

	"github.com/usbforge/epcore/usb"
)

// Config sizes the engine's packet buffers and selects its logger.
type Config struct {
	// InPacketSize is the IN manager FIFO capacity (one packet).
	// Zero selects DefaultPacketSize.
	InPacketSize int
	// OutCapacity is the OUT manager FIFO capacity.
	// Zero selects DefaultPacketSize.
	OutCapacity int
	// Logger receives debug-level decision logs. Nil selects slog.Default().
	Logger *slog.Logger
}

// Engine ties the three transaction managers to one shared stall table and
// dispatches link-layer events to them. The managers remain individually
// usable; the engine is the wiring a device core would otherwise provide,
// and the single entry point the replay harness drives.
type Engine struct {
	Setup  *SetupCapture
	In     *InManager
	Out    *OutManager
	Stalls *StallTable

	log *slog.Logger
}

// New builds a fully wired engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stalls := NewStallTable()
	return &Engine{
		Setup:  NewSetupCapture(stalls, logger),
		In:     NewInManager(stalls, cfg.InPacketSize, logger),
		Out:    NewOutManager(stalls, cfg.OutCapacity, logger),
		Stalls: stalls,
		log:    logger,
	}
}

// StartToken delivers the new-token edge to every manager.
func (e *Engine) StartToken(tok usb.Token) {
	e.log.Debug("token", "token", tok.String())
	e.Setup.StartToken(tok)
	e.In.StartToken(tok)
	e.Out.StartToken(tok)
}

// RxByte delivers one data-phase byte to the manager owning the token kind.
func (e *Engine) RxByte(tok usb.Token, b byte) {
	switch tok.Kind {
	case usb.TokenSetup:
		e.Setup.RxByte(tok, b)
	case usb.TokenOut:
		e.Out.RxByte(tok, b)
	}
}

// RxComplete signals that the data phase finished with a valid CRC. Only
// host-to-device tokens carry one.
func (e *Engine) RxComplete(tok usb.Token) {
	if !tok.IsOut() {
		return
	}
	e.Setup.RxComplete(tok)
	e.Out.RxComplete(tok)
}

// RxInvalid signals a CRC failure; in-flight buffering rolls back.
func (e *Engine) RxInvalid(tok usb.Token) {
	if !tok.IsOut() {
		return
	}
	e.Setup.RxInvalid(tok)
	e.Out.RxInvalid(tok)
}

// Respond produces the engine's single, mutually exclusive handshake for the
// transaction at its ready-for-response edge. HandshakeNone for an IN token
// means a DATA packet follows via TxNext; for other kinds it means no
// manager claims the transaction.
func (e *Engine) Respond(tok usb.Token) usb.Handshake {
	var h usb.Handshake
	switch tok.Kind {
	case usb.TokenSetup:
		h = e.Setup.Respond(tok)
	case usb.TokenIn:
		h = e.In.Respond(tok)
	case usb.TokenOut:
		h = e.Out.Respond(tok)
	default:
		h = usb.HandshakeNone
	}
	e.log.Debug("respond", "token", tok.String(), "handshake", h.String())
	return h
}

// TxNext pulls the next device-to-host transmit beat.
func (e *Engine) TxNext() (usb.TxByte, bool) { return e.In.TxNext() }

// TxToggle is the data toggle attached to outgoing packets.
func (e *Engine) TxToggle() bool { return e.In.Toggle() }

// AddressChange reports and consumes a pending device-address update for the
// link layer to apply.
func (e *Engine) AddressChange() (uint8, bool) { return e.Setup.AddressChange() }
