// Package engine implements the per-endpoint USB 2.0 transaction managers:
// SETUP capture, the IN transmit state machine, and the one-shot-armed OUT
// receiver. The managers consume decoded tokens and data-phase bytes from a
// link layer and answer with ACK/NAK/STALL handshakes; a controller primes,
// arms, and drains them through register-style accessors.
//
// Everything here is synchronous and single-goroutine: one link-layer event
// per call, state committed inside the call, decision outputs computed from
// current state when asked.
package engine

import "github.com/usbforge/epcore/usb"

// StallTable tracks the halt flag of each endpoint number, independent of
// direction. One instance is shared by the IN and OUT managers so a stall set
// through either is visible to both.
type StallTable struct {
	stalled [usb.MaxEndpoints]bool
}

// NewStallTable returns a table with every endpoint un-stalled.
func NewStallTable() *StallTable {
	return &StallTable{}
}

// Set sets or clears the stall flag for an endpoint.
func (s *StallTable) Set(ep uint8, stalled bool) {
	s.stalled[ep&0x0f] = stalled
}

// Stalled reports the stall flag for an endpoint.
func (s *StallTable) Stalled(ep uint8) bool {
	return s.stalled[ep&0x0f]
}

// ObserveToken applies the token side effects required of the stall state:
// a SETUP token un-stalls its target endpoint, so control endpoints always
// recover. [USB2.0: 8.5.3] Safe to call once per manager; clearing is
// idempotent.
func (s *StallTable) ObserveToken(tok usb.Token) {
	if tok.Kind == usb.TokenSetup {
		s.stalled[tok.Endpoint&0x0f] = false
	}
}
