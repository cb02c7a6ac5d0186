package endpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbforge/epcore/endpoint"
	"github.com/usbforge/epcore/usb"
)

func outTok(ep uint8, toggle bool) usb.Token {
	return usb.Token{Endpoint: ep, Kind: usb.TokenOut, Toggle: toggle}
}

func pingTok(ep uint8) usb.Token {
	return usb.Token{Endpoint: ep, Kind: usb.TokenPing}
}

// deliver runs one OUT transaction; crcOK selects commit or rollback.
func deliver(e *endpoint.StreamOutEndpoint, tok usb.Token, payload []byte, crcOK bool) usb.Handshake {
	e.StartToken(tok)
	for _, b := range payload {
		e.RxByte(tok, b)
	}
	if crcOK {
		e.RxComplete(tok)
	} else {
		e.RxInvalid(tok)
	}
	return e.Respond(tok)
}

func drainStream(e *endpoint.StreamOutEndpoint) []usb.StreamByte {
	var out []usb.StreamByte
	for {
		sb, ok := e.Read()
		if !ok {
			return out
		}
		out = append(out, sb)
	}
}

func TestStreamOutAcceptCommit(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)

	h := deliver(e, outTok(1, false), []byte{0x10, 0x20, 0x30}, true)
	require.Equal(t, usb.HandshakeACK, h)
	assert.True(t, e.ExpectedToggle(), "expected toggle flips on acceptance")

	got := drainStream(e)
	require.Len(t, got, 3)
	assert.Equal(t, usb.StreamByte{Data: 0x10, First: true}, got[0])
	assert.Equal(t, usb.StreamByte{Data: 0x20}, got[1])
	assert.Equal(t, usb.StreamByte{Data: 0x30, Last: true}, got[2])
}

func TestStreamOutSingleByteMarkers(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{0x77}, true))

	got := drainStream(e)
	require.Len(t, got, 1)
	assert.Equal(t, usb.StreamByte{Data: 0x77, First: true, Last: true}, got[0])
}

func TestStreamOutCRCFailureDiscards(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{0x01, 0x02}, true))

	h := deliver(e, outTok(1, true), []byte{0xde, 0xad}, false)
	assert.Equal(t, usb.HandshakeNone, h, "a corrupt packet earns no handshake")
	assert.True(t, e.ExpectedToggle(), "toggle unchanged by the discarded packet")

	got := drainStream(e)
	require.Len(t, got, 2, "only the committed packet is readable")
	assert.Equal(t, byte(0x01), got[0].Data)
}

func TestStreamOutCorruptDuplicateNotReACKed(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{0x01}, true))

	// A stale-toggle packet would normally be re-ACK'd as a duplicate, but
	// this one arrives corrupt: stay silent so the host retries.
	h := deliver(e, outTok(1, false), []byte{0x01}, false)
	assert.Equal(t, usb.HandshakeNone, h)
	assert.True(t, e.ExpectedToggle())
	assert.Len(t, drainStream(e), 1)

	// A clean retransmission of the duplicate is re-ACK'd as before.
	h = deliver(e, outTok(1, false), []byte{0x01}, true)
	assert.Equal(t, usb.HandshakeACK, h)
}

func TestStreamOutToggleMismatchReACK(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{0x01}, true))

	// The host missed our ACK and retransmits with the old toggle: re-ACK,
	// keep nothing, flip nothing.
	h := deliver(e, outTok(1, false), []byte{0x01}, true)
	assert.Equal(t, usb.HandshakeACK, h)
	assert.True(t, e.ExpectedToggle())

	got := drainStream(e)
	assert.Len(t, got, 1, "the duplicate must not be buffered again")
}

func TestStreamOutInsufficientSpaceNAKs(t *testing.T) {
	// Buffer fits exactly one max-size packet; after one acceptance there is
	// no room to guarantee a second.
	e := endpoint.NewStreamOutEndpoint(1, 4, 4, nil)
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{1, 2, 3, 4}, true))

	assert.Equal(t, usb.HandshakeNAK, deliver(e, outTok(1, true), []byte{5}, true))
	assert.Equal(t, usb.HandshakeNAK, e.Respond(pingTok(1)))

	// Draining the stream frees space again.
	drainStream(e)
	assert.Equal(t, usb.HandshakeACK, e.Respond(pingTok(1)))
	assert.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, true), []byte{5}, true))
}

func TestStreamOutPingWithSpace(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	assert.Equal(t, usb.HandshakeACK, e.Respond(pingTok(1)))
	assert.Equal(t, usb.HandshakeNone, e.Respond(pingTok(9)))
}

func TestStreamOutForeignEndpointIgnored(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	h := deliver(e, outTok(3, false), []byte{0x01}, true)
	assert.Equal(t, usb.HandshakeNone, h)
	assert.False(t, e.Have())
	assert.False(t, e.ExpectedToggle())
}

func TestStreamOutZeroLengthPacket(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 0, nil)
	h := deliver(e, outTok(1, false), nil, true)
	assert.Equal(t, usb.HandshakeACK, h)
	assert.True(t, e.ExpectedToggle())
	assert.False(t, e.Have(), "a ZLP contributes no stream bytes")
}

func TestStreamOutNeverStalls(t *testing.T) {
	e := endpoint.NewStreamOutEndpoint(1, 4, 4, nil)
	// Exhaust space, then poke it with everything: no STALL can appear.
	require.Equal(t, usb.HandshakeACK, deliver(e, outTok(1, false), []byte{1, 2, 3, 4}, true))
	for _, tok := range []usb.Token{outTok(1, true), pingTok(1)} {
		h := deliver(e, tok, []byte{9}, true)
		assert.NotEqual(t, usb.HandshakeSTALL, h)
	}
}
