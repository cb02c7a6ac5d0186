package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbforge/epcore/engine"
	"github.com/usbforge/epcore/usb"
)

// TestEngineControlTransferShape walks the engine through the token sequence
// of a SET_ADDRESS control transfer: SETUP with data, then the status-phase
// IN answered with a ZLP.
func TestEngineControlTransferShape(t *testing.T) {
	e := engine.New(engine.Config{})

	setup := usb.Token{Endpoint: 0, Kind: usb.TokenSetup}
	e.StartToken(setup)
	for _, b := range []byte{0x00, 0x05, 0x2a, 0x00, 0x00, 0x00, 0x00, 0x00} {
		e.RxByte(setup, b)
	}
	e.RxComplete(setup)
	require.Equal(t, usb.HandshakeACK, e.Respond(setup))

	// Controller drains the capture and registers the pending address.
	var packet []byte
	for e.Setup.Have() {
		b, _ := e.Setup.ReadByte()
		packet = append(packet, b)
	}
	require.Len(t, packet, 8)
	e.Setup.SetAddress(packet[2])

	// Status phase: prime a ZLP on EP0, DATA1.
	e.In.SetToggle(true)
	e.In.Prime(0)
	in := usb.Token{Endpoint: 0, Kind: usb.TokenIn}
	e.StartToken(in)
	require.Equal(t, usb.HandshakeNone, e.Respond(in))
	beat, ok := e.TxNext()
	require.True(t, ok)
	assert.True(t, beat.Empty)
	assert.True(t, beat.Last)
	assert.True(t, e.TxToggle())

	// The link layer applies the address after the status phase.
	addr, ok := e.AddressChange()
	require.True(t, ok)
	assert.Equal(t, uint8(0x2a), addr)
}

func TestEngineSharedStallTable(t *testing.T) {
	e := engine.New(engine.Config{})
	e.Stalls.Set(2, true)

	// Both directions of endpoint 2 answer STALL from the one table.
	assert.Equal(t, usb.HandshakeSTALL, e.Respond(usb.Token{Endpoint: 2, Kind: usb.TokenIn}))
	assert.Equal(t, usb.HandshakeSTALL, e.Respond(usb.Token{Endpoint: 2, Kind: usb.TokenOut}))

	// A SETUP to endpoint 2 un-stalls it everywhere.
	e.StartToken(usb.Token{Endpoint: 2, Kind: usb.TokenSetup})
	assert.Equal(t, usb.HandshakeNAK, e.Respond(usb.Token{Endpoint: 2, Kind: usb.TokenIn}))
	assert.Equal(t, usb.HandshakeNAK, e.Respond(usb.Token{Endpoint: 2, Kind: usb.TokenOut}))
}

func TestEngineRxRouting(t *testing.T) {
	e := engine.New(engine.Config{})
	e.Out.SetEndpoint(1)
	e.Out.Arm()

	out := usb.Token{Endpoint: 1, Kind: usb.TokenOut}
	e.StartToken(out)
	e.RxByte(out, 0x11)
	e.RxComplete(out)
	require.Equal(t, usb.HandshakeACK, e.Respond(out))

	b, ok := e.Out.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(0x11), b)
	assert.False(t, e.Setup.Have(), "OUT bytes must not leak into the SETUP capture")

	// CRC edges belong to host-to-device data phases; one attributed to an
	// IN token must not disturb an in-flight reception.
	e.Out.Arm()
	out2 := usb.Token{Endpoint: 1, Kind: usb.TokenOut, Toggle: true}
	e.StartToken(out2)
	e.RxByte(out2, 0x22)
	e.RxInvalid(usb.Token{Endpoint: 1, Kind: usb.TokenIn})
	e.RxComplete(out2)
	require.Equal(t, usb.HandshakeACK, e.Respond(out2))
	b, ok = e.Out.ReadByte()
	require.True(t, ok)
	assert.Equal(t, byte(0x22), b)
}

func TestEnginePingUnclaimed(t *testing.T) {
	e := engine.New(engine.Config{})
	// The eptri-style managers leave PING to the streaming adapters.
	assert.Equal(t, usb.HandshakeNone, e.Respond(usb.Token{Endpoint: 1, Kind: usb.TokenPing}))
}
