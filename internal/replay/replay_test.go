package replay

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ilog "github.com/usbforge/epcore/internal/log"
)

func writeTrace(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const setAddressTrace = `
name: set address
events:
  - token: {kind: setup, endpoint: 0, toggle: false}
  - data: "00 05 2a 00 00 00 00 00"
  - crc: ok
  - expect: ack
  - read_setup: "00 05 2a 00 00 00 00 00"
  - set_address: 42
  - prime: 0
  - in_toggle: true
  - token: {kind: in, endpoint: 0, toggle: true}
  - expect: none
  - tx: zlp
  - expect_address: 42
`

func TestRunSetAddressTrace(t *testing.T) {
	trace, err := Load(writeTrace(t, setAddressTrace))
	require.NoError(t, err)
	assert.Equal(t, "set address", trace.Name)

	r := NewRunner(trace, quietLogger(), ilog.NewRaw(nil))
	require.NoError(t, r.Run(trace))
}

func TestRunOutTrace(t *testing.T) {
	trace, err := Load(writeTrace(t, `
name: out transfer
events:
  - arm: 2
  - token: {kind: out, endpoint: 2, toggle: false}
  - data: "de ad be ef"
  - crc: bad
  - expect: none
  - token: {kind: out, endpoint: 2, toggle: false}
  - data: "de ad be ef"
  - crc: ok
  - expect: ack
  - read_out: "de ad be ef"
  - token: {kind: out, endpoint: 2, toggle: true}
  - data: "01"
  - crc: ok
  - expect: nak
`))
	require.NoError(t, err)

	r := NewRunner(trace, quietLogger(), ilog.NewRaw(nil))
	require.NoError(t, r.Run(trace))
}

func TestRunReportsHandshakeMismatch(t *testing.T) {
	trace, err := Load(writeTrace(t, `
name: mismatch
events:
  - token: {kind: out, endpoint: 1, toggle: false}
  - crc: ok
  - expect: ack
`))
	require.NoError(t, err)

	r := NewRunner(trace, quietLogger(), ilog.NewRaw(nil))
	err = r.Run(trace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 3")
	assert.Contains(t, err.Error(), "handshake mismatch")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no events",
			body: "name: empty\nevents: []\n",
			want: "no events",
		},
		{
			name: "two operations in one event",
			body: "events:\n  - {crc: ok, expect: ack}\n",
			want: "exactly one operation",
		},
		{
			name: "bad token kind",
			body: "events:\n  - token: {kind: sof, endpoint: 0}\n",
			want: "unknown token kind",
		},
		{
			name: "bad crc value",
			body: "events:\n  - crc: maybe\n",
			want: "crc must be ok or bad",
		},
		{
			name: "bad expectation",
			body: "events:\n  - expect: retry\n",
			want: "unknown expectation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTrace(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read trace")
}

func TestParseHex(t *testing.T) {
	got, err := parseHex("00 ff 2a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x2a}, got)

	_, err = parseHex("zz")
	require.Error(t, err)

	got, err = parseHex("zlp")
	require.NoError(t, err)
	assert.Empty(t, got)
}
