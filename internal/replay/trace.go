// Package replay loads bus traces from YAML files and drives them against a
// transaction engine, checking the handshakes and data the engine produces
// against the expectations recorded in the trace.
package replay

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Trace is a recorded bus session: a sequence of link events interleaved with
// controller operations and expectations.
type Trace struct {
	Name   string      `yaml:"name"`
	Config TraceConfig `yaml:"config"`
	Events []Event     `yaml:"events"`
}

// TraceConfig sizes the engine the trace runs against. Zero values fall back
// to the engine defaults.
type TraceConfig struct {
	InPacketSize int `yaml:"in_packet_size"`
	OutCapacity  int `yaml:"out_capacity"`
}

// Event is a single step of a trace. Exactly one field must be set.
type Event struct {
	// Link-side events.
	Token *TokenEvent `yaml:"token,omitempty"`
	Data  string      `yaml:"data,omitempty"`
	CRC   string      `yaml:"crc,omitempty"`

	// Expectations.
	Expect        string `yaml:"expect,omitempty"`
	Tx            string `yaml:"tx,omitempty"`
	ReadSetup     string `yaml:"read_setup,omitempty"`
	ReadOut       string `yaml:"read_out,omitempty"`
	ExpectAddress *int   `yaml:"expect_address,omitempty"`

	// Controller operations.
	Prime      *int        `yaml:"prime,omitempty"`
	Arm        *int        `yaml:"arm,omitempty"`
	WriteIn    string      `yaml:"write_in,omitempty"`
	InToggle   *bool       `yaml:"in_toggle,omitempty"`
	Stall      *StallEvent `yaml:"stall,omitempty"`
	SetAddress *int        `yaml:"set_address,omitempty"`
}

// TokenEvent describes a token packet as decoded by the link layer.
type TokenEvent struct {
	Kind     string `yaml:"kind"`
	Endpoint uint8  `yaml:"endpoint"`
	Toggle   bool   `yaml:"toggle"`
}

// StallEvent sets or clears the stall condition for an endpoint.
type StallEvent struct {
	Endpoint uint8 `yaml:"endpoint"`
	Set      bool  `yaml:"set"`
}

// Load reads and parses a trace file.
func Load(path string) (*Trace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read trace %s", path)
	}
	var t Trace
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrapf(err, "parse trace %s", path)
	}
	if err := t.validate(); err != nil {
		return nil, errors.Wrapf(err, "trace %s", path)
	}
	return &t, nil
}

func (t *Trace) validate() error {
	if len(t.Events) == 0 {
		return errors.New("no events")
	}
	for i, ev := range t.Events {
		n := 0
		if ev.Token != nil {
			n++
			switch ev.Token.Kind {
			case "in", "out", "setup", "ping":
			default:
				return errors.Errorf("event %d: unknown token kind %q", i+1, ev.Token.Kind)
			}
		}
		if ev.Data != "" {
			n++
		}
		if ev.CRC != "" {
			n++
			if ev.CRC != "ok" && ev.CRC != "bad" {
				return errors.Errorf("event %d: crc must be ok or bad, got %q", i+1, ev.CRC)
			}
		}
		if ev.Expect != "" {
			n++
			switch ev.Expect {
			case "ack", "nak", "stall", "none":
			default:
				return errors.Errorf("event %d: unknown expectation %q", i+1, ev.Expect)
			}
		}
		if ev.Tx != "" {
			n++
		}
		if ev.ReadSetup != "" {
			n++
		}
		if ev.ReadOut != "" {
			n++
		}
		if ev.ExpectAddress != nil {
			n++
		}
		if ev.Prime != nil {
			n++
		}
		if ev.Arm != nil {
			n++
		}
		if ev.WriteIn != "" {
			n++
		}
		if ev.InToggle != nil {
			n++
		}
		if ev.Stall != nil {
			n++
		}
		if ev.SetAddress != nil {
			n++
		}
		if n != 1 {
			return errors.Errorf("event %d: expected exactly one operation, got %d", i+1, n)
		}
	}
	return nil
}

// parseHex decodes a whitespace-separated hex byte string like "00 05 2a".
// The keyword "zlp" and the empty string both decode to no bytes.
func parseHex(s string) ([]byte, error) {
	if s == "zlp" {
		return nil, nil
	}
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "hex byte %q", f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
