package replay

import (
	"bytes"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/usbforge/epcore/engine"
	ilog "github.com/usbforge/epcore/internal/log"
	"github.com/usbforge/epcore/usb"
)

// Runner drives a trace against a freshly built engine.
type Runner struct {
	log *slog.Logger
	raw ilog.RawLogger

	eng *engine.Engine
	tok usb.Token
	// set once a token event has been seen; events that need a current
	// token are rejected before it.
	haveTok bool
}

// NewRunner builds a runner with an engine sized per the trace config.
func NewRunner(trace *Trace, logger *slog.Logger, raw ilog.RawLogger) *Runner {
	eng := engine.New(engine.Config{
		InPacketSize: trace.Config.InPacketSize,
		OutCapacity:  trace.Config.OutCapacity,
		Logger:       logger,
	})
	return &Runner{log: logger, raw: raw, eng: eng}
}

// Engine exposes the engine under test, for callers that want to poke at it
// between Run calls.
func (r *Runner) Engine() *engine.Engine { return r.eng }

// Run replays every event in order and returns the first expectation failure.
func (r *Runner) Run(trace *Trace) error {
	r.log.Info("replaying trace", "name", trace.Name, "events", len(trace.Events))
	for i, ev := range trace.Events {
		if err := r.step(ev); err != nil {
			return errors.Wrapf(err, "event %d", i+1)
		}
	}
	r.log.Info("trace complete", "name", trace.Name)
	return nil
}

func (r *Runner) step(ev Event) error {
	switch {
	case ev.Token != nil:
		tok, err := decodeToken(*ev.Token)
		if err != nil {
			return err
		}
		r.tok = tok
		r.haveTok = true
		r.eng.StartToken(tok)

	case ev.Data != "":
		if !r.haveTok {
			return errors.New("data before any token")
		}
		data, err := parseHex(ev.Data)
		if err != nil {
			return err
		}
		r.raw.Log(false, data)
		for _, b := range data {
			r.eng.RxByte(r.tok, b)
		}

	case ev.CRC != "":
		if !r.haveTok {
			return errors.New("crc before any token")
		}
		if ev.CRC == "ok" {
			r.eng.RxComplete(r.tok)
		} else {
			r.eng.RxInvalid(r.tok)
		}

	case ev.Expect != "":
		if !r.haveTok {
			return errors.New("expectation before any token")
		}
		want := decodeHandshake(ev.Expect)
		got := r.eng.Respond(r.tok)
		if got != want {
			return errors.Errorf("handshake mismatch on %s: want %s, got %s", r.tok.String(), want.String(), got.String())
		}

	case ev.Tx != "":
		want, err := parseHex(ev.Tx)
		if err != nil {
			return err
		}
		got, zlp, err := r.drainTx()
		if err != nil {
			return err
		}
		if ev.Tx == "zlp" && !zlp {
			return errors.New("expected a zero-length packet")
		}
		if !bytes.Equal(got, want) {
			return errors.Errorf("tx data mismatch: want % x, got % x", want, got)
		}
		r.raw.Log(true, got)

	case ev.ReadSetup != "":
		want, err := parseHex(ev.ReadSetup)
		if err != nil {
			return err
		}
		var got []byte
		for {
			b, ok := r.eng.Setup.ReadByte()
			if !ok {
				break
			}
			got = append(got, b)
		}
		if !bytes.Equal(got, want) {
			return errors.Errorf("setup data mismatch: want % x, got % x", want, got)
		}

	case ev.ReadOut != "":
		want, err := parseHex(ev.ReadOut)
		if err != nil {
			return err
		}
		var got []byte
		for {
			b, ok := r.eng.Out.ReadByte()
			if !ok {
				break
			}
			got = append(got, b)
		}
		if !bytes.Equal(got, want) {
			return errors.Errorf("out data mismatch: want % x, got % x", want, got)
		}

	case ev.ExpectAddress != nil:
		addr, ok := r.eng.AddressChange()
		if !ok {
			return errors.New("no pending address change")
		}
		if int(addr) != *ev.ExpectAddress {
			return errors.Errorf("address mismatch: want %#02x, got %#02x", *ev.ExpectAddress, addr)
		}

	case ev.Prime != nil:
		r.eng.In.Prime(uint8(*ev.Prime))

	case ev.Arm != nil:
		r.eng.Out.SetEndpoint(uint8(*ev.Arm))
		r.eng.Out.Arm()

	case ev.WriteIn != "":
		data, err := parseHex(ev.WriteIn)
		if err != nil {
			return err
		}
		for _, b := range data {
			if !r.eng.In.WriteByte(b) {
				return errors.New("transmit buffer full")
			}
		}

	case ev.InToggle != nil:
		r.eng.In.SetToggle(*ev.InToggle)

	case ev.Stall != nil:
		r.eng.Stalls.Set(ev.Stall.Endpoint, ev.Stall.Set)

	case ev.SetAddress != nil:
		r.eng.Setup.SetAddress(uint8(*ev.SetAddress))

	default:
		return errors.New("empty event")
	}
	return nil
}

// drainTx pulls transmit beats until the Last marker.
func (r *Runner) drainTx() ([]byte, bool, error) {
	var out []byte
	for {
		tb, ok := r.eng.TxNext()
		if !ok {
			return nil, false, errors.New("no transmit data pending")
		}
		if tb.Empty {
			return out, true, nil
		}
		out = append(out, tb.Data)
		if tb.Last {
			return out, false, nil
		}
	}
}

func decodeToken(ev TokenEvent) (usb.Token, error) {
	var kind usb.TokenKind
	switch ev.Kind {
	case "in":
		kind = usb.TokenIn
	case "out":
		kind = usb.TokenOut
	case "setup":
		kind = usb.TokenSetup
	case "ping":
		kind = usb.TokenPing
	default:
		return usb.Token{}, errors.Errorf("unknown token kind %q", ev.Kind)
	}
	if ev.Endpoint >= usb.MaxEndpoints {
		return usb.Token{}, errors.Errorf("endpoint %d out of range", ev.Endpoint)
	}
	return usb.Token{Endpoint: ev.Endpoint, Kind: kind, Toggle: ev.Toggle}, nil
}

func decodeHandshake(s string) usb.Handshake {
	switch s {
	case "ack":
		return usb.HandshakeACK
	case "nak":
		return usb.HandshakeNAK
	case "stall":
		return usb.HandshakeSTALL
	default:
		return usb.HandshakeNone
	}
}
