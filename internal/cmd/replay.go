package cmd

import (
	"fmt"
	"log/slog"

	"github.com/usbforge/epcore/internal/log"
	"github.com/usbforge/epcore/internal/replay"
)

type Replay struct {
	Traces       []string `arg:"" name:"trace" help:"Trace files to replay" type:"existingfile"`
	InPacketSize int      `help:"Transmit buffer size in bytes" default:"64" env:"EPCORE_IN_PACKET_SIZE"`
	OutCapacity  int      `help:"Receive buffer size in bytes" default:"64" env:"EPCORE_OUT_CAPACITY"`
}

// Run is called by Kong when the replay command is executed.
func (r *Replay) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	var failed int
	for _, path := range r.Traces {
		trace, err := replay.Load(path)
		if err != nil {
			return err
		}
		// Flags size the engine unless the trace pins its own config.
		if trace.Config.InPacketSize == 0 {
			trace.Config.InPacketSize = r.InPacketSize
		}
		if trace.Config.OutCapacity == 0 {
			trace.Config.OutCapacity = r.OutCapacity
		}

		runner := replay.NewRunner(trace, logger, rawLogger)
		if err := runner.Run(trace); err != nil {
			logger.Error("trace failed", "file", path, "error", err)
			failed++
			continue
		}
		logger.Info("trace passed", "file", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d traces failed", failed, len(r.Traces))
	}
	return nil
}
