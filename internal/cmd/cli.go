// Package cmd declares the CLI surface parsed by kong.
package cmd

// CLI is the root command structure.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to a config file (json/yaml/toml)" env:"EPCORE_CONFIG"`

	Replay    Replay        `cmd:"" help:"Replay a recorded bus trace against the transaction engine"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration utilities"`
}

// LogConfig holds the logging flags shared by all commands.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"EPCORE_LOG_LEVEL"`
	File    string `help:"Log file path (default: stdout/stderr)" env:"EPCORE_LOG_FILE"`
	RawFile string `help:"Raw packet log file path" env:"EPCORE_RAW_LOG_FILE"`
}
