package config

import (
	"flag"
	"fmt"
)

// Flags holds values parsed from command-line flags.
type Flags struct {
	ConfigFilePath string
	EnvFile        string
	Version        bool
	LogLevel       string
	LogFile        string
	Driver         string
	DataDir        string
	Watch          bool
	Autosave       bool
	Debug          bool

	fs *flag.FlagSet
}

// DefineFlags registers the flags on fs.
func (f *Flags) DefineFlags(fs *flag.FlagSet) {
	f.fs = fs
	fs.StringVar(&f.ConfigFilePath, "config", "", fmt.Sprintf("Path to TOML configuration file (default ~/.config/%s/%s)", AppName, DefaultConfigFileName))
	fs.StringVar(&f.EnvFile, "env", "", "Path to a .env file (default ./"+DefaultEnvFileName+")")
	fs.BoolVar(&f.Version, "version", false, "Show version information and exit")
	fs.StringVar(&f.LogLevel, "loglevel", "", "Log level (debug, info, warn, error) - Overrides config file")
	fs.StringVar(&f.LogFile, "logfile", "", "Path to write log file (empty string disables it) - Overrides config file")
	fs.StringVar(&f.Driver, "driver", "", "Storage driver (sqlite, mysql, postgres, mongodb) - Overrides config file")
	fs.StringVar(&f.DataDir, "data-dir", "", "Directory for JSON mirrors - Overrides config file")
	fs.BoolVar(&f.Watch, "watch", false, "Reload documents when their JSON mirror changes on disk")
	fs.BoolVar(&f.Autosave, "autosave", true, "Periodically save modified documents")
	fs.BoolVar(&f.Debug, "debug", false, "Validate block invariants after every mutation")
}

// Parse defines the flags on fs and parses args. It returns the remaining
// non-flag arguments.
func (f *Flags) Parse(fs *flag.FlagSet, args []string) ([]string, error) {
	f.DefineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// ApplyOverrides updates cfg with the flags that were actually set.
func (f *Flags) ApplyOverrides(cfg *Config) {
	if f.fs == nil {
		return
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "loglevel":
			cfg.Logger.Level = f.LogLevel
		case "logfile":
			cfg.Logger.File = f.LogFile
		case "driver":
			cfg.Storage.Driver = f.Driver
		case "data-dir":
			cfg.Storage.DataDir = f.DataDir
		case "watch":
			cfg.Watch.Enabled = f.Watch
		case "autosave":
			cfg.Autosave.Enabled = f.Autosave
		case "debug":
			cfg.Editor.DebugInvariants = f.Debug
		}
	})
}
