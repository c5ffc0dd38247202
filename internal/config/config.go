// Package config loads blockdoc settings: defaults, then a TOML file, then
// a .env file and BLOCKDOC_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	AppName               = "blockdoc"
	DefaultConfigFileName = "config.toml"
	DefaultEnvFileName    = ".env"
)

// Config holds the application's combined configuration.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Editor   EditorConfig   `toml:"editor"`
	Autosave AutosaveConfig `toml:"autosave"`
	Watch    WatchConfig    `toml:"watch"`
	Logger   LoggerConfig   `toml:"logger"`
	MCP      MCPConfig      `toml:"mcp"`

	// UnknownKeys lists config file keys that matched no setting.
	UnknownKeys []string `toml:"-"`
}

// StorageConfig selects and addresses the document backend.
type StorageConfig struct {
	Driver    string `toml:"driver"` // sqlite | mysql | postgres | mongodb
	Path      string `toml:"path"`   // sqlite file
	DataDir   string `toml:"data_dir"`
	DSN       string `toml:"dsn"` // full connection string, wins over the fields below
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	SSLMode   string `toml:"ssl_mode"`
	UndoNodes int    `toml:"undo_nodes"`
	Mirror    bool   `toml:"mirror"` // write a JSON copy of each saved document to DataDir
}

// EditorConfig tunes the engine and the drag gesture.
type EditorConfig struct {
	DefaultTool     string  `toml:"default_tool"`
	HistoryLimit    int     `toml:"history_limit"`
	DragThreshold   float64 `toml:"drag_threshold"`
	ScrollMargin    float64 `toml:"scroll_margin"`
	ScrollStep      float64 `toml:"scroll_step"`
	DebugInvariants bool    `toml:"debug_invariants"`
	ReadOnly        bool    `toml:"read_only"`
}

// AutosaveConfig drives the periodic save of dirty documents.
type AutosaveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron spec, e.g. "@every 30s"
}

// WatchConfig controls live reload of JSON mirrors edited on disk.
type WatchConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggerConfig configures zap and file rotation.
type LoggerConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"` // empty disables the file core
	Console    bool   `toml:"console"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// MCPConfig names the MCP server.
type MCPConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Storage: StorageConfig{
			Driver:    "sqlite",
			Path:      filepath.Join(dataDir, "blockdoc.db"),
			DataDir:   filepath.Join(dataDir, "documents"),
			SSLMode:   "disable",
			UndoNodes: 40,
		},
		Editor: EditorConfig{
			DefaultTool:   "paragraph",
			HistoryLimit:  100,
			DragThreshold: 5,
			ScrollMargin:  50,
			ScrollStep:    10,
		},
		Autosave: AutosaveConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Logger: LoggerConfig{
			Level:      "info",
			File:       filepath.Join(dataDir, "logs", "blockdoc.log"),
			Console:    false,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		MCP: MCPConfig{
			Name:    "blockdoc",
			Version: "1.0.0",
		},
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(homeDir, ".local", "share", AppName)
}

// DefaultConfigPath returns ~/.config/blockdoc/config.toml, or "" when the
// user config directory is unknown.
func DefaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, AppName, DefaultConfigFileName)
}

// Load builds the effective configuration. A missing config or env file is
// not an error; a malformed one is.
func Load(flags *Flags) (*Config, error) {
	cfg := NewDefaultConfig()

	path := DefaultConfigPath()
	envFile := DefaultEnvFileName
	if flags != nil {
		if flags.ConfigFilePath != "" {
			path = flags.ConfigFilePath
		}
		if flags.EnvFile != "" {
			envFile = flags.EnvFile
		}
	}

	if path != "" {
		unknown, err := loadFromFile(path, cfg)
		if err != nil {
			return nil, err
		}
		cfg.UnknownKeys = unknown
	}
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if flags != nil {
		flags.ApplyOverrides(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes the TOML file at filePath over cfg. Keys absent from
// the file keep their current value. It returns the keys it did not
// recognize.
func loadFromFile(filePath string, cfg *Config) ([]string, error) {
	_, err := os.Stat(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error checking config file '%s': %w", filePath, err)
	}

	metadata, err := toml.DecodeFile(filePath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
	}
	var unknown []string
	for _, k := range metadata.Undecoded() {
		unknown = append(unknown, k.String())
	}
	return unknown, nil
}

// validate checks config values and resets invalid ones to defaults.
func (c *Config) validate() error {
	defaults := NewDefaultConfig()

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = defaults.Storage.Driver
	case "sqlite", "mysql", "postgres", "mongodb":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	if c.Storage.UndoNodes <= 0 {
		c.Storage.UndoNodes = defaults.Storage.UndoNodes
	}

	if c.Editor.HistoryLimit <= 0 {
		c.Editor.HistoryLimit = defaults.Editor.HistoryLimit
	}
	if c.Editor.DragThreshold <= 0 {
		c.Editor.DragThreshold = defaults.Editor.DragThreshold
	}
	if c.Editor.ScrollMargin <= 0 {
		c.Editor.ScrollMargin = defaults.Editor.ScrollMargin
	}
	if c.Editor.ScrollStep <= 0 {
		c.Editor.ScrollStep = defaults.Editor.ScrollStep
	}

	if c.Autosave.Schedule == "" {
		c.Autosave.Schedule = defaults.Autosave.Schedule
	}

	if c.Logger.Level == "" {
		c.Logger.Level = defaults.Logger.Level
	}
	if c.MCP.Name == "" {
		c.MCP.Name = defaults.MCP.Name
	}
	if c.MCP.Version == "" {
		c.MCP.Version = defaults.MCP.Version
	}
	return nil
}
