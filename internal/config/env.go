package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLOCKDOC_"

// loadEnvFile exports the variables in path without overriding ones the
// process already has.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file '%s': %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Storage
	s.Driver = getEnv("STORAGE_DRIVER", s.Driver)
	s.Path = getEnv("STORAGE_PATH", s.Path)
	s.DataDir = getEnv("DATA_DIR", s.DataDir)
	s.DSN = getEnv("STORAGE_DSN", s.DSN)
	s.Host = getEnv("DB_HOST", s.Host)
	s.Port = getEnvAsInt("DB_PORT", s.Port)
	s.Database = getEnv("DB_NAME", s.Database)
	s.Username = getEnv("DB_USER", s.Username)
	s.Password = getEnv("DB_PASSWORD", s.Password)
	s.SSLMode = getEnv("DB_SSLMODE", s.SSLMode)
	s.Mirror = getEnvAsBool("STORAGE_MIRROR", s.Mirror)

	e := &cfg.Editor
	e.DefaultTool = getEnv("DEFAULT_TOOL", e.DefaultTool)
	e.HistoryLimit = getEnvAsInt("HISTORY_LIMIT", e.HistoryLimit)
	e.DebugInvariants = getEnvAsBool("DEBUG_INVARIANTS", e.DebugInvariants)
	e.ReadOnly = getEnvAsBool("READ_ONLY", e.ReadOnly)

	cfg.Autosave.Enabled = getEnvAsBool("AUTOSAVE", cfg.Autosave.Enabled)
	cfg.Autosave.Schedule = getEnv("AUTOSAVE_SCHEDULE", cfg.Autosave.Schedule)
	cfg.Watch.Enabled = getEnvAsBool("WATCH", cfg.Watch.Enabled)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.File = getEnv("LOG_FILE", cfg.Logger.File)
	cfg.Logger.Console = getEnvAsBool("LOG_CONSOLE", cfg.Logger.Console)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
