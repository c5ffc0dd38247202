package logger_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blockdoc/internal/config"
	"blockdoc/internal/logger"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	l, err := logger.New(config.LoggerConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Module(l, "engine").Info("block inserted")
	logger.Module(l, "engine").Debug("filtered out")
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"message":"block inserted"`) {
		t.Errorf("expected message in log, got %s", out)
	}
	if !strings.Contains(out, `"module":"engine"`) {
		t.Errorf("expected module field, got %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Error("debug entry should be below the info level")
	}
}

func TestNew_RejectsBadLevel(t *testing.T) {
	if _, err := logger.New(config.LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_NopWithoutOutputs(t *testing.T) {
	l, err := logger.New(config.LoggerConfig{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(0) {
		t.Error("expected a no-op logger")
	}
}

func TestModule_NilLogger(t *testing.T) {
	if logger.Module(nil, "x") == nil {
		t.Fatal("expected a usable logger")
	}
}
