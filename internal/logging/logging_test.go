package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug"}, dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("turn applied", zap.String("session_id", "s-1"))
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "autodidact.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"s-1"`) {
		t.Fatalf("log line missing structured field: %s", data)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.log")
	logger, err := New(Config{Level: "warn", File: path}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Fatalf("unexpected log contents: %s", data)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}, t.TempDir()); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
