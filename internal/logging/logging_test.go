package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xelth-com/claimsync/internal/config"
)

func TestSetupWritesRotatingFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "agent.log")
	closer := Setup(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	log.Printf("capture stored")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(data), "capture stored") {
		t.Errorf("log file does not contain message: %q", string(data))
	}
}

func TestSetupWithoutFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	closer := Setup(config.LogConfig{})
	if err := closer.Close(); err != nil {
		t.Errorf("no-op closer returned %v", err)
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != log.Default() {
		t.Error("nil logger should fall back to the default logger")
	}
	custom := log.New(os.Stderr, "x ", 0)
	if OrDefault(custom) != custom {
		t.Error("explicit logger should be kept")
	}
}
