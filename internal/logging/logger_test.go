package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello")
	_ = log.Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "covwatch.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected log output")
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "error")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("quiet")
	log.Error("loud")
	_ = log.Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "covwatch.log"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if strings.Contains(out, "quiet") {
		t.Fatalf("info must be filtered at error level:\n%s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("error output missing:\n%s", out)
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "chatty"); err == nil {
		t.Fatal("want error for unknown level")
	}
}

func TestNewLogger_BadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLogger(file, ""); err == nil {
		t.Fatal("want error when log dir path is a file")
	}
}
