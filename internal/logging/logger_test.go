package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) must return a usable logger")
	}
	var typed *FileLogger
	if !IsNil(Logger(typed)) {
		t.Fatal("typed nil pointer should be detected as nil")
	}
	// Must not panic.
	OrNop(nil).Info("hello %s", "world")
}

func TestFileLoggerWritesToConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cynic-test.log")

	l := &FileLogger{level: LevelDebug}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	l.file = file
	l.logger = newTestStdLogger(file)
	l.component = "Test"

	l.Info("cycle complete score=%.1f", 61.8)
	l.Debug("should appear at debug level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[INFO] [Test]") || !strings.Contains(out, "score=61.8") {
		t.Fatalf("unexpected log output: %q", out)
	}
	if !strings.Contains(out, "[DEBUG]") {
		t.Fatalf("debug line missing: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cynic-test.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	l := &FileLogger{level: LevelWarn, file: file, logger: newTestStdLogger(file)}
	l.Debug("hidden")
	l.Warn("visible")

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Fatal("debug line should have been filtered")
	}
	if !strings.Contains(string(data), "visible") {
		t.Fatal("warn line should have been written")
	}
}
