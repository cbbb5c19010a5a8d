package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	l, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger() = %v", err)
	}
	defer l.Close()

	l.Log("board %s published version %d", "crew", 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "board crew published version 1") {
		t.Errorf("log missing message: %q", data)
	}
}

func TestDebugLoggerEmptyPathIsNoop(t *testing.T) {
	l, err := NewDebugLogger("")
	if err != nil {
		t.Fatalf("NewDebugLogger(\"\") = %v", err)
	}
	l.Log("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestNopLoggerSafeOnNil(t *testing.T) {
	var l *DebugLogger
	l.Log("no panic")
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	NopLogger().Log("also fine")
}

func TestNewDebugLoggerForDir(t *testing.T) {
	dir := t.TempDir()
	l := NewDebugLoggerForDir(dir)
	defer l.Close()

	l.Log("hello")
	data, err := os.ReadFile(filepath.Join(dir, "logs", "crewboard-debug.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log missing message: %q", data)
	}
}
