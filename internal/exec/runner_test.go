package exec

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunShell(t *testing.T) {
	r := NewRunner()
	out, err := r.RunShell(context.Background(), "", "echo hello")
	if err != nil {
		t.Fatalf("RunShell() = %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestRunShellInput(t *testing.T) {
	r := NewRunner()
	out, err := r.RunShellInput(context.Background(), "", "cat", []byte("payload"))
	if err != nil {
		t.Fatalf("RunShellInput() = %v", err)
	}
	if string(out) != "payload" {
		t.Errorf("output = %q, want payload", out)
	}
}

func TestRunRespectsWorkDir(t *testing.T) {
	dir := t.TempDir()
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}

	r := NewRunner()
	out, err := r.RunShell(context.Background(), dir, "pwd -P")
	if err != nil {
		t.Fatalf("RunShell() = %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestRunReturnsCommandError(t *testing.T) {
	r := NewRunner()
	out, err := r.RunShell(context.Background(), "", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("expected exit error")
	}
	if !strings.Contains(string(out), "oops") {
		t.Errorf("stderr not captured: %q", out)
	}
}
