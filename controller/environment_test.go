package controller

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLocalEnvironmentFileRoundTrip(t *testing.T) {
	env := NewLocalExecutionEnvironment(t.TempDir())

	if env.FileExists("sub/file.txt") {
		t.Fatal("file should not exist yet")
	}
	if err := env.WriteFile("sub/file.txt", "content"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !env.FileExists("sub/file.txt") {
		t.Error("file should exist after write")
	}
	got, err := env.ReadFile("sub/file.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "content" {
		t.Errorf("expected content, got %q", got)
	}
}

func TestLocalEnvironmentResolvePath(t *testing.T) {
	dir := t.TempDir()
	env := NewLocalExecutionEnvironment(dir)

	if got := env.resolvePath("rel.txt"); got != filepath.Join(dir, "rel.txt") {
		t.Errorf("relative path not rooted: %q", got)
	}
	abs := filepath.Join(dir, "abs.txt")
	if got := env.resolvePath(abs); got != abs {
		t.Errorf("absolute path changed: %q", got)
	}
}

func TestLocalEnvironmentExecCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	env := NewLocalExecutionEnvironment(t.TempDir())

	result, err := env.ExecCommand(context.Background(), "echo hello", 5000)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("expected hello, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitCode)
	}
}

func TestLocalEnvironmentExecNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	env := NewLocalExecutionEnvironment(t.TempDir())

	result, err := env.ExecCommand(context.Background(), "exit 3", 5000)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitCode)
	}
}

func TestLocalEnvironmentExecTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	env := NewLocalExecutionEnvironment(t.TempDir())

	result, err := env.ExecCommand(context.Background(), "sleep 5", 100)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout flag")
	}
}

func TestIsSensitiveEnvVar(t *testing.T) {
	sensitive := []string{"ANTHROPIC_API_KEY", "my_secret", "DB_PASSWORD", "GH_TOKEN", "AWS_CREDENTIAL"}
	for _, name := range sensitive {
		if !isSensitiveEnvVar(name) {
			t.Errorf("%s should be sensitive", name)
		}
	}
	safe := []string{"PATH", "HOME", "EDITOR", "GOPATH"}
	for _, name := range safe {
		if isSensitiveEnvVar(name) {
			t.Errorf("%s should not be sensitive", name)
		}
	}
}

func TestExecResultOutput(t *testing.T) {
	if got := (ExecResult{Stdout: "out"}).Output(); got != "out" {
		t.Errorf("stdout only: %q", got)
	}
	if got := (ExecResult{Stderr: "err"}).Output(); got != "err" {
		t.Errorf("stderr only: %q", got)
	}
	if got := (ExecResult{Stdout: "out", Stderr: "err"}).Output(); got != "out\nerr" {
		t.Errorf("combined: %q", got)
	}
}
