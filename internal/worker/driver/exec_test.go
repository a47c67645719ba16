package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewExecDriver_EmptyCommand(t *testing.T) {
	_, err := NewExecDriver("  ")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != KindDriverInit {
		t.Errorf("got %v, want ExecutionError(driver_init)", err)
	}
}

func TestExecDriver_CapturesStdout(t *testing.T) {
	d, err := NewExecDriver("echo")
	if err != nil {
		t.Fatalf("NewExecDriver failed: %v", err)
	}

	res, err := d.Run(context.Background(), Input{
		TaskText: "hello world",
		Workdir:  t.TempDir(),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello world") {
		t.Errorf("stdout = %q, want to contain task text", res.Stdout)
	}
	if res.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", res.Duration)
	}
}

func TestExecDriver_NonZeroExitIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	d, err := NewExecDriver(script)
	if err != nil {
		t.Fatalf("NewExecDriver failed: %v", err)
	}
	res, err := d.Run(context.Background(), Input{
		TaskText: "ignored",
		Workdir:  dir,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecDriver_Timeout(t *testing.T) {
	d, err := NewExecDriver("sleep")
	if err != nil {
		t.Fatalf("NewExecDriver failed: %v", err)
	}

	_, err = d.Run(context.Background(), Input{
		TaskText: "5",
		Workdir:  t.TempDir(),
		Timeout:  200 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
}

func TestExecDriver_MissingBinary(t *testing.T) {
	d, err := NewExecDriver("definitely-not-a-real-binary-xyz")
	if err != nil {
		t.Fatalf("NewExecDriver failed: %v", err)
	}

	_, err = d.Run(context.Background(), Input{
		TaskText: "x",
		Workdir:  t.TempDir(),
		Timeout:  time.Second,
	})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != KindDriverRuntime {
		t.Errorf("got %v, want ExecutionError(driver_runtime)", err)
	}
}
