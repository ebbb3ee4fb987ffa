package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	tmpDir := t.TempDir()

	l, err := Acquire(tmpDir, "sale-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, FileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(data), "user=sale-1") {
		t.Errorf("lock file = %q, want user line", data)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, FileName)); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	tmpDir := t.TempDir()

	l1, err := Acquire(tmpDir, "sale-1")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(tmpDir, "sale-2")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}

	var lockErr *LockHeldError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if lockErr.PID != os.Getpid() || lockErr.UserID != "sale-1" {
		t.Errorf("holder = %+v", lockErr.Holder)
	}
}

func TestInspect(t *testing.T) {
	tmpDir := t.TempDir()

	h, err := Inspect(tmpDir)
	if err != nil || h != nil {
		t.Fatalf("Inspect(empty) = %+v, %v", h, err)
	}

	l, err := Acquire(tmpDir, "sale-1")
	if err != nil {
		t.Fatal(err)
	}
	h, err = Inspect(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if h == nil || h.PID != os.Getpid() || h.UserID != "sale-1" || h.Since.IsZero() {
		t.Errorf("Inspect(held) = %+v", h)
	}
	_ = l.Release()

	// A stale file without a holder is not reported.
	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("pid=1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	h, err = Inspect(tmpDir)
	if err != nil || h != nil {
		t.Errorf("Inspect(stale) = %+v, %v", h, err)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
