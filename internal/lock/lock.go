package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file inside a session directory.
const FileName = "LOCK"

// Holder describes the daemon recorded in a lock file.
type Holder struct {
	PID    int
	UserID string
	Since  time.Time
}

// LockHeldError is returned when another daemon holds the session lock.
type LockHeldError struct {
	Holder
	Path string
}

func (e *LockHeldError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("session lock held by PID %d for user %s (%s)", e.PID, e.UserID, e.Path)
	}
	return fmt.Sprintf("session lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock represents an acquired session lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on the session directory for the daemon
// syncing userID. Returns LockHeldError if another process already holds it.
func Acquire(sessionDir, userID string) (*Lock, error) {
	lockPath := filepath.Join(sessionDir, FileName)

	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &LockHeldError{Holder: parse(string(data)), Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nuser=%s\ntime=%s\n", os.Getpid(), userID, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Inspect reads the lock file of sessionDir without taking the lock. It
// returns nil when no daemon holds it.
func Inspect(sessionDir string) (*Holder, error) {
	lockPath := filepath.Join(sessionDir, FileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		// Stale file left by a crashed daemon.
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return nil, nil
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	h := parse(string(data))
	return &h, nil
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove lock file before closing to avoid stale files.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parse(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(val)
		case "user":
			h.UserID = val
		case "time":
			h.Since, _ = time.Parse(time.RFC3339, val)
		}
	}
	return h
}
