// Package lockfile guards a state directory against a second NamePlay server.
//
// The lock is an flock on a file inside the directory, so the kernel drops it
// when the holding process exits, cleanly or not.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "nameplay.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on dir, creating it if needed.
// A *LockError is returned when another process holds the lock.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFileName)

	// O_TRUNC would wipe the holder's pid before we know we own the lock.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(path)
		slog.Error("lockfile.Acquire: state directory in use", "lock_path", path, "holder", holder)
		return nil, &LockError{LockPath: path, Holder: holder, Cause: err}
	}

	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0)
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record pid", "lock_path", path, "error", err)
		}
	}

	slog.Debug("lockfile.Acquire: lock held", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: failed to unlock", "lock_path", l.path, "error", err)
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "lock_path", l.path, "error", err)
	}
	slog.Debug("Lock.Release: lock released", "lock_path", l.path)
	return closeErr
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another NamePlay server is using this state directory (lock file %s)", e.LockPath)
	if e.Holder != "" {
		msg += ", held by " + e.Holder
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the pid recorded in the lock file and whether it is alive.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if processRunning(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running)", pid)
}

func parsePID(content string) int {
	const prefix = "pid="
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok {
			if pid, err := strconv.Atoi(v); err == nil {
				return pid
			}
		}
	}
	return 0
}

// processRunning sends signal 0, which only checks that the pid exists.
func processRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
