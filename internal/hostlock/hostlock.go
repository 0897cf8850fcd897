// Package hostlock guarantees a single bot process per host with an
// advisory flock on a well-known file.
package hostlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yokitheyo/gamdlbot/internal/model"
)

const DefaultPath = "/tmp/gamdl_telegram_bot.lock"

type Owner struct {
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname,omitempty"`
	StartedAt string `json:"started_at"`
}

// BusyError reports that another process holds the lock.
type BusyError struct {
	Path  string
	Owner Owner
}

func (e *BusyError) Error() string {
	if e.Owner.PID > 0 {
		return fmt.Sprintf("lock %s is held (pid=%d host=%s since=%s)", e.Path, e.Owner.PID, e.Owner.Hostname, e.Owner.StartedAt)
	}
	return fmt.Sprintf("lock %s is held by another process", e.Path)
}

func (e *BusyError) Unwrap() error { return model.ErrResourceBusy }

type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive non-blocking lock on path. The lock lives as
// long as the returned file stays open; the kernel drops it when the
// process dies.
func Acquire(path string) (*Lock, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		owner := readOwner(f)
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &BusyError{Path: path, Owner: owner}
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	owner := Owner{
		PID:       os.Getpid(),
		Hostname:  hostnameOrUnknown(),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeOwner(f, owner); err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner %s: %w", path, err)
	}
	return &Lock{path: path, file: f}, nil
}

func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}

// Inspect reads the owner record without taking the lock.
func Inspect(path string) (Owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, err
	}
	defer f.Close()
	return readOwner(f), nil
}

func readOwner(f *os.File) Owner {
	var o Owner
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return o
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return o
	}
	_ = json.Unmarshal(data, &o)
	return o
}

func writeOwner(f *os.File, o Owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(append(data, '\n'), 0); err != nil {
		return err
	}
	return f.Sync()
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
