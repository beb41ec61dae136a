// Package lock guards a session directory against a second daemon. The
// lock is an flock on a metadata file inside the directory, so it dies
// with the process and can never outlive a crash.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const fileName = "daemon.lock"

// Info identifies the process holding a session lock.
type Info struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	Started  time.Time `json:"started"`
}

// HeldError reports that the session is already owned by another daemon.
type HeldError struct {
	Owner Info
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner.PID != 0 {
		return fmt.Sprintf("session already running (pid %d since %s, lock %s)",
			e.Owner.PID, e.Owner.Started.Format(time.RFC3339), e.Path)
	}
	return fmt.Sprintf("session already running (lock %s)", e.Path)
}

// Lock is a held session lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock for sessionDir, creating the directory
// if needed. Returns HeldError when another process owns it.
func Acquire(sessionDir string) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(sessionDir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		held := &HeldError{Owner: readOwner(path), Path: path}
		_ = f.Close()
		return nil, held
	}

	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock and removes its file. Safe on a nil receiver
// and safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// The file goes first so a racing Acquire never reads stale owner info.
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

// writeOwner replaces the lock file content with the current process's info.
func writeOwner(f *os.File) error {
	host, _ := os.Hostname()
	data, err := json.Marshal(Info{
		PID:      os.Getpid(),
		Hostname: host,
		Started:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

// readOwner parses the holder's info for diagnostics. Best effort: a
// corrupt or empty file yields a zero Info.
func readOwner(path string) Info {
	var info Info
	data, err := os.ReadFile(path)
	if err != nil {
		return info
	}
	_ = json.Unmarshal(data, &info)
	return info
}
