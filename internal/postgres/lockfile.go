package postgres

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFile is the parsed form of PGDATA/postmaster.pid. The file records the
// process that owns the data directory; only its first lines are interesting
// here.
type LockFile struct {
	Path      string
	PID       int
	DataDir   string
	Port      int
	SocketDir string
}

// ReadLockFile parses postmaster.pid from the data directory. Returns
// os.ErrNotExist (wrapped) when no lock is present.
func ReadLockFile(dataDir string) (*LockFile, error) {
	path := filepath.Join(dataDir, "postmaster.pid")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	// Line layout, per the server: pid, data dir, start time, port,
	// socket dir, listen address, shared memory key.
	lines := strings.Split(string(data), "\n")
	if len(lines) < 1 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("lock file %s is empty", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("lock file %s has malformed pid %q", path, lines[0])
	}

	lock := &LockFile{Path: path, PID: pid}
	if len(lines) > 1 {
		lock.DataDir = strings.TrimSpace(lines[1])
	}
	if len(lines) > 3 {
		lock.Port, _ = strconv.Atoi(strings.TrimSpace(lines[3]))
	}
	if len(lines) > 4 {
		lock.SocketDir = strings.TrimSpace(lines[4])
	}

	return lock, nil
}

// ProcessAlive reports whether the recorded process still exists. Signal 0
// probes without delivering; EPERM means the process exists but is owned by
// someone else, which still counts as alive.
func (l *LockFile) ProcessAlive() bool {
	return processAlive(l.PID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

// Remove deletes the lock file and any socket files the dead server left
// behind. Socket cleanup is best-effort; the lock file removal is not.
func (l *LockFile) Remove() error {
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	if l.SocketDir != "" && l.Port > 0 {
		socket := filepath.Join(l.SocketDir, fmt.Sprintf(".s.PGSQL.%d", l.Port))
		_ = os.Remove(socket)
		_ = os.Remove(socket + ".lock")
	}

	return nil
}
