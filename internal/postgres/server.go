package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotReady means the server did not answer pg_isready within the
	// configured number of attempts.
	ErrNotReady = errors.New("server did not become ready")

	// ErrLockHeld means another live postmaster owns the data directory
	// and refused to stop.
	ErrLockHeld = errors.New("data directory is locked by a running server")
)

// Options configures a Server.
type Options struct {
	BinDir    string
	DataDir   string
	Host      string
	Port      int
	LogFile   string
	Superuser string
}

// Server drives a local PostgreSQL instance through its command line tools.
type Server struct {
	opts   Options
	runner Runner
	logger *zap.Logger
	alive  func(pid int) bool
}

// NewServer returns a Server over the given installation and data directory.
func NewServer(opts Options, runner Runner, logger *zap.Logger) *Server {
	return &Server{
		opts:   opts,
		runner: runner,
		logger: logger,
		alive:  processAlive,
	}
}

func (s *Server) bin(name string) string {
	if s.opts.BinDir == "" {
		return name
	}
	return filepath.Join(s.opts.BinDir, name)
}

// Initialized reports whether the data directory already holds a cluster.
// PG_VERSION is written by initdb as its last step.
func (s *Server) Initialized() bool {
	_, err := os.Stat(filepath.Join(s.opts.DataDir, "PG_VERSION"))
	return err == nil
}

// InitDataDir runs initdb to create a fresh cluster owned by the superuser.
func (s *Server) InitDataDir(ctx context.Context) error {
	s.logger.Info("initializing data directory",
		zap.String("data_dir", s.opts.DataDir),
		zap.String("superuser", s.opts.Superuser))

	if err := os.MkdirAll(s.opts.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	err := s.runner.Run(ctx, s.bin("initdb"),
		"-D", s.opts.DataDir,
		"-U", s.opts.Superuser,
		"-A", "trust")
	if err != nil {
		return fmt.Errorf("initdb: %w", err)
	}
	return nil
}

// Start launches the server in the background via pg_ctl. It does not wait
// for readiness; use WaitReady for that.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server",
		zap.String("data_dir", s.opts.DataDir),
		zap.Int("port", s.opts.Port))

	serverArgs := fmt.Sprintf("-p %d -c listen_addresses=%s", s.opts.Port, s.opts.Host)
	err := s.runner.Run(ctx, s.bin("pg_ctl"),
		"-D", s.opts.DataDir,
		"-l", s.opts.LogFile,
		"-o", serverArgs,
		"-W", "start")
	if err != nil {
		return fmt.Errorf("pg_ctl start: %w", err)
	}
	return nil
}

// Stop shuts the server down with a fast shutdown, waiting at most timeout.
func (s *Server) Stop(ctx context.Context, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}

	s.logger.Info("stopping server", zap.String("data_dir", s.opts.DataDir))

	err := s.runner.Run(ctx, s.bin("pg_ctl"),
		"-D", s.opts.DataDir,
		"-m", "fast",
		"-t", strconv.Itoa(secs),
		"stop")
	if err != nil {
		return fmt.Errorf("pg_ctl stop: %w", err)
	}
	return nil
}

// Ready runs a single pg_isready probe.
func (s *Server) Ready(ctx context.Context) bool {
	err := s.runner.Run(ctx, s.bin("pg_isready"),
		"-h", s.opts.Host,
		"-p", strconv.Itoa(s.opts.Port),
		"-q")
	return err == nil
}

// WaitReady polls pg_isready until the server answers or attempts run out.
func (s *Server) WaitReady(ctx context.Context, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		if s.Ready(ctx) {
			s.logger.Info("server is ready", zap.Int("attempt", i+1))
			return nil
		}
		s.logger.Debug("server not ready yet",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotReady, attempts)
}

// RecoverLock inspects a leftover postmaster.pid. A lock held by a dead
// process is cleared; a lock held by a live process gets one bounded stop
// attempt, and if the process survives that, ErrLockHeld is returned. A live
// lock is never deleted.
func (s *Server) RecoverLock(ctx context.Context) error {
	lock, err := ReadLockFile(s.opts.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if !s.alive(lock.PID) {
		s.logger.Warn("removing stale lock file from dead server",
			zap.Int("pid", lock.PID),
			zap.String("path", lock.Path))
		return lock.Remove()
	}

	s.logger.Warn("data directory is locked by a running server, attempting stop",
		zap.Int("pid", lock.PID))

	if err := s.Stop(ctx, 10*time.Second); err != nil {
		s.logger.Warn("stop attempt failed", zap.Error(err))
	}

	if s.alive(lock.PID) {
		return fmt.Errorf("%w (pid %d)", ErrLockHeld, lock.PID)
	}

	// The process is gone; clear whatever it left behind.
	return lock.Remove()
}

// Diagnostics collects hints for a server that failed to come up: the tail
// of the server log and whether anything is listening on the port.
func (s *Server) Diagnostics() string {
	var b strings.Builder

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		fmt.Fprintf(&b, "nothing listening on %s\n", addr)
	} else {
		conn.Close()
		fmt.Fprintf(&b, "something is listening on %s\n", addr)
	}

	if tail := tailFile(s.opts.LogFile, 20); tail != "" {
		fmt.Fprintf(&b, "last lines of %s:\n%s", s.opts.LogFile, tail)
	}

	return b.String()
}

func tailFile(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}
