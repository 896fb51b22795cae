package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeRunner records every invocation and answers from a script keyed on the
// binary name.
type fakeRunner struct {
	calls []string
	fail  map[string]error
	after map[string]int // succeed after N failures
	seen  map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:  map[string]error{},
		after: map[string]int{},
		seen:  map[string]int{},
	}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	base := filepath.Base(name)
	r.calls = append(r.calls, base+" "+strings.Join(args, " "))
	r.seen[base]++

	if n, ok := r.after[base]; ok {
		if r.seen[base] > n {
			return nil
		}
		return fmt.Errorf("%s: not yet", base)
	}
	return r.fail[base]
}

func (r *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	return "", r.Run(ctx, name, args...)
}

func (r *fakeRunner) called(binary string) bool {
	return r.seen[filepath.Base(binary)] > 0
}

func testServer(t *testing.T, runner Runner) *Server {
	t.Helper()

	dataDir := t.TempDir()
	return NewServer(Options{
		BinDir:    "/usr/lib/postgresql/16/bin",
		DataDir:   dataDir,
		Host:      "127.0.0.1",
		Port:      5432,
		LogFile:   filepath.Join(dataDir, "server.log"),
		Superuser: "postgres",
	}, runner, zap.NewNop())
}

func TestInitialized(t *testing.T) {
	s := testServer(t, newFakeRunner())
	if s.Initialized() {
		t.Error("expected empty data dir to be uninitialized")
	}

	path := filepath.Join(s.opts.DataDir, "PG_VERSION")
	if err := os.WriteFile(path, []byte("16\n"), 0o644); err != nil {
		t.Fatalf("failed to write PG_VERSION: %v", err)
	}
	if !s.Initialized() {
		t.Error("expected data dir with PG_VERSION to be initialized")
	}
}

func TestInitDataDir(t *testing.T) {
	runner := newFakeRunner()
	s := testServer(t, runner)

	if err := s.InitDataDir(context.Background()); err != nil {
		t.Fatalf("InitDataDir failed: %v", err)
	}

	want := "initdb -D " + s.opts.DataDir + " -U postgres -A trust"
	if len(runner.calls) != 1 || runner.calls[0] != want {
		t.Errorf("expected call %q, got %v", want, runner.calls)
	}
}

func TestStartPassesServerOptions(t *testing.T) {
	runner := newFakeRunner()
	s := testServer(t, runner)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	call := runner.calls[0]
	for _, fragment := range []string{"pg_ctl", "-l " + s.opts.LogFile, "-p 5432", "listen_addresses=127.0.0.1", "start"} {
		if !strings.Contains(call, fragment) {
			t.Errorf("expected call to contain %q, got %q", fragment, call)
		}
	}
}

func TestWaitReadyRetriesUntilReady(t *testing.T) {
	runner := newFakeRunner()
	runner.after["pg_isready"] = 2
	s := testServer(t, runner)

	err := s.WaitReady(context.Background(), 5, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitReady failed: %v", err)
	}
	if runner.seen["pg_isready"] != 3 {
		t.Errorf("expected 3 probes, got %d", runner.seen["pg_isready"])
	}
}

func TestWaitReadyGivesUp(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["pg_isready"] = errors.New("connection refused")
	s := testServer(t, runner)

	err := s.WaitReady(context.Background(), 3, time.Millisecond)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if runner.seen["pg_isready"] != 3 {
		t.Errorf("expected 3 probes, got %d", runner.seen["pg_isready"])
	}
}

func TestRecoverLockNoLockFile(t *testing.T) {
	s := testServer(t, newFakeRunner())
	if err := s.RecoverLock(context.Background()); err != nil {
		t.Fatalf("expected no error without a lock file, got %v", err)
	}
}

func TestRecoverLockDeadProcess(t *testing.T) {
	runner := newFakeRunner()
	s := testServer(t, runner)
	s.alive = func(int) bool { return false }

	path := writeLockFile(t, s.opts.DataDir, "12345", s.opts.DataDir, "1735689600", "5432")

	if err := s.RecoverLock(context.Background()); err != nil {
		t.Fatalf("RecoverLock failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected stale lock file to be removed")
	}
	if runner.called("pg_ctl") {
		t.Error("expected no stop attempt for a dead process")
	}
}

func TestRecoverLockLiveProcessStops(t *testing.T) {
	runner := newFakeRunner()
	s := testServer(t, runner)

	aliveCalls := 0
	s.alive = func(int) bool {
		aliveCalls++
		return aliveCalls == 1 // alive before the stop, gone after
	}

	path := writeLockFile(t, s.opts.DataDir, "12345", s.opts.DataDir, "1735689600", "5432")

	if err := s.RecoverLock(context.Background()); err != nil {
		t.Fatalf("RecoverLock failed: %v", err)
	}
	if !runner.called("pg_ctl") {
		t.Error("expected a stop attempt for a live process")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed after the server stopped")
	}
}

func TestRecoverLockLiveProcessRefusesToStop(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["pg_ctl"] = errors.New("server does not shut down")
	s := testServer(t, runner)
	s.alive = func(int) bool { return true }

	path := writeLockFile(t, s.opts.DataDir, "12345", s.opts.DataDir, "1735689600", "5432")

	err := s.RecoverLock(context.Background())
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Error("expected live lock file to be left intact")
	}
}

func TestDiagnosticsIncludesLogTail(t *testing.T) {
	s := testServer(t, newFakeRunner())

	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("log line %d", i))
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(s.opts.LogFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write log file: %v", err)
	}

	diag := s.Diagnostics()
	if !strings.Contains(diag, "log line 29") {
		t.Errorf("expected diagnostics to contain the last log line, got %q", diag)
	}
	if strings.Contains(diag, "log line 5") {
		t.Errorf("expected diagnostics to drop early log lines, got %q", diag)
	}
}
