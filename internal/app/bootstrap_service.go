package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/tododb/internal/config"
	"github.com/example/tododb/internal/db"
	"github.com/example/tododb/internal/postgres"
)

// ServerControl is the slice of the server supervisor that the bootstrap
// sequence needs.
type ServerControl interface {
	Initialized() bool
	InitDataDir(ctx context.Context) error
	RecoverLock(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context, timeout time.Duration) error
	Ready(ctx context.Context) bool
	WaitReady(ctx context.Context, attempts int, interval time.Duration) error
	Diagnostics() string
}

// Provisioner creates the application role and database and applies schema
// and seed files.
type Provisioner interface {
	Provision(ctx context.Context, skipSeed bool) error
}

// UpOptions controls the bootstrap sequence.
type UpOptions struct {
	SkipSeed      bool
	ReadyAttempts int
	ReadyInterval time.Duration
}

// Result reports what the bootstrap sequence actually did.
type Result struct {
	AlreadyRunning bool
	Initialized    bool
	URL            string
}

// BootstrapService brings a local PostgreSQL instance from nothing to a
// ready, provisioned datastore.
type BootstrapService struct {
	cfg    *config.Config
	server ServerControl
	prov   Provisioner
	logger *zap.Logger
}

// NewBootstrapService creates a BootstrapService with injected dependencies.
func NewBootstrapService(cfg *config.Config, server ServerControl, prov Provisioner, logger *zap.Logger) *BootstrapService {
	return &BootstrapService{
		cfg:    cfg,
		server: server,
		prov:   prov,
		logger: logger,
	}
}

// Up runs the full bootstrap sequence:
//  1. If the server already answers on the configured port, provision and
//     write artifacts against it; nothing is restarted.
//  2. Otherwise recover any stale data directory lock, initialize the data
//     directory on first run, start the server, and wait for readiness.
//  3. Provision role, database, schema and seed, then write the connection
//     artifacts.
//
// Readiness timeout is the only hard failure after the server starts;
// provisioning problems are logged and tolerated.
func (s *BootstrapService) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = 30
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = time.Second
	}

	res := &Result{URL: s.cfg.URL()}

	if s.server.Ready(ctx) {
		s.logger.Info("server is already running, skipping startup")
		res.AlreadyRunning = true
		return res, s.finish(ctx, opts, res)
	}

	if err := s.server.RecoverLock(ctx); err != nil {
		if errors.Is(err, postgres.ErrLockHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("recover lock: %w", err)
	}

	if !s.server.Initialized() {
		if err := s.server.InitDataDir(ctx); err != nil {
			return nil, err
		}
		res.Initialized = true
	}

	if err := s.server.Start(ctx); err != nil {
		return nil, err
	}

	if err := s.server.WaitReady(ctx, opts.ReadyAttempts, opts.ReadyInterval); err != nil {
		if errors.Is(err, postgres.ErrNotReady) {
			s.logger.Error("server failed to become ready",
				zap.String("diagnostics", s.server.Diagnostics()))
		}
		return nil, err
	}

	return res, s.finish(ctx, opts, res)
}

// finish provisions the datastore and writes the connection artifacts. The
// server is up at this point, so failures here are logged but do not fail
// the bootstrap.
func (s *BootstrapService) finish(ctx context.Context, opts UpOptions, res *Result) error {
	if err := s.prov.Provision(ctx, opts.SkipSeed); err != nil {
		s.logger.Warn("provisioning failed, continuing", zap.Error(err))

		// A server we did not start may not be ours at all. Do not
		// clobber whatever artifacts point at it with credentials it
		// just rejected.
		if res.AlreadyRunning {
			s.logger.Warn("leaving existing connection artifacts untouched")
			return nil
		}
	}

	if err := db.WriteConnectionFile(s.cfg.ConnectionFile, res.URL); err != nil {
		s.logger.Warn("could not write connection file",
			zap.String("path", s.cfg.ConnectionFile),
			zap.Error(err))
	}

	err := db.WriteEnvFile(s.cfg.EnvFile, res.URL,
		s.cfg.DBUser, s.cfg.DBPassword, s.cfg.DBName, s.cfg.DBPort)
	if err != nil {
		s.logger.Warn("could not write env file",
			zap.String("path", s.cfg.EnvFile),
			zap.Error(err))
	}

	return nil
}

// Down stops the server if it is running.
func (s *BootstrapService) Down(ctx context.Context, timeout time.Duration) error {
	if !s.server.Initialized() {
		return fmt.Errorf("data directory %s is not initialized", s.cfg.DataDir)
	}
	return s.server.Stop(ctx, timeout)
}
