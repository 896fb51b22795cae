package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/example/tododb/internal/config"
)

// ApplyFile runs the statements in a SQL file over the given connection.
// With no arguments pgx sends the text via the simple protocol, so the file
// may hold multiple statements.
func ApplyFile(ctx context.Context, conn *pgx.Conn, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if _, err := conn.Exec(ctx, string(data)); err != nil {
		return fmt.Errorf("apply %s: %w", path, err)
	}
	return nil
}

// Provisioner creates the application role and database and applies the
// schema and seed files. All of its steps are idempotent.
type Provisioner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewProvisioner returns a Provisioner for the given configuration.
func NewProvisioner(cfg *config.Config, logger *zap.Logger) *Provisioner {
	return &Provisioner{cfg: cfg, logger: logger}
}

// Provision runs the full provisioning sequence: role, database, grants,
// schema, and optionally seed data. Schema and seed failures are logged and
// tolerated; a datastore with a partial schema is still more useful than no
// datastore at all.
func (p *Provisioner) Provision(ctx context.Context, skipSeed bool) error {
	maint, err := pgx.Connect(ctx, p.cfg.MaintenanceURL())
	if err != nil {
		return fmt.Errorf("connect to maintenance database: %w", err)
	}
	defer maint.Close(ctx)

	if err := p.EnsureRole(ctx, maint); err != nil {
		return err
	}
	if err := p.EnsureDatabase(ctx, maint); err != nil {
		return err
	}
	if err := p.grantDatabase(ctx, maint); err != nil {
		p.logger.Warn("database grant failed", zap.Error(err))
	}

	admin, err := pgx.Connect(ctx, p.cfg.AdminURL())
	if err != nil {
		return fmt.Errorf("connect to application database: %w", err)
	}
	defer admin.Close(ctx)

	if err := p.grantSchema(ctx, admin); err != nil {
		p.logger.Warn("schema grant failed", zap.Error(err))
	}

	// Schema and seed run as the application role so it owns every table
	// and sequence they create. Ownership is what confers SELECT/INSERT;
	// the database- and schema-level grants above do not reach objects
	// owned by another role.
	app, err := pgx.Connect(ctx, p.cfg.URL())
	if err != nil {
		return fmt.Errorf("connect as application role: %w", err)
	}
	defer app.Close(ctx)

	if err := ApplyFile(ctx, app, p.cfg.SchemaFile); err != nil {
		p.logger.Warn("schema application failed, continuing",
			zap.String("file", p.cfg.SchemaFile),
			zap.Error(err))
	} else {
		p.logger.Info("schema applied", zap.String("file", p.cfg.SchemaFile))
	}

	// Covers tables and sequences a previous bootstrap may have created
	// under a different owner.
	if err := p.grantObjects(ctx, admin); err != nil {
		p.logger.Warn("object grant failed", zap.Error(err))
	}

	if skipSeed {
		return nil
	}

	if err := ApplyFile(ctx, app, p.cfg.SeedFile); err != nil {
		p.logger.Warn("seed application failed, continuing",
			zap.String("file", p.cfg.SeedFile),
			zap.Error(err))
	} else {
		p.logger.Info("seed applied", zap.String("file", p.cfg.SeedFile))
	}

	return nil
}

// EnsureRole creates the application role if it does not exist.
func (p *Provisioner) EnsureRole(ctx context.Context, conn *pgx.Conn) error {
	var exists bool
	err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)",
		p.cfg.DBUser).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check role %s: %w", p.cfg.DBUser, err)
	}
	if exists {
		p.logger.Debug("role already exists", zap.String("role", p.cfg.DBUser))
		return nil
	}

	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		pgx.Identifier{p.cfg.DBUser}.Sanitize(),
		quoteLiteral(p.cfg.DBPassword))
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create role %s: %w", p.cfg.DBUser, err)
	}

	p.logger.Info("role created", zap.String("role", p.cfg.DBUser))
	return nil
}

// EnsureDatabase creates the application database if it does not exist.
// CREATE DATABASE cannot run inside a transaction and has no IF NOT EXISTS,
// so existence is checked first.
func (p *Provisioner) EnsureDatabase(ctx context.Context, conn *pgx.Conn) error {
	var exists bool
	err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)",
		p.cfg.DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %s: %w", p.cfg.DBName, err)
	}
	if exists {
		p.logger.Debug("database already exists", zap.String("database", p.cfg.DBName))
		return nil
	}

	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{p.cfg.DBName}.Sanitize(),
		pgx.Identifier{p.cfg.DBUser}.Sanitize())
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create database %s: %w", p.cfg.DBName, err)
	}

	p.logger.Info("database created", zap.String("database", p.cfg.DBName))
	return nil
}

func (p *Provisioner) grantDatabase(ctx context.Context, conn *pgx.Conn) error {
	stmt := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s",
		pgx.Identifier{p.cfg.DBName}.Sanitize(),
		pgx.Identifier{p.cfg.DBUser}.Sanitize())
	_, err := conn.Exec(ctx, stmt)
	return err
}

func (p *Provisioner) grantSchema(ctx context.Context, conn *pgx.Conn) error {
	stmt := fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s",
		pgx.Identifier{p.cfg.DBUser}.Sanitize())
	_, err := conn.Exec(ctx, stmt)
	return err
}

func (p *Provisioner) grantObjects(ctx context.Context, conn *pgx.Conn) error {
	user := pgx.Identifier{p.cfg.DBUser}.Sanitize()
	for _, stmt := range []string{
		fmt.Sprintf("GRANT ALL ON ALL TABLES IN SCHEMA public TO %s", user),
		fmt.Sprintf("GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO %s", user),
	} {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
