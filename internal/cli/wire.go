package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/tododb/internal/app"
	"github.com/example/tododb/internal/config"
	"github.com/example/tododb/internal/db"
	"github.com/example/tododb/internal/postgres"
)

// newLogger builds the logger for a command invocation. Verbose mode switches
// to the human-readable development encoder with debug output.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// buildService wires configuration, the located installation, the server
// supervisor and the provisioner into a BootstrapService.
func buildService(logger *zap.Logger) (*app.BootstrapService, *config.Config, error) {
	cfg := config.Load()

	install, err := postgres.Find(cfg.BinDir)
	if err != nil {
		return nil, nil, fmt.Errorf("locate PostgreSQL installation: %w", err)
	}
	logger.Debug("found installation",
		zap.String("bin_dir", install.BinDir),
		zap.String("version", install.Version))

	server := postgres.NewServer(postgres.Options{
		BinDir:    install.BinDir,
		DataDir:   cfg.DataDir,
		Host:      cfg.DBHost,
		Port:      cfg.DBPort,
		LogFile:   cfg.LogFile,
		Superuser: cfg.Superuser,
	}, postgres.NewRunner(), logger)

	prov := db.NewProvisioner(cfg, logger)
	return app.NewBootstrapService(cfg, server, prov, logger), cfg, nil
}
