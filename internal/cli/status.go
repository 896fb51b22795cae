package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/tododb/internal/config"
	"github.com/example/tododb/internal/postgres"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the local datastore is running",
		Long: `Display the state of the local PostgreSQL datastore:
- Data directory (initialized or not)
- Lock file and owning process
- Connection artifacts written by 'tododb up'
- Whether the server answers on the configured port

Examples:
  tododb status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cfg := config.Load()

			install, err := postgres.Find(cfg.BinDir)
			if err != nil {
				return err
			}

			server := postgres.NewServer(postgres.Options{
				BinDir:    install.BinDir,
				DataDir:   cfg.DataDir,
				Host:      cfg.DBHost,
				Port:      cfg.DBPort,
				LogFile:   cfg.LogFile,
				Superuser: cfg.Superuser,
			}, postgres.NewRunner(), logger)

			if server.Initialized() {
				fmt.Printf("Data directory: %s (initialized)\n", cfg.DataDir)
			} else {
				fmt.Printf("Data directory: %s (not initialized)\n", cfg.DataDir)
			}

			lock, lockErr := postgres.ReadLockFile(cfg.DataDir)
			switch {
			case errors.Is(lockErr, os.ErrNotExist):
				fmt.Println("Lock file:      none")
			case lockErr != nil:
				fmt.Printf("Lock file:      unreadable (%v)\n", lockErr)
			case lock.ProcessAlive():
				fmt.Printf("Lock file:      held by pid %d (alive)\n", lock.PID)
			default:
				fmt.Printf("Lock file:      held by pid %d (dead, stale)\n", lock.PID)
			}

			for _, artifact := range []string{cfg.ConnectionFile, cfg.EnvFile} {
				if _, statErr := os.Stat(artifact); statErr == nil {
					fmt.Printf("Artifact:       %s\n", artifact)
				} else {
					fmt.Printf("Artifact:       %s (missing)\n", artifact)
				}
			}

			if server.Ready(cmd.Context()) {
				color.Green("Server:         accepting connections on %s:%d", cfg.DBHost, cfg.DBPort)
				fmt.Printf("Connection:     %s\n", cfg.URL())
				return nil
			}

			color.Red("Server:         not accepting connections on %s:%d", cfg.DBHost, cfg.DBPort)
			return fmt.Errorf("server is not running")
		},
	}

	return cmd
}
