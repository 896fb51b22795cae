package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/tododb/internal/app"
)

// UpCmd returns the up command
func UpCmd() *cobra.Command {
	var (
		seed     bool
		attempts int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Initialize, start and provision the local datastore",
		Long: `Bring the local PostgreSQL datastore from nothing to ready:

- Locate a PostgreSQL installation (PG_BIN, PATH, or well-known locations)
- Initialize the data directory on first run, recovering stale locks
- Start the server and wait for it to accept connections
- Create the application role and database
- Apply schema.sql and seed.sql (both idempotent)
- Write db_connection.txt and postgres.env

If the server is already running, startup is skipped and only
provisioning and artifact writing run.

Examples:
  tododb up                 # Full bootstrap with seed data
  tododb up --seed=false    # Skip seed data
  tododb up --attempts 60   # Wait up to a minute for readiness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			svc, cfg, err := buildService(logger)
			if err != nil {
				return err
			}

			res, err := svc.Up(cmd.Context(), app.UpOptions{
				SkipSeed:      !seed,
				ReadyAttempts: attempts,
				ReadyInterval: interval,
			})
			if err != nil {
				return err
			}

			if res.AlreadyRunning {
				fmt.Println("Server already running, provisioning refreshed.")
			} else if res.Initialized {
				fmt.Println("Data directory initialized, server started.")
			} else {
				fmt.Println("Server started.")
			}
			fmt.Printf("Connection: %s\n", res.URL)
			fmt.Printf("Artifacts:  %s, %s\n", cfg.ConnectionFile, cfg.EnvFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", true, "Apply seed data after the schema")
	cmd.Flags().IntVar(&attempts, "attempts", 30, "Readiness probe attempts before giving up")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between readiness probes")

	return cmd
}
