package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// StopCmd returns the stop command
func StopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the local datastore",
		Long: `Shut down the local PostgreSQL server with a fast shutdown,
waiting up to --timeout for it to exit.

Examples:
  tododb stop
  tododb stop --timeout 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			svc, _, err := buildService(logger)
			if err != nil {
				return err
			}

			if err := svc.Down(cmd.Context(), timeout); err != nil {
				return err
			}
			fmt.Println("Server stopped.")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for shutdown")

	return cmd
}
