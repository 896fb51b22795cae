package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/tododb/internal/cli"
	"github.com/example/tododb/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "tododb",
		Short:   "tododb - local PostgreSQL datastore for the todo app",
		Version: version.String(),
		Long: `tododb bootstraps and manages a local PostgreSQL datastore for the
todo application: it locates an installation, initializes and starts the
server, provisions the role and database, and applies the schema and seed.`,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")

	// Add subcommands
	rootCmd.AddCommand(cli.UpCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.StopCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.TodoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
