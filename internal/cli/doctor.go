package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/tododb/internal/config"
	"github.com/example/tododb/internal/postgres"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the datastore environment",
		Long: `Comprehensive environment health check for the datastore.

Validates:
- PostgreSQL installation (initdb, pg_ctl, pg_isready)
- Data directory and lock file state
- Server reachability on the configured port
- schema.sql and seed.sql presence
- Connection artifacts (db_connection.txt, postgres.env)

Examples:
  tododb doctor              # Run full health check
  tododb doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			results := []CheckResult{
				checkInstallation(cfg),
				checkDataDir(cfg),
				checkServer(cmd.Context(), cfg),
				checkFile("Schema file", cfg.SchemaFile, "✗"),
				checkFile("Seed file", cfg.SeedFile, "⚠"),
				checkArtifacts(cfg),
			}

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, glyph(r.Status))
				}
				fmt.Println()

				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n  %s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found. Run 'tododb up' to bootstrap the datastore.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func glyph(status string) string {
	switch status {
	case "✓":
		return color.GreenString(status)
	case "⚠":
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}

// checkInstallation verifies the PostgreSQL binaries can be located
func checkInstallation(cfg *config.Config) CheckResult {
	install, err := postgres.Find(cfg.BinDir)
	if err != nil {
		return CheckResult{
			Name:    "Installation",
			Status:  "✗",
			Details: fmt.Sprintf("%v\nInstall PostgreSQL or set PG_BIN.", err),
		}
	}

	details := install.BinDir
	if install.Version != "" {
		details = fmt.Sprintf("%s (version %s)", install.BinDir, install.Version)
	}
	return CheckResult{Name: "Installation", Status: "✓", Details: details}
}

// checkDataDir validates the data directory and its lock file
func checkDataDir(cfg *config.Config) CheckResult {
	if _, err := os.Stat(cfg.DataDir); err != nil {
		return CheckResult{
			Name:    "Data directory",
			Status:  "⚠",
			Details: fmt.Sprintf("%s does not exist yet; 'tododb up' will create it", cfg.DataDir),
		}
	}

	if _, err := os.Stat(cfg.DataDir + "/PG_VERSION"); err != nil {
		return CheckResult{
			Name:    "Data directory",
			Status:  "⚠",
			Details: fmt.Sprintf("%s exists but is not initialized", cfg.DataDir),
		}
	}

	lock, err := postgres.ReadLockFile(cfg.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CheckResult{Name: "Data directory", Status: "✓"}
		}
		return CheckResult{
			Name:    "Data directory",
			Status:  "⚠",
			Details: fmt.Sprintf("lock file unreadable: %v", err),
		}
	}

	if !lock.ProcessAlive() {
		return CheckResult{
			Name:    "Data directory",
			Status:  "⚠",
			Details: fmt.Sprintf("stale lock from dead pid %d; 'tododb up' will clear it", lock.PID),
		}
	}
	return CheckResult{Name: "Data directory", Status: "✓"}
}

// checkServer probes the configured port
func checkServer(ctx context.Context, cfg *config.Config) CheckResult {
	install, err := postgres.Find(cfg.BinDir)
	if err != nil {
		return CheckResult{Name: "Server", Status: "✗", Details: "installation not found"}
	}

	server := postgres.NewServer(postgres.Options{
		BinDir:  install.BinDir,
		DataDir: cfg.DataDir,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
	}, postgres.NewRunner(), zap.NewNop())

	if server.Ready(ctx) {
		return CheckResult{Name: "Server", Status: "✓"}
	}
	return CheckResult{
		Name:    "Server",
		Status:  "⚠",
		Details: fmt.Sprintf("not accepting connections on %s:%d", cfg.DBHost, cfg.DBPort),
	}
}

// checkFile verifies a SQL file is present
func checkFile(name, path, missingStatus string) CheckResult {
	if _, err := os.Stat(path); err != nil {
		return CheckResult{
			Name:    name,
			Status:  missingStatus,
			Details: fmt.Sprintf("%s not found", path),
		}
	}
	return CheckResult{Name: name, Status: "✓"}
}

// checkArtifacts verifies the connection artifacts written by up
func checkArtifacts(cfg *config.Config) CheckResult {
	missing := []string{}
	for _, path := range []string{cfg.ConnectionFile, cfg.EnvFile} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:    "Artifacts",
			Status:  "⚠",
			Details: fmt.Sprintf("missing: %v; written by 'tododb up'", missing),
		}
	}
	return CheckResult{Name: "Artifacts", Status: "✓"}
}
