// Command tanictl is the operator tool for a tani installation: schema
// migrations, the local session, report jobs and offline report rendering.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tani/internal/cli"
	"tani/internal/config"
	applog "tani/internal/log"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tanictl",
	Short: "Operate a tani farm bookkeeping installation",
	Long: `tanictl manages the local state of a tani installation.

Available commands:
  migrate - Apply, roll back or inspect the SQLite schema
  session - Show or clear the remembered session
  jobs    - Prune finished report jobs
  report  - Render a P&L report from a JSON file
  num     - Parse amounts the way the API does`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(migrateCmd, sessionCmd, jobsCmd, reportCmd, numCmd)
}

// loadConfig reads the environment without validating the remote backend
// settings, which most commands do not need.
func loadConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.LoadFile(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	if dbPath != "" {
		cfg.SQLiteDBPath = dbPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func newLogger(cfg *config.Config) *applog.Logger {
	return cli.SetupLogger(cfg)
}

func main() {
	cli.LoadEnvFile()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
