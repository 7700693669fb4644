// Package main provides the ormkit command line tool. It inspects the
// available dialects and runs ad-hoc statements through the same execution
// pipeline applications use.
//
// Usage:
//
//	ormkit dialects                         # List dialects and their features
//	ormkit ping -c db.yaml                  # Check connectivity and pool stats
//	ormkit exec -c db.yaml "SELECT 1"       # Run a statement and print the rows
//	ormkit exec -d sqlite -u app.db --json "SELECT * FROM users"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fernandezvara/ormkit"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

// Global flags
var (
	configFile  string
	dialectName string
	databaseURL string
	verbose     bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ormkit",
		Short:         "Inspect dialects and run statements through ormkit",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	root.PersistentFlags().StringVarP(&dialectName, "dialect", "d", "", "Dialect name (overrides config)")
	root.PersistentFlags().StringVarP(&databaseURL, "url", "u", "", "Database connection URL (overrides config)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log every command to stderr")

	root.AddCommand(
		dialectsCmd(),
		pingCmd(),
		execCmd(),
	)
	return root
}

// loadConfig merges the config file with the command line overrides.
func loadConfig() (ormkit.Config, error) {
	cfg := ormkit.DefaultConfig("", "")
	if configFile != "" {
		var err error
		if cfg, err = ormkit.LoadConfig(configFile); err != nil {
			return ormkit.Config{}, err
		}
	}
	if dialectName != "" {
		cfg.Dialect = dialectName
	}
	if databaseURL != "" {
		cfg.URL = databaseURL
	}
	if verbose {
		cfg = cfg.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return cfg, nil
}

func openDB() (*ormkit.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return ormkit.New(cfg)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if code, ok := ormkit.GetErrorCode(err); ok {
			fmt.Fprintln(os.Stderr, "Code: ", code)
		}
		os.Exit(1)
	}
}
