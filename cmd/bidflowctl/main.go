// Command bidflowctl runs operator tasks against the bidflow database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/bidflow/internal/config"
	"github.com/garnizeh/bidflow/internal/db"
)

var version = "dev"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bidflowctl",
		Short:         "Operator tasks for the bidflow procurement engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(restoreCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	d, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return d, nil
}
