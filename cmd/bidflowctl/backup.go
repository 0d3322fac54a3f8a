package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/bidflow/internal/db"
)

var errNotSQLite = errors.New("backup and restore only apply to the sqlite driver")

func backupCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a consistent copy of the SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver != db.DriverSQLite {
				return errNotSQLite
			}
			if out == "" {
				out = cfg.DatabaseDSN + ".bak"
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("backup target %s already exists", out)
			}

			ctx := cmd.Context()
			d, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			// VACUUM INTO snapshots the database even while the server writes to it
			if _, err := d.Exec(ctx, `VACUUM INTO ?`, out); err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database backed up to %s.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "backup file (default <database>.bak)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the SQLite database with a backup; stop the server first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver != db.DriverSQLite {
				return errNotSQLite
			}
			if in == "" {
				in = cfg.DatabaseDSN + ".bak"
			}
			if err := copyFile(in, cfg.DatabaseDSN); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database restored from %s.\n", in)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "backup file (default <database>.bak)")
	return cmd
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
