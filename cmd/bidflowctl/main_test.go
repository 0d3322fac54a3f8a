package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garnizeh/bidflow/internal/scheduler"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateTickBackupRestore(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "bidflow.db")
	t.Setenv("BIDFLOW_DATABASE_DRIVER", "sqlite")
	t.Setenv("BIDFLOW_DATABASE_DSN", dsn)

	out, err := run(t, "migrate")
	if err != nil || !strings.Contains(out, "migrated") {
		t.Fatalf("migrate: %q %v", out, err)
	}

	out, err = run(t, "tick")
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	var sum scheduler.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil || sum.Scanned != 0 {
		t.Fatalf("tick summary %q: %v", out, err)
	}

	backup := filepath.Join(dir, "snapshot.db")
	if _, err := run(t, "backup", "--out", backup); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("backup file: %v", err)
	}
	if _, err := run(t, "backup", "--out", backup); err == nil {
		t.Fatalf("expected backup to refuse an existing target")
	}

	if _, err := run(t, "restore", "--in", backup); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestBackup_RejectsPostgres(t *testing.T) {
	t.Setenv("BIDFLOW_DATABASE_DRIVER", "pgx")
	if _, err := run(t, "backup"); err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("expected sqlite-only error, got %v", err)
	}
}
