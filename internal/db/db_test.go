package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	dbpkg "github.com/garnizeh/bidflow/internal/db"
)

func TestNew_Close_GetConn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Use in-memory SQLite
	d, err := dbpkg.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	conn := d.GetConn()
	if conn == nil {
		t.Fatalf("expected non-nil sql.DB from GetConn")
	}
	if d.Driver() != dbpkg.DriverSQLite {
		t.Fatalf("unexpected driver %q", d.Driver())
	}

	// Close should not error
	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestExec_QueryRow(t *testing.T) {
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer d.Close()

	if _, err = d.Exec(ctx, `CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("Exec create table returned error: %v", err)
	}
	if _, err := d.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "a", "foo"); err != nil {
		t.Fatalf("Exec insert returned error: %v", err)
	}

	var name string
	if err := d.QueryRow(ctx, `SELECT name FROM items WHERE id = ?`, "a").Scan(&name); err != nil {
		t.Fatalf("QueryRow scan returned error: %v", err)
	}
	if name != "foo" {
		t.Fatalf("expected name 'foo' got %q", name)
	}

	_, err = d.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, "a", "bar")
	if !dbpkg.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(ctx, `CREATE TABLE items (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	boom := errors.New("boom")
	err = d.WithTx(ctx, func(tx *dbpkg.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO items (id) VALUES (?)`, "x"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard insert, got %d rows", count)
	}

	if err := d.WithTx(ctx, func(tx *dbpkg.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO items (id) VALUES (?)`, "y")
		return err
	}); err != nil {
		t.Fatalf("commit path: %v", err)
	}
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected committed row, got %d", count)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := dbpkg.Open(context.Background(), "mysql", "whatever", nil); err == nil {
		t.Fatalf("expected error for unsupported driver, got nil")
	}
}
