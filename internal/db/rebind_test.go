package db

import "testing"

func TestRebind(t *testing.T) {
	cases := []struct {
		name   string
		driver string
		in     string
		want   string
	}{
		{"SQLiteUntouched", DriverSQLite, `SELECT * FROM t WHERE a = ? AND b = ?`, `SELECT * FROM t WHERE a = ? AND b = ?`},
		{"Postgres", DriverPostgres, `SELECT * FROM t WHERE a = ? AND b = ?`, `SELECT * FROM t WHERE a = $1 AND b = $2`},
		{"PostgresQuoted", DriverPostgres, `SELECT '?' FROM t WHERE a = ?`, `SELECT '?' FROM t WHERE a = $1`},
		{"NoPlaceholders", DriverPostgres, `SELECT 1`, `SELECT 1`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := rebind(c.driver, c.in); got != c.want {
				t.Fatalf("rebind(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
