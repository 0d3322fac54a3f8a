package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/bidflow/internal/db"
	"github.com/garnizeh/bidflow/pkg/repository"
)

// Repo implements the repository interfaces on top of the internal DB
// wrapper. The same SQL runs on SQLite and Postgres.
type Repo struct {
	r      db.Runner
	conn   *db.DB
	inTx   bool
	logger *slog.Logger
}

// Ensure Repo implements the public interfaces.
var _ repository.Store = (*Repo)(nil)

func New(conn *db.DB, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{r: conn, conn: conn, logger: logger}
}

// InTx runs fn with a transaction-bound repository. Nested calls join the
// outer transaction.
func (s *Repo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.conn.WithTx(ctx, func(tx *db.Tx) error {
		return fn(&Repo{r: tx, conn: s.conn, inTx: true, logger: s.logger})
	})
}

// atomic runs fn on a runner that is part of a transaction, reusing the
// current one when there is one.
func (s *Repo) atomic(ctx context.Context, fn func(r db.Runner) error) error {
	if s.inTx {
		return fn(s.r)
	}
	return s.conn.WithTx(ctx, func(tx *db.Tx) error {
		return fn(tx)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into repository errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func affectedCount(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func ms(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMs(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ms(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func nullStr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
