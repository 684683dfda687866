// Package repositories persists the catalog in PostgreSQL and, for tests and
// local development, in memory.
package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moviescrud/backend/internal/db"
)

// inTx runs fn inside a transaction, committing on success and rolling back otherwise.
func inTx(ctx context.Context, pool db.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return mapError("commit transaction", err)
	}
	return nil
}

func expectOne(tag interface{ RowsAffected() int64 }, op string) error {
	if tag.RowsAffected() == 0 {
		return mapError(op, pgx.ErrNoRows)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func collectIDs(rows pgx.Rows, what string) ([]string, error) {
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("scan "+what, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
