// Package migrate applies the embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/moviescrud/backend/migrations"
)

const (
	maxRetries  = 3
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Status describes one migration and whether it has been applied.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Up applies every pending migration, retrying transient failures.
func Up(ctx context.Context, dsn string, logger *slog.Logger) error {
	return withProvider(dsn, migrations.FS, func(p *goose.Provider) error {
		return UpWith(ctx, p, logger)
	})
}

// UpWith runs Up on an existing provider.
func UpWith(ctx context.Context, p *goose.Provider, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseBackoff
	policy.MaxInterval = maxBackoff

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		results, err := p.Up(ctx)
		for _, res := range results {
			if res.Error != nil {
				continue
			}
			logger.Info("applied migration",
				slog.Int64("version", res.Source.Version),
				slog.String("path", res.Source.Path),
				slog.Duration("duration", res.Duration),
			)
		}
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(fmt.Errorf("apply migrations: %w", err))
		}
		logger.Warn("transient error applying migrations",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxRetries),
			slog.String("error", err.Error()),
		)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries-1), ctx))
}

// List reports every known migration with its applied state.
func List(ctx context.Context, dsn string) ([]Status, error) {
	var out []Status
	err := withProvider(dsn, migrations.FS, func(p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, st := range statuses {
			out = append(out, Status{
				Version:   st.Source.Version,
				Path:      st.Source.Path,
				Applied:   st.State == goose.StateApplied,
				AppliedAt: st.AppliedAt,
			})
		}
		return nil
	})
	return out, err
}

func withProvider(dsn string, fsys fs.FS, fn func(*goose.Provider) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	return fn(p)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
