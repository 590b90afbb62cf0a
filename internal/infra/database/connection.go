package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// NewDBConnection opens the pool and pings until the database answers or
// maxWait runs out.
func NewDBConnection(ctx context.Context, connString string, maxWait time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	err = backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Ctx(ctx).Warn().Err(err).Dur("retry_in", wait).Msg("database not reachable yet")
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return db, nil
}

// EnsureSchema applies the embedded schema and seed campaigns. Safe to run on
// every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
