// Package postgres opens a dataset catalogue held in Postgres through the pgx
// database/sql driver, retrying the initial connection with backoff.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"sceneselect/internal/infra/persistence/sqlcatalog"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/sceneselect?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options tunes connection retries.
type Options struct {
	// MaxElapsed bounds the total time spent retrying the first ping.
	MaxElapsed time.Duration
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

func (o Options) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	if o.InitialInterval > 0 {
		b.InitialInterval = o.InitialInterval
	}
	if o.MaxElapsed > 0 {
		b.MaxElapsedTime = o.MaxElapsed
	}
	return backoff.WithContext(b, ctx)
}

// NewCatalog opens the catalogue at dsn (falls back to defaultDSN) and applies
// the schema. Catalogue connectivity failures are fatal to a run, so the first
// ping is retried before giving up.
func NewCatalog(ctx context.Context, dsn string, opts Options) (*sqlcatalog.Catalog, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ping := func() error { return db.PingContext(ctx) }
	if err := backoff.Retry(ping, opts.backoff(ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	cat, err := sqlcatalog.New(ctx, db, sqlcatalog.Dollar)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return cat, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
