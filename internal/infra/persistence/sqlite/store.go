// Package sqlite opens a dataset catalogue stored in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"sceneselect/internal/infra/persistence/sqlcatalog"
)

const defaultPath = "sceneselect.db"

// pragmas let a streamed search stay open while Derived/Get run on a second
// connection, and let archive updates wait out readers.
const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// NewCatalog opens (creating if needed) the catalogue database at path.
func NewCatalog(ctx context.Context, path string) (*sqlcatalog.Catalog, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	cat, err := sqlcatalog.New(ctx, db, sqlcatalog.Question)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return cat, nil
}
