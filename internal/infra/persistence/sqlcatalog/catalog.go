// Package sqlcatalog implements catalog.Catalog over database/sql. The sqlite
// and postgres packages open the connection and pick the placeholder dialect.
package sqlcatalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sceneselect/internal/catalog"
	"sceneselect/pkg/domain"
)

// Dialect selects the bind-parameter syntax.
type Dialect int

const (
	// Question binds with "?" (SQLite).
	Question Dialect = iota
	// Dollar binds with "$1", "$2", ... (Postgres).
	Dollar
)

// timeLayout is fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		product TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		scene_id TEXT NOT NULL DEFAULT '',
		region_code TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT '',
		begin_time TEXT NOT NULL DEFAULT '',
		acquired_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT '',
		maturity TEXT NOT NULL DEFAULT '',
		software_versions TEXT NOT NULL DEFAULT '{}',
		produced_at TEXT NOT NULL DEFAULT '',
		archived_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS datasets_product_acquired ON datasets (product, acquired_time)`,
	`CREATE TABLE IF NOT EXISTS dataset_sources (
		derived_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		PRIMARY KEY (derived_id, source_id)
	)`,
	`CREATE INDEX IF NOT EXISTS dataset_sources_source ON dataset_sources (source_id)`,
}

const columns = `id, product, label, scene_id, region_code, platform, begin_time, end_time, local_path, maturity, software_versions, produced_at, archived_at`

// Catalog is a catalog.Catalog and catalog.Writer over a *sql.DB.
type Catalog struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var (
	_ catalog.Catalog = (*Catalog)(nil)
	_ catalog.Writer  = (*Catalog)(nil)
)

// New wraps db and ensures the schema exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Catalog, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply catalogue schema: %w", err)
		}
	}
	return &Catalog{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying handle.
func (c *Catalog) DB() *sql.DB { return c.db }

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Rebind rewrites "?" placeholders for the dialect.
func Rebind(d Dialect, query string) string {
	if d != Dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Catalog) q(query string) string { return Rebind(c.dialect, query) }

// Put implements catalog.Writer.
func (c *Catalog) Put(ctx context.Context, datasets ...domain.Dataset) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, ds := range datasets {
		if ds.ID == "" {
			return fmt.Errorf("dataset without id (product %s, label %s)", ds.Product, ds.Label)
		}
		versions, err := json.Marshal(ds.SoftwareVersions)
		if err != nil {
			return fmt.Errorf("encode versions %s: %w", ds.ID, err)
		}
		if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM datasets WHERE id = ?`), ds.ID); err != nil {
			return fmt.Errorf("replace %s: %w", ds.ID, err)
		}
		if _, err := tx.ExecContext(ctx, c.q(`INSERT INTO datasets (id, product, label, scene_id, region_code, platform, begin_time, acquired_time, end_time, local_path, maturity, software_versions, produced_at, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			ds.ID, ds.Product, ds.Label, ds.SceneID, ds.RegionCode, ds.Platform,
			formatTime(ds.Begin), formatTime(ds.AcquisitionTime()), formatTime(ds.End), ds.LocalPath, string(ds.Maturity),
			string(versions), formatTime(ds.ProducedAt), formatTimePtr(ds.ArchivedAt),
		); err != nil {
			return fmt.Errorf("insert %s: %w", ds.ID, err)
		}
		if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM dataset_sources WHERE derived_id = ?`), ds.ID); err != nil {
			return fmt.Errorf("replace sources %s: %w", ds.ID, err)
		}
		for _, src := range ds.SourceIDs {
			if _, err := tx.ExecContext(ctx, c.q(`INSERT INTO dataset_sources (derived_id, source_id) VALUES (?, ?)`), ds.ID, src); err != nil {
				return fmt.Errorf("insert source %s -> %s: %w", ds.ID, src, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SearchProduct implements catalog.Catalog.
func (c *Catalog) SearchProduct(ctx context.Context, product string) (catalog.Iterator, error) {
	return c.query(ctx, `SELECT `+columns+` FROM datasets WHERE product = ? ORDER BY acquired_time, id`, product)
}

// SearchTimeRange implements catalog.Catalog.
func (c *Catalog) SearchTimeRange(ctx context.Context, product string, from, to time.Time) (catalog.Iterator, error) {
	return c.query(ctx, `SELECT `+columns+` FROM datasets WHERE product = ? AND acquired_time >= ? AND acquired_time <= ? ORDER BY acquired_time, id`,
		product, formatTime(from), formatTime(to))
}

// Derived implements catalog.Catalog.
func (c *Catalog) Derived(ctx context.Context, id string) ([]domain.Dataset, error) {
	it, err := c.query(ctx, `SELECT `+prefixed("d", columns)+` FROM datasets d JOIN dataset_sources s ON s.derived_id = d.id WHERE s.source_id = ? ORDER BY d.acquired_time, d.id`, id)
	if err != nil {
		return nil, err
	}
	return catalog.Collect(it)
}

// Get implements catalog.Catalog.
func (c *Catalog) Get(ctx context.Context, id string) (domain.Dataset, error) {
	it, err := c.query(ctx, `SELECT `+columns+` FROM datasets WHERE id = ?`, id)
	if err != nil {
		return domain.Dataset{}, err
	}
	found, err := catalog.Collect(it)
	if err != nil {
		return domain.Dataset{}, err
	}
	if len(found) == 0 {
		return domain.Dataset{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return found[0], nil
}

// Archive implements catalog.Catalog.
func (c *Catalog) Archive(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stamp := formatTime(c.now())
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, c.q(`UPDATE datasets SET archived_at = ? WHERE id = ? AND archived_at IS NULL`), stamp, id); err != nil {
			return fmt.Errorf("archive %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *Catalog) query(ctx context.Context, query string, args ...any) (catalog.Iterator, error) {
	rows, err := c.db.QueryContext(ctx, c.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query catalogue: %w", err)
	}
	return &rowIterator{rows: rows, ctx: ctx, c: c}, nil
}

// rowIterator streams *sql.Rows without materializing the result set.
type rowIterator struct {
	rows *sql.Rows
	ctx  context.Context
	c    *Catalog
	cur  domain.Dataset
	err  error
	done bool
}

func (it *rowIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.done = true
		it.err = it.rows.Err()
		_ = it.rows.Close()
		return false
	}
	ds, err := scanDataset(it.rows)
	if err != nil {
		it.err = err
		_ = it.rows.Close()
		return false
	}
	if err := it.c.loadSources(it.ctx, &ds); err != nil {
		it.err = err
		_ = it.rows.Close()
		return false
	}
	it.cur = ds
	return true
}

func (it *rowIterator) Dataset() domain.Dataset { return it.cur.Clone() }
func (it *rowIterator) Err() error              { return it.err }
func (it *rowIterator) Close() error {
	it.done = true
	return it.rows.Close()
}

func (c *Catalog) loadSources(ctx context.Context, ds *domain.Dataset) error {
	rows, err := c.db.QueryContext(ctx, c.q(`SELECT source_id FROM dataset_sources WHERE derived_id = ? ORDER BY source_id`), ds.ID)
	if err != nil {
		return fmt.Errorf("query sources %s: %w", ds.ID, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return fmt.Errorf("scan source: %w", err)
		}
		ds.SourceIDs = append(ds.SourceIDs, src)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (domain.Dataset, error) {
	var (
		ds                             domain.Dataset
		begin, end, produced, versions string
		maturity                       string
		archived                       sql.NullString
	)
	if err := row.Scan(&ds.ID, &ds.Product, &ds.Label, &ds.SceneID, &ds.RegionCode, &ds.Platform,
		&begin, &end, &ds.LocalPath, &maturity, &versions, &produced, &archived); err != nil {
		return domain.Dataset{}, fmt.Errorf("scan dataset: %w", err)
	}
	var err error
	if ds.Begin, err = parseTime(begin); err != nil {
		return domain.Dataset{}, fmt.Errorf("dataset %s begin: %w", ds.ID, err)
	}
	if ds.End, err = parseTime(end); err != nil {
		return domain.Dataset{}, fmt.Errorf("dataset %s end: %w", ds.ID, err)
	}
	if ds.ProducedAt, err = parseTime(produced); err != nil {
		return domain.Dataset{}, fmt.Errorf("dataset %s produced_at: %w", ds.ID, err)
	}
	if archived.Valid && archived.String != "" {
		at, err := parseTime(archived.String)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("dataset %s archived_at: %w", ds.ID, err)
		}
		ds.ArchivedAt = &at
	}
	ds.Maturity = domain.ParseMaturity(maturity)
	if versions != "" && versions != "null" {
		if err := json.Unmarshal([]byte(versions), &ds.SoftwareVersions); err != nil {
			return domain.Dataset{}, fmt.Errorf("dataset %s versions: %w", ds.ID, err)
		}
		if len(ds.SoftwareVersions) == 0 {
			ds.SoftwareVersions = nil
		}
	}
	return ds, nil
}

func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
