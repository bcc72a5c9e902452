// Package catalog records segmentation runs and the files they exported in
// a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Catalog is a handle to the export catalog.
type Catalog struct {
	db *sql.DB
}

// Run is one segmentation run.
type Run struct {
	ID         string    `json:"runId"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Clusters   int       `json:"clusters"`
}

// Export is one file written by a run. ClusterIndex is -1 for run-level files.
type Export struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"runId"`
	ClusterIndex int       `json:"clusterIndex"`
	Format       string    `json:"format"`
	Path         string    `json:"path"`
	Bytes        int64     `json:"bytes"`
	Points       int       `json:"points"`
	Faces        int       `json:"faces"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Open opens (creating if needed) the catalog at path and migrates it to the
// latest schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog %s: setting pragmas: %w", path, err)
	}

	c := &Catalog{db: db}
	migrations, err := migrationsFS()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := c.MigrateUp(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordRun inserts or replaces a run.
func (c *Catalog) RecordRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: id is required")
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, source, started_at, finished_at, rows, cols, clusters)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.Rows, r.Cols, r.Clusters)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecordExport inserts an export row and returns its id. Callers record a
// file only after it has been renamed into place.
func (c *Catalog) RecordExport(ctx context.Context, e Export) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO exports (run_id, cluster_index, format, path, bytes, points, faces, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.ClusterIndex, e.Format, e.Path, e.Bytes, e.Points, e.Faces, e.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("record export %s: %w", e.Path, err)
	}
	return res.LastInsertId()
}

// GetRun returns the run with the given id.
func (c *Catalog) GetRun(ctx context.Context, id string) (Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT run_id, source, started_at, finished_at, rows, cols, clusters
		FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, source, started_at, finished_at, rows, cols, clusters
		FROM runs ORDER BY finished_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListExports returns the files recorded for a run in insertion order.
func (c *Catalog) ListExports(ctx context.Context, runID string) ([]Export, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT export_id, run_id, cluster_index, format, path, bytes, points, faces, created_at
		FROM exports WHERE run_id = ? ORDER BY export_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list exports for %s: %w", runID, err)
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var e Export
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.ClusterIndex, &e.Format, &e.Path, &e.Bytes, &e.Points, &e.Faces, &created); err != nil {
			return nil, fmt.Errorf("list exports for %s: %w", runID, err)
		}
		e.CreatedAt = time.UnixMilli(created)
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (Run, error) {
	var r Run
	var started, finished int64
	if err := s.Scan(&r.ID, &r.Source, &started, &finished, &r.Rows, &r.Cols, &r.Clusters); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return r, nil
}
