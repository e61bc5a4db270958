package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// ArchiveDB keeps the records every run displayed. Nothing is read back
// into a later run.
type ArchiveDB struct {
	db *sql.DB
}

// RunSummary is one archived run
type RunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Filter    string    `json:"filter"`
	Items     int       `json:"items"`
	Matched   int       `json:"matched"`
	Failed    int       `json:"failed"`
}

// NewArchiveDB opens (and if needed creates) the archive at dbPath
func NewArchiveDB(dbPath string) (*ArchiveDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		filter TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		item_id TEXT NOT NULL,
		title TEXT NOT NULL,
		platform TEXT NOT NULL,
		status TEXT NOT NULL,
		matched INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		error TEXT NOT NULL,
		PRIMARY KEY (run_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (run_id, item_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &ArchiveDB{db: db}, nil
}

// Name implements pipeline.Exporter
func (a *ArchiveDB) Name() string {
	return "archive"
}

// Export implements pipeline.Exporter. The item and its records are
// written in one transaction.
func (a *ArchiveDB) Export(ctx context.Context, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, started_at, filter) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.Filter,
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (run_id, item_id, title, platform, status, matched, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, res.Item.ID, res.Item.Title, res.Item.Platform, res.Status, res.Matched, res.Skipped, errText,
	); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (run_id, item_id, seq, ts, author, text) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range recs {
		if _, err = stmt.ExecContext(ctx, run.ID, res.Item.ID, i, rec.Timestamp, rec.Author, rec.Text); err != nil {
			return fmt.Errorf("failed to save record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (a *ArchiveDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := a.db.QueryContext(ctx, `
	SELECT r.run_id, r.started_at, r.filter,
		COUNT(i.item_id),
		COALESCE(SUM(i.matched), 0),
		COALESCE(SUM(CASE WHEN i.error != '' THEN 1 ELSE 0 END), 0)
	FROM runs r LEFT JOIN items i ON i.run_id = r.run_id
	GROUP BY r.run_id
	ORDER BY r.started_at DESC, r.run_id
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s       RunSummary
			started int64
		)
		if err := rows.Scan(&s.RunID, &started, &s.Filter, &s.Items, &s.Matched, &s.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = time.Unix(started, 0)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// Records returns the archived records of one item in display order
func (a *ArchiveDB) Records(ctx context.Context, runID, itemID string) ([]types.CommentRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT ts, author, text FROM records WHERE run_id = ? AND item_id = ? ORDER BY seq`,
		runID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []types.CommentRecord
	for rows.Next() {
		var r types.CommentRecord
		if err := rows.Scan(&r.Timestamp, &r.Author, &r.Text); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many went
func (a *ArchiveDB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	old := `SELECT run_id FROM runs WHERE started_at < ?`
	for _, table := range []string{"records", "items"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id IN (`+old+`)`, cutoff.Unix()); err != nil {
			return 0, fmt.Errorf("failed to prune %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()

	return n, tx.Commit()
}

// Close closes the database connection
func (a *ArchiveDB) Close() error {
	return a.db.Close()
}
