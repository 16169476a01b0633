// Package journal keeps a local audit log of synchronization runs and the
// remote actions each run performed. The log lives in SQLite by default and
// may be pointed at PostgreSQL through the pgx driver.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/estatesync/internal/dbx"
	"github.com/dmitrijs2005/estatesync/internal/journal/migrations"
	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported journal driver")
	ErrRunNotFound       = errors.New("sync run not found")
)

type Run struct {
	ID         string
	ListingID  string
	Entries    int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type ActionRecord struct {
	ID           string
	RunID        string
	Seq          int
	Action       models.Action
	AttachmentID int64
	Kind         models.Kind
	Title        string
	ExternalID   string
	RecordedAt   time.Time
}

type Repository struct {
	db          *sql.DB
	placeholder dbx.Placeholder
	now         func() time.Time
}

func gooseDialect(driver string) (string, dbx.Placeholder, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", dbx.Question, nil
	case DriverPgx:
		return "postgres", dbx.Dollar, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	dialect, _, err := gooseDialect(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Open connects to dsn with driver, migrates the schema and returns the
// repository. The caller closes it.
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	if _, _, err := gooseDialect(driver); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := RunMigrations(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, driver)
}

// New wraps an already migrated database.
func New(db *sql.DB, driver string) (*Repository, error) {
	_, p, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, placeholder: p, now: time.Now}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) q(query string) string {
	return dbx.Rebind(r.placeholder, query)
}

func (r *Repository) BeginRun(ctx context.Context, runID, listingID string, entries int) error {
	query := `INSERT INTO sync_runs (id, listing_id, entries, status, started_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.q(query), runID, listingID, entries, StatusRunning, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// RecordAction appends an action to the run. a is nil for reorders.
func (r *Repository) RecordAction(ctx context.Context, runID string, action models.Action, a *models.Attachment) error {
	var (
		id         int64
		kind       models.Kind
		title, ext string
	)
	if a != nil {
		id, kind, title, ext = a.ID, a.Kind, a.Title, a.ExternalID
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var seq int
		err := tx.QueryRowContext(ctx, r.q(`SELECT COALESCE(MAX(seq), 0) + 1 FROM sync_actions WHERE run_id = ?`), runID).Scan(&seq)
		if err != nil {
			return fmt.Errorf("failed to select action sequence: %w", err)
		}

		query := `INSERT INTO sync_actions (id, run_id, seq, action, attachment_id, kind, title, external_id, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, r.q(query),
			uuid.NewString(), runID, seq, string(action), id, string(kind), title, ext, r.now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert sync action: %w", err)
		}
		return nil
	})
}

// FinishRun marks the run succeeded, or failed with runErr's text.
func (r *Repository) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	query := `UPDATE sync_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.q(query), status, msg, r.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `SELECT id, listing_id, entries, status, error, started_at, finished_at FROM sync_runs WHERE id = ?`
	run, err := scanRun(r.db.QueryRowContext(ctx, r.q(query), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select sync run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs of listingID, newest first.
func (r *Repository) RecentRuns(ctx context.Context, listingID string, limit int) ([]Run, error) {
	query := `SELECT id, listing_id, entries, status, error, started_at, finished_at
		FROM sync_runs WHERE listing_id = ? ORDER BY started_at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.q(query), listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListActions returns the actions of a run in the order they happened.
func (r *Repository) ListActions(ctx context.Context, runID string) ([]ActionRecord, error) {
	query := `SELECT id, run_id, seq, action, attachment_id, kind, title, external_id, recorded_at
		FROM sync_actions WHERE run_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, r.q(query), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync actions: %w", err)
	}
	defer rows.Close()

	var result []ActionRecord
	for rows.Next() {
		var (
			item         ActionRecord
			action, kind string
			recorded     int64
		)
		err := rows.Scan(&item.ID, &item.RunID, &item.Seq, &action, &item.AttachmentID,
			&kind, &item.Title, &item.ExternalID, &recorded)
		if err != nil {
			return nil, err
		}
		item.Action = models.Action(action)
		item.Kind = models.Kind(kind)
		item.RecordedAt = time.UnixMilli(recorded)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run               Run
		started, finished int64
	)
	if err := s.Scan(&run.ID, &run.ListingID, &run.Entries, &run.Status, &run.Error, &started, &finished); err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(started)
	if finished != 0 {
		run.FinishedAt = time.UnixMilli(finished)
	}
	return &run, nil
}
