// Package storage is the SQLite archive: exported snapshots and the event
// budgets removed by the monthly rollover. The live ledger stays in memory;
// this package only keeps history.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/importexport"

	_ "modernc.org/sqlite"
)

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type (
	SQLiteRepository struct {
		db *sql.DB
	}

	// SnapshotInfo describes a stored snapshot without its payload.
	SnapshotInfo struct {
		ID         int64     `json:"id"`
		ExportedAt time.Time `json:"exportedAt"`
		Reason     string    `json:"reason,omitempty"`
		People     int       `json:"people"`
		Expenses   int       `json:"expenses"`
		Budgets    int       `json:"budgets"`
	}

	ArchivedBudget struct {
		core.Budget
		ArchivedAt time.Time `json:"archivedAt"`
	}
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Archive database ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveSnapshot stores a full backup and returns its metadata.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap importexport.Snapshot, reason string) (SnapshotInfo, error) {
	var payload bytes.Buffer
	if err := importexport.WriteJSON(&payload, snap); err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{
		ExportedAt: snap.ExportedAt.UTC(),
		Reason:     reason,
		People:     len(snap.People),
		Expenses:   len(snap.Expenses),
		Budgets:    len(snap.Budgets),
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (exported_at, reason, people, expenses, budgets, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ExportedAt.Format(timeLayout), info.Reason, info.People, info.Expenses, info.Budgets, payload.Bytes())
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if info.ID, err = res.LastInsertId(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("snapshot id: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot archived",
		"id", info.ID,
		"reason", reason,
		"people", info.People,
		"expenses", info.Expenses,
		"budgets", info.Budgets)

	return info, nil
}

// ListSnapshots returns the newest snapshots first. A non-positive limit
// returns all of them.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, exported_at, reason, people, expenses, budgets FROM snapshots ORDER BY exported_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info       SnapshotInfo
			exportedAt string
		)
		if err := rows.Scan(&info.ID, &exportedAt, &info.Reason, &info.People, &info.Expenses, &info.Budgets); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if info.ExportedAt, err = time.Parse(timeLayout, exportedAt); err != nil {
			return nil, fmt.Errorf("parse exported_at %q: %w", exportedAt, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// GetSnapshot loads one snapshot by id.
func (r *SQLiteRepository) GetSnapshot(ctx context.Context, id int64) (importexport.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return importexport.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return importexport.Snapshot{}, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return importexport.ReadSnapshot(bytes.NewReader(payload))
}

// LatestSnapshot loads the most recent snapshot.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context) (importexport.Snapshot, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM snapshots ORDER BY exported_at DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return importexport.Snapshot{}, fmt.Errorf("latest snapshot: %w", core.ErrNotFound)
	}
	if err != nil {
		return importexport.Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return r.GetSnapshot(ctx, id)
}

// ArchiveBudgets records expired budgets. Archiving the same budget twice
// is a no-op.
func (r *SQLiteRepository) ArchiveBudgets(ctx context.Context, budgets []core.Budget, archivedAt time.Time) error {
	if len(budgets) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO archived_budgets (budget_id, person_id, amount, period, created_at, archived_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive: %w", err)
	}
	defer stmt.Close()

	at := archivedAt.UTC().Format(timeLayout)
	for _, b := range budgets {
		if _, err := stmt.ExecContext(ctx, b.ID, b.PersonID, b.Amount, string(b.Period), b.CreatedAt.UTC().Format(timeLayout), at); err != nil {
			return fmt.Errorf("archive budget %d: %w", b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}

	slog.InfoContext(ctx, "Event budgets archived", "count", len(budgets))
	return nil
}

// ListArchivedBudgets returns archived budgets, oldest first. A zero
// personID returns every person's.
func (r *SQLiteRepository) ListArchivedBudgets(ctx context.Context, personID int64) ([]ArchivedBudget, error) {
	query := `SELECT budget_id, person_id, amount, period, created_at, archived_at FROM archived_budgets`
	var args []any
	if personID != 0 {
		query += ` WHERE person_id = ?`
		args = append(args, personID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived budgets: %w", err)
	}
	defer rows.Close()

	var out []ArchivedBudget
	for rows.Next() {
		var (
			ab                    ArchivedBudget
			period                string
			createdAt, archivedAt string
		)
		if err := rows.Scan(&ab.ID, &ab.PersonID, &ab.Amount, &period, &createdAt, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan archived budget: %w", err)
		}
		ab.Period = core.Period(period)
		if ab.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		if ab.ArchivedAt, err = time.Parse(timeLayout, archivedAt); err != nil {
			return nil, fmt.Errorf("parse archived_at %q: %w", archivedAt, err)
		}
		out = append(out, ab)
	}
	return out, rows.Err()
}
