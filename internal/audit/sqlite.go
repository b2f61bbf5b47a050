package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/care-pathway-engine/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite snapshot store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(s scanner) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	var stage string

	err := s.Scan(
		&snap.ID, &snap.PersonID, &snap.EvaluatedAt, &stage, &snap.LifeStatus,
		&snap.OpenTasks, &snap.ContextJSON, &snap.TasksJSON, &snap.InputDigest,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.Stage = domain.Stage(stage)
	snap.EvaluatedAt = snap.EvaluatedAt.UTC()
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

const snapshotColumns = `id, person_id, evaluated_at, stage, life_status,
	open_tasks, context_json, tasks_json, input_digest, created_at`

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluation_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL,
		evaluated_at DATETIME NOT NULL,
		stage TEXT NOT NULL,
		life_status TEXT NOT NULL DEFAULT '',
		open_tasks INTEGER NOT NULL DEFAULT 0,
		context_json TEXT NOT NULL DEFAULT '{}',
		tasks_json TEXT NOT NULL DEFAULT '[]',
		input_digest TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(input_digest)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_person ON evaluation_snapshots(person_id, evaluated_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON evaluation_snapshots(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores a snapshot. An input already recorded is not stored twice;
// the existing id is returned in s.ID.
func (s *SQLiteStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM evaluation_snapshots WHERE input_digest = ?",
		snap.InputDigest,
	).Scan(&existingID, &createdAt)
	if err == nil {
		snap.ID = existingID
		snap.CreatedAt = createdAt.UTC()
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_snapshots (
			person_id, evaluated_at, stage, life_status, open_tasks,
			context_json, tasks_json, input_digest, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.PersonID,
		snap.EvaluatedAt.UTC(),
		string(snap.Stage),
		snap.LifeStatus,
		snap.OpenTasks,
		snap.ContextJSON,
		snap.TasksJSON,
		snap.InputDigest,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	snap.ID = id
	snap.CreatedAt = now
	return nil
}

// GetByDigest returns the snapshot for an input digest, or nil.
func (s *SQLiteStore) GetByDigest(ctx context.Context, digest string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM evaluation_snapshots WHERE input_digest = ? LIMIT 1",
		digest)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return snap, nil
}

// ListByPerson returns the latest snapshots of one person, newest first.
func (s *SQLiteStore) ListByPerson(ctx context.Context, personID string, limit int) ([]*domain.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+` FROM evaluation_snapshots
		WHERE person_id = ?
		ORDER BY evaluated_at DESC, id DESC
		LIMIT ?`,
		personID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// List returns all snapshots with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+` FROM evaluation_snapshots
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]*domain.Snapshot, error) {
	var result []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// Count returns the total number of snapshots.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluation_snapshots").Scan(&count)
	return count, err
}

// ExportJSON exports all snapshots to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports snapshots from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importSnapshots(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
