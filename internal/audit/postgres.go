package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/care-pathway-engine/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL snapshot store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Save stores a snapshot. A digest already recorded keeps its original row.
func (s *PostgresStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	now := time.Now().UTC()

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO evaluation_snapshots (
			person_id, evaluated_at, stage, life_status, open_tasks,
			context_json, tasks_json, input_digest, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (input_digest) DO UPDATE SET
			input_digest = EXCLUDED.input_digest
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		snap.PersonID,
		snap.EvaluatedAt.UTC(),
		string(snap.Stage),
		snap.LifeStatus,
		snap.OpenTasks,
		snap.ContextJSON,
		snap.TasksJSON,
		snap.InputDigest,
		now,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	snap.CreatedAt = snap.CreatedAt.UTC()
	return nil
}

// GetByDigest returns the snapshot for an input digest, or nil.
func (s *PostgresStore) GetByDigest(ctx context.Context, digest string) (*domain.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM evaluation_snapshots
		WHERE input_digest = $1
		LIMIT 1`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, digest))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListByPerson returns the latest snapshots of one person, newest first.
func (s *PostgresStore) ListByPerson(ctx context.Context, personID string, limit int) ([]*domain.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `SELECT ` + snapshotColumns + `
		FROM evaluation_snapshots
		WHERE person_id = $1
		ORDER BY evaluated_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// List returns all snapshots with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM evaluation_snapshots
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// Count returns the total number of snapshots.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evaluation_snapshots").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// ExportJSON exports all snapshots to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports snapshots from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importSnapshots(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
