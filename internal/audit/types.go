// Package audit persists evaluation snapshots. A snapshot records what the
// engine derived for a person at an instant: stage, life status, context and
// tasks. Reports are never stored.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/care-pathway-engine/internal/domain"
)

// Store defines the interface for snapshot storage operations.
type Store interface {
	domain.SnapshotStore

	// GetByDigest returns the snapshot recorded for an input digest, or nil
	// when none exists.
	GetByDigest(ctx context.Context, digest string) (*domain.Snapshot, error)

	// List returns snapshots newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*domain.Snapshot, error)

	// ExportJSON writes every snapshot to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export. Snapshots whose digest is already stored
	// are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)
}

// SnapshotExport represents the JSON export format.
type SnapshotExport struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Count      int                `json:"count"`
	Snapshots  []*domain.Snapshot `json:"snapshots"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of snapshots exported at once.
const maxExportLimit = 1000000

// defaultHistoryLimit applies when ListByPerson is called with limit <= 0.
const defaultHistoryLimit = 20

// NewSnapshot builds the audit record of an evaluation.
func NewSnapshot(evaluation *domain.Evaluation, digest string) (*domain.Snapshot, error) {
	if evaluation == nil {
		return nil, fmt.Errorf("evaluation cannot be nil")
	}

	contextJSON, err := json.Marshal(evaluation.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode context: %w", err)
	}
	tasks := evaluation.Tasks
	if tasks == nil {
		tasks = []domain.TaskInstance{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tasks: %w", err)
	}

	return &domain.Snapshot{
		PersonID:    evaluation.PersonID,
		EvaluatedAt: evaluation.EvaluatedAt.UTC(),
		Stage:       evaluation.Stage.Stage,
		LifeStatus:  string(evaluation.Stage.LifeStatus),
		OpenTasks:   len(evaluation.OpenTasks()),
		ContextJSON: string(contextJSON),
		TasksJSON:   string(tasksJSON),
		InputDigest: digest,
	}, nil
}

func validateSnapshot(s *domain.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if s.PersonID == "" {
		return fmt.Errorf("%w: snapshot person id is required", domain.ErrInvalidPerson)
	}
	if s.InputDigest == "" {
		return fmt.Errorf("snapshot input digest is required")
	}
	return nil
}

func writeExport(writer io.Writer, all []*domain.Snapshot) error {
	if all == nil {
		all = []*domain.Snapshot{}
	}
	export := &SnapshotExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Snapshots:  all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importSnapshots is shared by both stores.
func importSnapshots(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export SnapshotExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, s := range export.Snapshots {
		if err := validateSnapshot(s); err != nil {
			skipped++
			continue
		}

		existing, err := store.GetByDigest(ctx, s.InputDigest)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		s.ID = 0
		if err := store.Save(ctx, s); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
