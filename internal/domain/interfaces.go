package domain

import (
	"context"
	"time"
)

// StageClassifier determines the current pathway stage of a person.
type StageClassifier interface {
	Classify(person *Person, reports []Report, now time.Time) StageResult
}

// ContextDeriver projects a person's history into flat parameters.
type ContextDeriver interface {
	Derive(person *Person, reports []Report, stage StageResult, now time.Time) Context
}

// TaskScheduler generates task instances with resolution applied.
type TaskScheduler interface {
	Schedule(person *Person, reports []Report, now time.Time) []TaskInstance
}

// PathwayEvaluator runs classification, context derivation and scheduling.
type PathwayEvaluator interface {
	Evaluate(ctx context.Context, req *EvaluationRequest) (*Evaluation, error)
	BatchEvaluate(ctx context.Context, reqs []EvaluationRequest) *BatchEvaluationResult
}

// ReportSource fetches a contact and its reports from the host system.
type ReportSource interface {
	FetchContact(ctx context.Context, contactID string) (*EvaluationRequest, error)
}

// SnapshotStore persists evaluation audit snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, s *Snapshot) error
	ListByPerson(ctx context.Context, personID string, limit int) ([]*Snapshot, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
}
