package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/service"
)

// Recorder wraps an evaluator and stores a snapshot of every successful
// evaluation. Storage failures are logged and never fail the evaluation.
type Recorder struct {
	evaluator domain.PathwayEvaluator
	store     domain.SnapshotStore
	logger    *logrus.Logger
}

// NewRecorder creates a recording evaluator.
func NewRecorder(evaluator domain.PathwayEvaluator, store domain.SnapshotStore, logger *logrus.Logger) *Recorder {
	return &Recorder{evaluator: evaluator, store: store, logger: logger}
}

// Evaluate implements domain.PathwayEvaluator.
func (r *Recorder) Evaluate(ctx context.Context, req *domain.EvaluationRequest) (*domain.Evaluation, error) {
	evaluation, err := r.evaluator.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}
	r.record(ctx, req, evaluation)
	return evaluation, nil
}

// BatchEvaluate implements domain.PathwayEvaluator. Results keep request
// order, so each success is recorded against its own request.
func (r *Recorder) BatchEvaluate(ctx context.Context, reqs []domain.EvaluationRequest) *domain.BatchEvaluationResult {
	result := r.evaluator.BatchEvaluate(ctx, reqs)
	for i, item := range result.Results {
		if item.Evaluation == nil || i >= len(reqs) {
			continue
		}
		r.record(ctx, &reqs[i], item.Evaluation)
	}
	return result
}

func (r *Recorder) record(ctx context.Context, req *domain.EvaluationRequest, evaluation *domain.Evaluation) {
	pinned := *req
	if pinned.Now == nil {
		now := evaluation.EvaluatedAt
		pinned.Now = &now
	}

	entry := r.logger.WithField("person_id", evaluation.PersonID)

	digest, err := service.InputDigest(&pinned)
	if err != nil {
		entry.WithError(err).Warn("Failed to digest evaluation input")
		return
	}

	snap, err := NewSnapshot(evaluation, digest)
	if err != nil {
		entry.WithError(err).Warn("Failed to build evaluation snapshot")
		return
	}

	if err := r.store.Save(ctx, snap); err != nil {
		entry.WithError(err).Warn("Failed to store evaluation snapshot")
		return
	}

	entry.WithFields(logrus.Fields{
		"snapshot_id": snap.ID,
		"stage":       snap.Stage,
		"open_tasks":  snap.OpenTasks,
	}).Debug("Evaluation snapshot stored")
}
