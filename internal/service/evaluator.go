package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/domain"
)

// Clock supplies the evaluation instant when a request carries none.
type Clock func() time.Time

// EvaluatorService runs stage classification, context derivation and task
// scheduling for one person at one instant.
type EvaluatorService struct {
	logger     *logrus.Logger
	classifier domain.StageClassifier
	deriver    domain.ContextDeriver
	scheduler  domain.TaskScheduler
	catalog    *Catalog

	location       *time.Location
	maxConcurrency int
	clock          Clock
}

// EvaluatorOption customises an EvaluatorService.
type EvaluatorOption func(*EvaluatorService)

// WithClock replaces the wall clock used when a request has no now.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *EvaluatorService) {
		e.clock = clock
	}
}

// WithLocation sets the zone in which day boundaries are computed.
func WithLocation(loc *time.Location) EvaluatorOption {
	return func(e *EvaluatorService) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithMaxConcurrency bounds the number of parallel batch evaluations.
func WithMaxConcurrency(n int) EvaluatorOption {
	return func(e *EvaluatorService) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// NewEvaluatorService creates an evaluator from its parts.
func NewEvaluatorService(
	logger *logrus.Logger,
	classifier domain.StageClassifier,
	deriver domain.ContextDeriver,
	scheduler domain.TaskScheduler,
	catalog *Catalog,
	opts ...EvaluatorOption,
) *EvaluatorService {
	e := &EvaluatorService{
		logger:         logger,
		classifier:     classifier,
		deriver:        deriver,
		scheduler:      scheduler,
		catalog:        catalog,
		location:       time.UTC,
		maxConcurrency: 4,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultEvaluator wires the perinatal catalog, the remap tables and the
// engine settings.
func NewDefaultEvaluator(logger *logrus.Logger, cfg domain.EngineConfig, opts ...EvaluatorOption) (*EvaluatorService, error) {
	remap, err := LoadRemapTables(cfg.RemapTablesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load remap tables: %w", err)
	}

	catalog := NewCatalog()
	if err := catalog.DisableCurrencyCheck(cfg.SkipCurrencyCheckFor...); err != nil {
		return nil, fmt.Errorf("invalid skip_currency_check_for: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("task catalog rejected: %w", err)
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
	}

	base := []EvaluatorOption{WithLocation(loc), WithMaxConcurrency(cfg.MaxConcurrency)}
	return NewEvaluatorService(
		logger,
		NewStageClassifier(),
		NewContextDeriver(remap),
		NewTaskScheduler(catalog, remap, logger),
		catalog,
		append(base, opts...)...,
	), nil
}

// Catalog returns the task catalog the evaluator schedules from.
func (e *EvaluatorService) Catalog() *Catalog {
	return e.catalog
}

// Location returns the engine time zone.
func (e *EvaluatorService) Location() *time.Location {
	return e.location
}

// Evaluate implements domain.PathwayEvaluator.
func (e *EvaluatorService) Evaluate(ctx context.Context, req *domain.EvaluationRequest) (*domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", domain.ErrInvalidPerson)
	}
	if err := req.Person.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPerson, err)
	}

	startTime := time.Now()
	person, reports, now := e.normalize(req)

	stage := e.classifier.Classify(person, reports, now)
	params := e.deriver.Derive(person, reports, stage, now)
	tasks := e.scheduler.Schedule(person, reports, now)
	if tasks == nil {
		tasks = []domain.TaskInstance{}
	}

	evaluation := &domain.Evaluation{
		PersonID:    person.ID,
		EvaluatedAt: now,
		Stage:       stage,
		Context:     params,
		Tasks:       tasks,
	}

	fields := logrus.Fields(stage.LogFields())
	fields["person_id"] = person.ID
	fields["report_count"] = len(reports)
	fields["task_count"] = len(tasks)
	fields["open_tasks"] = len(evaluation.OpenTasks())
	fields["processing_time"] = time.Since(startTime).String()
	e.logger.WithFields(fields).Info("Evaluation completed")

	return evaluation, nil
}

// Classify runs only the stage classifier.
func (e *EvaluatorService) Classify(ctx context.Context, req *domain.EvaluationRequest) (domain.StageResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.StageResult{}, err
	}
	if req == nil {
		return domain.StageResult{}, fmt.Errorf("%w: request cannot be nil", domain.ErrInvalidPerson)
	}
	if err := req.Person.Validate(); err != nil {
		return domain.StageResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidPerson, err)
	}
	person, reports, now := e.normalize(req)
	return e.classifier.Classify(person, reports, now), nil
}

// BatchEvaluate implements domain.PathwayEvaluator. Persons are evaluated
// independently and results keep the request order.
func (e *EvaluatorService) BatchEvaluate(ctx context.Context, reqs []domain.EvaluationRequest) *domain.BatchEvaluationResult {
	return batchEvaluate(ctx, e, reqs, e.maxConcurrency)
}

// normalize copies the request into the engine zone. The caller's reports
// are left untouched.
func (e *EvaluatorService) normalize(req *domain.EvaluationRequest) (*domain.Person, []domain.Report, time.Time) {
	now := e.clock()
	if req.Now != nil {
		now = *req.Now
	}
	now = now.In(e.location)

	person := req.Person
	if !person.RegisteredAt.IsZero() {
		person.RegisteredAt = person.RegisteredAt.In(e.location)
	}

	reports := make([]domain.Report, len(req.Reports))
	for i, r := range req.Reports {
		r.ReportedAt = r.ReportedAt.In(e.location)
		reports[i] = r
	}
	return &person, reports, now
}

// batchEvaluate fans requests out to evaluator with at most limit in flight.
func batchEvaluate(ctx context.Context, evaluator domain.PathwayEvaluator, reqs []domain.EvaluationRequest, limit int) *domain.BatchEvaluationResult {
	if limit <= 0 {
		limit = 1
	}
	results := make([]domain.BatchItemResult, len(reqs))
	semaphore := make(chan struct{}, limit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, failed := 0, 0

	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			item := domain.BatchItemResult{PersonID: reqs[i].Person.ID}
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
				evaluation, err := evaluator.Evaluate(ctx, &reqs[i])
				if err != nil {
					item.Error = err.Error()
				} else {
					item.Evaluation = evaluation
				}
			case <-ctx.Done():
				item.Error = ctx.Err().Error()
			}

			mu.Lock()
			results[i] = item
			if item.Error != "" {
				failed++
			} else {
				succeeded++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	return &domain.BatchEvaluationResult{
		Results:   results,
		Succeeded: succeeded,
		Failed:    failed,
	}
}
