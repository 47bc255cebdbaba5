package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/icustudies/ecmo-cohort/pkg/assemble"
	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/cohort"
	"github.com/icustudies/ecmo-cohort/pkg/common/logger"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/demographics"
	"github.com/icustudies/ecmo-cohort/pkg/exposure"
	"github.com/icustudies/ecmo-cohort/pkg/measure"
	"github.com/icustudies/ecmo-cohort/pkg/mortality"
	"github.com/icustudies/ecmo-cohort/pkg/output"
	"github.com/icustudies/ecmo-cohort/pkg/source"
	"gorm.io/datatypes"
)

// RecordCacheKey holds the latest assembled table for the serving API.
const RecordCacheKey = "cohort:records:latest"

// Result is one complete pipeline computation.
type Result struct {
	Persons []int64
	Records []models.VisitRecord
}

// Execute runs the whole extraction against immutable source facts:
// selection, visit resolution, then the four independent per-visit stages
// fanned out over goroutines and joined by the assembler. Same facts in,
// byte-identical table out.
func Execute(ctx context.Context, store source.EventStore, sets codeset.CodeSets) (Result, error) {
	persons, err := cohort.Select(ctx, store, sets)
	if err != nil {
		return Result{}, err
	}
	episodes, err := cohort.ResolveVisits(ctx, store, sets, persons)
	if err != nil {
		return Result{}, err
	}

	var (
		wg    sync.WaitGroup
		demo  map[models.VisitKey]models.VisitDemographics
		labs  map[models.VisitKey]models.LabAggregates
		flags map[models.VisitKey]models.ExposureFlags
		crrt  map[models.VisitKey]int
		death map[models.VisitKey]models.MortalityOutcome
		errs  [5]error
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		demo, errs[0] = demographics.Join(ctx, store, episodes, persons)
	}()
	go func() {
		defer wg.Done()
		labs, errs[1] = measure.Aggregate(ctx, store, sets, episodes, persons)
	}()
	go func() {
		defer wg.Done()
		flags, errs[2] = exposure.Summarize(ctx, store, sets, episodes, persons)
	}()
	go func() {
		defer wg.Done()
		crrt, errs[3] = exposure.ProcedureFlag(ctx, store, sets.CRRTProcedures, episodes, persons)
	}()
	go func() {
		defer wg.Done()
		death, errs[4] = mortality.Link(ctx, store, episodes, persons)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}

	records := assemble.Assemble(assemble.Inputs{
		Episodes:     episodes,
		Demographics: demo,
		Labs:         labs,
		Exposures:    flags,
		CRRT:         crrt,
		Mortality:    death,
	}, sets.Labels)

	return Result{Persons: persons, Records: records}, nil
}

// EventPublisher is what the runner needs from the kafka producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// RecordCache is the slice of the redis client the runner uses.
type RecordCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Runner wraps Execute with the run audit trail, output persistence, the
// record cache, and lifecycle events. Concurrent runs are bounded by a
// worker slot channel.
type Runner struct {
	store     source.EventStore
	sets      codeset.CodeSets
	runs      *RunRepository
	records   *output.Repository
	publisher EventPublisher
	cache     RecordCache
	cacheTTL  time.Duration
	workers   chan struct{}
}

func NewRunner(store source.EventStore, sets codeset.CodeSets, runs *RunRepository, records *output.Repository, maxWorkers int, opts ...Option) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	r := &Runner{
		store:   store,
		sets:    sets,
		runs:    runs,
		records: records,
		workers: make(chan struct{}, maxWorkers),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type Option func(*Runner)

func WithPublisher(p EventPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithRecordCache(c RecordCache, ttl time.Duration) Option {
	return func(r *Runner) { r.cache = c; r.cacheTTL = ttl }
}

// Enqueue records a queued run and executes it asynchronously.
func (r *Runner) Enqueue(ctx context.Context, req models.RunRequest) (models.CohortRun, error) {
	model, err := r.createRun(ctx, req)
	if err != nil {
		return models.CohortRun{}, err
	}
	go r.run(model.ID)
	return runToDomain(model), nil
}

// RunOnce records and executes a run synchronously; the batch entrypoint
// uses this path.
func (r *Runner) RunOnce(ctx context.Context, req models.RunRequest) (models.CohortRun, error) {
	model, err := r.createRun(ctx, req)
	if err != nil {
		return models.CohortRun{}, err
	}
	r.execute(ctx, model.ID)
	return r.runs.Get(ctx, model.ID)
}

func (r *Runner) createRun(ctx context.Context, req models.RunRequest) (*runModel, error) {
	snapshotJSON, _ := json.Marshal(r.sets.Snapshot())
	model := &runModel{
		ID:              uuid.New(),
		Status:          models.RunStatusQueued,
		RequestedBy:     req.RequestedBy,
		CodeSetSnapshot: datatypes.JSON(snapshotJSON),
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *Runner) run(runID uuid.UUID) {
	r.workers <- struct{}{}
	defer func() { <-r.workers }()
	r.execute(context.Background(), runID)
}

func (r *Runner) execute(ctx context.Context, runID uuid.UUID) {
	started := time.Now().UTC()
	_ = r.runs.Update(ctx, runID, map[string]interface{}{
		"status":     models.RunStatusRunning,
		"started_at": started,
	})

	result, err := Execute(ctx, r.store, r.sets)
	if err != nil {
		r.fail(ctx, runID, err)
		return
	}

	if err := r.records.Replace(ctx, runID, result.Records); err != nil {
		r.fail(ctx, runID, err)
		return
	}
	r.cacheRecords(ctx, result.Records)

	completed := time.Now().UTC()
	_ = r.runs.Update(ctx, runID, map[string]interface{}{
		"status":        models.RunStatusCompleted,
		"person_count":  len(result.Persons),
		"visit_count":   len(result.Records),
		"completed_at":  completed,
		"error_message": "",
	})

	if r.publisher != nil {
		_ = r.publisher.PublishEvent(ctx, "cohort.run.completed", "cohort-pipeline", map[string]interface{}{
			"run_id":       runID.String(),
			"person_count": len(result.Persons),
			"visit_count":  len(result.Records),
		})
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":  runID.String(),
		"persons": len(result.Persons),
		"visits":  len(result.Records),
	}).Info("Cohort run completed")
}

func (r *Runner) fail(ctx context.Context, runID uuid.UUID, err error) {
	logger.Log.WithError(err).WithField("run_id", runID.String()).Error("Cohort run failed")
	completed := time.Now().UTC()
	_ = r.runs.Update(ctx, runID, map[string]interface{}{
		"status":        models.RunStatusFailed,
		"error_message": err.Error(),
		"completed_at":  completed,
	})
	if r.publisher != nil {
		_ = r.publisher.PublishEvent(ctx, "cohort.run.failed", "cohort-pipeline", map[string]interface{}{
			"run_id": runID.String(),
			"error":  err.Error(),
		})
	}
}

func (r *Runner) cacheRecords(ctx context.Context, records []models.VisitRecord) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, RecordCacheKey, payload, r.cacheTTL); err != nil {
		logger.Log.WithError(err).Warn("Failed to cache cohort records")
	}
}
