package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

const runJobType = "schedule_run"

type datasetLoader interface {
	Load(ctx context.Context, planIDs []string) (*models.Dataset, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	Engine      scheduler.Config
	RunTTL      time.Duration
	SnapshotTTL time.Duration
	Workers     int
	QueueSize   int
	APIPrefix   string
}

// RunResult is a finished run together with the data it was scheduled from.
// Dataset is nil when the run was restored from the snapshot cache.
type RunResult struct {
	RunID    string
	Schedule *models.Schedule
	Dataset  *models.Dataset
}

// ScheduleGeneratorService queues scheduling runs, executes them on a worker
// pool and serves their progress and results.
type ScheduleGeneratorService struct {
	data      datasetLoader
	cache     snapshotCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleGeneratorConfig
	store     *runStore
	queue     *jobs.Queue

	mu      sync.Mutex
	stopGC  context.CancelFunc
	gcGroup sync.WaitGroup
}

// NewScheduleGeneratorService wires scheduler dependencies. cache and metrics may be nil.
func NewScheduleGeneratorService(
	data datasetLoader,
	cache snapshotCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine = scheduler.DefaultConfig()
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 24 * time.Hour
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = cfg.RunTTL
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	s := &ScheduleGeneratorService{
		data:      data,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newRunStore(cfg.RunTTL),
	}
	s.queue = jobs.NewQueue("schedule-runs", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: -1,
		Logger:     logger,
	})
	metrics.ObserveQueue(s.queue.Pending)
	return s
}

// Start launches the workers and the expiry loop.
func (s *ScheduleGeneratorService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopGC != nil {
		return
	}
	gcCtx, cancel := context.WithCancel(ctx)
	s.stopGC = cancel
	interval := s.cfg.RunTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	s.gcGroup.Add(1)
	go func() {
		defer s.gcGroup.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gcCtx.Done():
				return
			case <-ticker.C:
				if purged := s.store.Purge(); len(purged) > 0 {
					s.logger.Info("expired schedule runs purged", zap.Int("count", len(purged)))
				}
			}
		}
	}()
}

// Stop cancels active runs and waits for the workers to exit.
func (s *ScheduleGeneratorService) Stop() {
	s.mu.Lock()
	if s.stopGC != nil {
		s.stopGC()
		s.stopGC = nil
	}
	s.mu.Unlock()
	s.gcGroup.Wait()
	s.queue.Stop()
}

// Submit validates the request, loads the plans and queues a run.
func (s *ScheduleGeneratorService) Submit(ctx context.Context, req dto.CreateRunRequest) (*dto.RunAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload")
	}

	dataset, err := loadDataset(ctx, s.data, req.PlanIDs)
	if err != nil {
		return nil, err
	}
	cfg, err := s.prepare(dataset, req.Overrides)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &scheduleRun{
		ID:        uuid.NewString(),
		PlanIDs:   append([]string(nil), req.PlanIDs...),
		Dataset:   dataset,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
		state:     RunQueued,
		cancel:    cancel,
	}
	run.Reporter = scheduler.NewReporter(newProgressSink(s, run.ID))
	run.ctx = runCtx

	s.store.Save(run)
	if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: runJobType, Payload: run}); err != nil {
		s.store.Delete(run.ID)
		cancel()
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.ErrQueueFull
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "queue schedule run")
	}
	s.persist(ctx, run)

	s.logger.Info("schedule run queued",
		zap.String("run_id", run.ID),
		zap.Strings("plans", run.PlanIDs),
		zap.String("requested_by", req.RequestedBy),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int64("seed", cfg.Seed),
	)
	return &dto.RunAccepted{
		RunID:     run.ID,
		State:     string(RunQueued),
		StatusURL: fmt.Sprintf("%s/schedules/runs/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), run.ID),
	}, nil
}

// Generate runs the engine synchronously on an in-memory dataset.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, dataset *models.Dataset, overrides dto.RunOverrides, reporter *scheduler.Reporter) (*models.Schedule, error) {
	if dataset == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dataset is required")
	}
	cfg, err := s.prepare(dataset, overrides)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	schedule, err := s.execute(ctx, cfg, dataset, reporter, s.logger)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRun(schedule, time.Since(start))
	return schedule, nil
}

// Get returns the run state, including the schedule once the run has finished.
func (s *ScheduleGeneratorService) Get(ctx context.Context, id string) (*dto.RunResponse, error) {
	if run, ok := s.store.Get(id); ok {
		return s.describe(run), nil
	}
	var cached dto.RunResponse
	if err := s.cacheGet(ctx, runKey(id), &cached); err == nil {
		return &cached, nil
	}
	return nil, runNotFound(id)
}

// Progress returns the latest progress event of a run.
func (s *ScheduleGeneratorService) Progress(ctx context.Context, id string) (*models.ProgressEvent, error) {
	if run, ok := s.store.Get(id); ok {
		event, ok := run.Reporter.Last()
		if !ok {
			event = models.ProgressEvent{Phase: models.PhaseInitializing, Message: "queued"}
		}
		return &event, nil
	}
	var cached models.ProgressEvent
	if err := s.cacheGet(ctx, progressKey(id), &cached); err == nil {
		return &cached, nil
	}
	return nil, runNotFound(id)
}

// Events returns every progress event recorded so far.
func (s *ScheduleGeneratorService) Events(ctx context.Context, id string) ([]models.ProgressEvent, error) {
	if run, ok := s.store.Get(id); ok {
		return run.Reporter.History(), nil
	}
	var schedule models.Schedule
	if err := s.cacheGet(ctx, scheduleKey(id), &schedule); err == nil {
		return schedule.Events, nil
	}
	return nil, runNotFound(id)
}

// Cancel stops a queued or running run. The run finishes with status cancelled.
func (s *ScheduleGeneratorService) Cancel(ctx context.Context, id string) (*dto.RunResponse, error) {
	run, ok := s.store.Get(id)
	if !ok {
		return nil, runNotFound(id)
	}
	switch run.snapshot().State {
	case RunFinished, RunErrored:
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule run already finished")
	}
	run.cancel()
	s.logger.Info("schedule run cancellation requested", zap.String("run_id", id))
	return s.describe(run), nil
}

// Result returns the schedule of a finished run.
func (s *ScheduleGeneratorService) Result(ctx context.Context, id string) (*RunResult, error) {
	if run, ok := s.store.Get(id); ok {
		snap := run.snapshot()
		switch snap.State {
		case RunFinished:
			return &RunResult{RunID: id, Schedule: snap.Schedule, Dataset: run.Dataset}, nil
		case RunErrored:
			return nil, appErrors.Clone(appErrors.ErrConflict, "schedule run failed: "+snap.Err.Error())
		default:
			return nil, appErrors.ErrRunNotFinished
		}
	}
	var schedule models.Schedule
	if err := s.cacheGet(ctx, scheduleKey(id), &schedule); err == nil {
		return &RunResult{RunID: id, Schedule: &schedule}, nil
	}
	return nil, runNotFound(id)
}

func loadDataset(ctx context.Context, data datasetLoader, planIDs []string) (*models.Dataset, error) {
	dataset, err := data.Load(ctx, planIDs)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownPlan) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load scheduling data")
	}
	return dataset, nil
}

// prepare resolves the run configuration and rejects incomplete data before queueing.
func (s *ScheduleGeneratorService) prepare(dataset *models.Dataset, overrides dto.RunOverrides) (scheduler.Config, error) {
	if err := s.validator.Struct(overrides); err != nil {
		return scheduler.Config{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run overrides")
	}
	cfg := ApplyOverrides(s.cfg.Engine, overrides, dataset.Grid)
	if err := cfg.Validate(); err != nil {
		return scheduler.Config{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if issues := scheduler.ValidateInput(cfg.Grid, dataset.Plans, dataset.Staff, dataset.Facilities); len(issues) > 0 {
		return scheduler.Config{}, wrapEngineError(&scheduler.IncompleteDataError{Issues: issues})
	}
	return cfg, nil
}

func (s *ScheduleGeneratorService) execute(ctx context.Context, cfg scheduler.Config, dataset *models.Dataset, reporter *scheduler.Reporter, logger *zap.Logger) (*models.Schedule, error) {
	engine, err := scheduler.New(cfg, logger)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	schedule, err := engine.Run(ctx, scheduler.Input{Plans: dataset.Plans, Staff: dataset.Staff, Facilities: dataset.Facilities}, reporter)
	if err != nil {
		return nil, wrapEngineError(err)
	}
	return schedule, nil
}

// process is the queue handler. Engine failures are recorded on the run and never retried.
func (s *ScheduleGeneratorService) process(ctx context.Context, job jobs.Job) error {
	run, ok := job.Payload.(*scheduleRun)
	if !ok {
		s.logger.Error("unexpected job payload", zap.String("job_id", job.ID))
		return nil
	}
	defer run.cancel()
	logger := s.logger.With(zap.String("run_id", run.ID))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(run.ctx, cancel)
	defer stop()

	started := time.Now()
	run.start(started.UTC())
	s.persist(ctx, run)
	logger.Info("schedule run started")

	schedule, err := s.execute(runCtx, run.Config, run.Dataset, run.Reporter, logger)
	run.finish(time.Now().UTC(), schedule, err)
	if err != nil {
		logger.Error("schedule run failed", zap.Error(err))
		s.metrics.ObserveRunError()
	} else {
		s.metrics.ObserveRun(schedule, time.Since(started))
		logger.Info("schedule run finished",
			zap.String("status", string(schedule.Status)),
			zap.Int("placed", schedule.Placed()),
			zap.Int("conflicts", len(schedule.Conflicts)),
			zap.Float64("cost", schedule.Cost.Total),
		)
	}
	s.persist(context.WithoutCancel(ctx), run)
	return nil
}

func (s *ScheduleGeneratorService) describe(run *scheduleRun) *dto.RunResponse {
	snap := run.snapshot()
	resp := &dto.RunResponse{
		RunID:     run.ID,
		State:     string(snap.State),
		PlanIDs:   run.PlanIDs,
		CreatedAt: run.CreatedAt,
	}
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt
		resp.StartedAt = &started
	}
	if !snap.FinishedAt.IsZero() {
		finished := snap.FinishedAt
		resp.FinishedAt = &finished
	}
	if event, ok := run.Reporter.Last(); ok {
		resp.Progress = &event
	}
	if snap.Schedule != nil {
		schedule := *snap.Schedule
		schedule.Events = nil
		resp.Schedule = &schedule
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

// persist mirrors the run into the snapshot cache so other instances and
// restarted processes can still answer for it.
func (s *ScheduleGeneratorService) persist(ctx context.Context, run *scheduleRun) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, runKey(run.ID), s.describe(run), s.cfg.SnapshotTTL); err != nil {
		s.logger.Warn("failed to cache run snapshot", zap.String("run_id", run.ID), zap.Error(err))
	}
	if schedule := run.snapshot().Schedule; schedule != nil {
		if err := s.cache.Set(ctx, scheduleKey(run.ID), schedule, s.cfg.SnapshotTTL); err != nil {
			s.logger.Warn("failed to cache schedule", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}

func (s *ScheduleGeneratorService) cacheGet(ctx context.Context, key string, dest interface{}) error {
	if s.cache == nil {
		return appErrors.ErrCacheMiss
	}
	start := time.Now()
	err := s.cache.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	return err
}

// progressSink forwards progress to the cache whenever the phase changes or the
// whole-number percentage advances. It runs on the engine goroutine.
type progressSink struct {
	svc     *ScheduleGeneratorService
	runID   string
	phase   models.Phase
	percent int
}

func newProgressSink(svc *ScheduleGeneratorService, runID string) *progressSink {
	return &progressSink{svc: svc, runID: runID, percent: -1}
}

func (p *progressSink) Publish(event models.ProgressEvent) {
	if p.svc.cache == nil {
		return
	}
	percent := int(event.Percentage)
	if event.Phase == p.phase && percent == p.percent {
		return
	}
	p.phase, p.percent = event.Phase, percent
	if err := p.svc.cache.Set(context.Background(), progressKey(p.runID), event, p.svc.cfg.SnapshotTTL); err != nil {
		p.svc.logger.Debug("failed to cache progress", zap.String("run_id", p.runID), zap.Error(err))
	}
}

func wrapEngineError(err error) error {
	var incomplete *scheduler.IncompleteDataError
	if errors.As(err, &incomplete) {
		return appErrors.Wrap(err, appErrors.ErrIncompleteData.Code, appErrors.ErrIncompleteData.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "schedule run failed")
}

func runNotFound(id string) error {
	return appErrors.Clone(appErrors.ErrRunNotFound, fmt.Sprintf("schedule run %s not found", id))
}

func runKey(id string) string      { return "runs:" + id }
func progressKey(id string) string { return "runs:" + id + ":progress" }
func scheduleKey(id string) string { return "runs:" + id + ":schedule" }
