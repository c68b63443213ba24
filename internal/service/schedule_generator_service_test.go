package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

func newGeneratorFixture(t *testing.T, loader *stubLoader, cache snapshotCache) *ScheduleGeneratorService {
	t.Helper()
	svc := NewScheduleGeneratorService(loader, cache, NewMetricsService(), nil, zap.NewNop(), ScheduleGeneratorConfig{
		Workers:   1,
		QueueSize: 4,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func waitForState(t *testing.T, svc *ScheduleGeneratorService, id string, state RunState) *dto.RunResponse {
	t.Helper()
	var resp *dto.RunResponse
	require.Eventually(t, func() bool {
		var err error
		resp, err = svc.Get(context.Background(), id)
		return err == nil && resp.State == string(state)
	}, 5*time.Second, 5*time.Millisecond)
	return resp
}

func TestScheduleGeneratorSubmitRunsToCompletion(t *testing.T) {
	cache := newMemoryCache()
	svc := newGeneratorFixture(t, &stubLoader{dataset: sampleDataset()}, cache)

	accepted, err := svc.Submit(context.Background(), dto.CreateRunRequest{PlanIDs: []string{"cs-1"}})
	require.NoError(t, err)
	assert.Equal(t, string(RunQueued), accepted.State)
	assert.Equal(t, "/api/v1/schedules/runs/"+accepted.RunID, accepted.StatusURL)

	resp := waitForState(t, svc, accepted.RunID, RunFinished)
	require.NotNil(t, resp.Schedule)
	assert.Equal(t, models.ScheduleFeasible, resp.Schedule.Status)
	assert.Len(t, resp.Schedule.Assignments, 2)
	assert.Empty(t, resp.Schedule.Events)
	assert.NotNil(t, resp.StartedAt)
	assert.NotNil(t, resp.FinishedAt)

	progress, err := svc.Progress(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, progress.Phase)

	events, err := svc.Events(context.Background(), accepted.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.PhaseCompleted, events[len(events)-1].Phase)

	result, err := svc.Result(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.NotNil(t, result.Dataset)

	assert.True(t, cache.has(runKey(accepted.RunID)))
	assert.True(t, cache.has(scheduleKey(accepted.RunID)))
	assert.True(t, cache.has(progressKey(accepted.RunID)))
}

func TestScheduleGeneratorFallsBackToCache(t *testing.T) {
	cache := newMemoryCache()
	loader := &stubLoader{dataset: sampleDataset()}
	first := newGeneratorFixture(t, loader, cache)

	accepted, err := first.Submit(context.Background(), dto.CreateRunRequest{PlanIDs: []string{"cs-1"}})
	require.NoError(t, err)
	waitForState(t, first, accepted.RunID, RunFinished)

	second := newGeneratorFixture(t, loader, cache)
	resp, err := second.Get(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(RunFinished), resp.State)

	result, err := second.Result(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.Nil(t, result.Dataset)
	assert.Len(t, result.Schedule.Assignments, 2)

	events, err := second.Events(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestScheduleGeneratorSubmitErrors(t *testing.T) {
	svc := newGeneratorFixture(t, &stubLoader{dataset: sampleDataset()}, nil)

	_, err := svc.Submit(context.Background(), dto.CreateRunRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = svc.Submit(context.Background(), dto.CreateRunRequest{PlanIDs: []string{"missing"}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = svc.Submit(context.Background(), dto.CreateRunRequest{
		PlanIDs:   []string{"cs-1"},
		Overrides: dto.RunOverrides{MaxAttempts: intPtr(0)},
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	broken := newGeneratorFixture(t, &stubLoader{err: errors.New("connection refused")}, nil)
	_, err = broken.Submit(context.Background(), dto.CreateRunRequest{PlanIDs: []string{"cs-1"}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal))
}

func TestScheduleGeneratorRejectsIncompleteData(t *testing.T) {
	dataset := sampleDataset()
	dataset.Plans[0].Courses[0].GroupSize = 0
	dataset.Plans[0].Courses[1].Sessions[0].Staff[0].StaffID = "ghost"
	svc := newGeneratorFixture(t, &stubLoader{dataset: dataset}, nil)

	_, err := svc.Submit(context.Background(), dto.CreateRunRequest{PlanIDs: []string{"cs-1"}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIncompleteData.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
	assert.Contains(t, appErr.Message, "groupSize")
}

func TestScheduleGeneratorQueueFull(t *testing.T) {
	svc := NewScheduleGeneratorService(&stubLoader{dataset: sampleDataset()}, nil, nil, nil, zap.NewNop(), ScheduleGeneratorConfig{})
	release := make(chan struct{})
	svc.queue = jobs.NewQueue("blocked", func(context.Context, jobs.Job) error {
		<-release
		return nil
	}, jobs.QueueConfig{Workers: 1, BufferSize: 1, MaxRetries: -1})
	svc.Start(context.Background())
	defer svc.Stop()
	defer close(release)

	req := dto.CreateRunRequest{PlanIDs: []string{"cs-1"}}
	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svc.queue.Pending() == 0 }, time.Second, time.Millisecond)
	_, err = svc.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrQueueFull))
	assert.Len(t, svc.store.items, 2)
}

func TestScheduleGeneratorCancel(t *testing.T) {
	svc := newGeneratorFixture(t, &stubLoader{dataset: sampleDataset()}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	queued := &scheduleRun{ID: "queued", CreatedAt: time.Now(), state: RunQueued, ctx: ctx, cancel: cancel}
	svc.store.Save(queued)

	resp, err := svc.Cancel(context.Background(), "queued")
	require.NoError(t, err)
	assert.Equal(t, string(RunQueued), resp.State)
	assert.ErrorIs(t, queued.ctx.Err(), context.Canceled)

	queued.finish(time.Now(), &models.Schedule{Status: models.ScheduleCancelled}, nil)
	_, err = svc.Cancel(context.Background(), "queued")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = svc.Cancel(context.Background(), "unknown")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRunNotFound))
}

func TestScheduleGeneratorResultStates(t *testing.T) {
	svc := newGeneratorFixture(t, &stubLoader{dataset: sampleDataset()}, nil)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	running := &scheduleRun{ID: "running", CreatedAt: time.Now(), state: RunRunning, cancel: cancel}
	svc.store.Save(running)
	_, err := svc.Result(context.Background(), "running")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRunNotFinished))

	failed := &scheduleRun{ID: "failed", CreatedAt: time.Now(), cancel: cancel}
	failed.finish(time.Now(), nil, errors.New("boom"))
	svc.store.Save(failed)
	_, err = svc.Result(context.Background(), "failed")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = svc.Result(context.Background(), "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRunNotFound))

	progress, err := svc.Progress(context.Background(), "running")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInitializing, progress.Phase)
}

func TestScheduleGeneratorGenerateSync(t *testing.T) {
	svc := NewScheduleGeneratorService(nil, nil, nil, nil, zap.NewNop(), ScheduleGeneratorConfig{})

	schedule, err := svc.Generate(context.Background(), sampleDataset(), dto.RunOverrides{}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleFeasible, schedule.Status)

	_, err = svc.Generate(context.Background(), nil, dto.RunOverrides{}, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}
