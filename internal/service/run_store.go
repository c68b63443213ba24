package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
)

// RunState is the lifecycle of a queued run, independent of the schedule status.
type RunState string

const (
	RunQueued   RunState = "queued"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunErrored  RunState = "error"
)

type scheduleRun struct {
	ID        string
	PlanIDs   []string
	Dataset   *models.Dataset
	Config    scheduler.Config
	Reporter  *scheduler.Reporter
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	state      RunState
	startedAt  time.Time
	finishedAt time.Time
	schedule   *models.Schedule
	err        error
}

type runSnapshot struct {
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Schedule   *models.Schedule
	Err        error
}

func (r *scheduleRun) snapshot() runSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return runSnapshot{State: r.state, StartedAt: r.startedAt, FinishedAt: r.finishedAt, Schedule: r.schedule, Err: r.err}
}

func (r *scheduleRun) start(now time.Time) {
	r.mu.Lock()
	r.state = RunRunning
	r.startedAt = now
	r.mu.Unlock()
}

func (r *scheduleRun) finish(now time.Time, schedule *models.Schedule, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = now
	r.schedule = schedule
	r.err = err
	if err != nil {
		r.state = RunErrored
		return
	}
	r.state = RunFinished
}

// runStore keeps recent runs in memory. Runs that have stopped are forgotten
// ttl after creation.
type runStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]*scheduleRun
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*scheduleRun),
	}
}

func (s *runStore) Save(run *scheduleRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = run
}

func (s *runStore) Get(id string) (*scheduleRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.expired(run) {
		s.Delete(id)
		return nil, false
	}
	return run, true
}

func (s *runStore) expired(run *scheduleRun) bool {
	if s.now().Sub(run.CreatedAt) <= s.ttl {
		return false
	}
	state := run.snapshot().State
	return state != RunQueued && state != RunRunning
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Purge drops expired runs that are no longer active and returns their ids.
func (s *runStore) Purge() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged []string
	for id, run := range s.items {
		if !s.expired(run) {
			continue
		}
		delete(s.items, id)
		purged = append(purged, id)
	}
	sort.Strings(purged)
	return purged
}
