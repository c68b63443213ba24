package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Sink receives every event after the reporter has recorded it.
type Sink interface {
	Publish(event models.ProgressEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(models.ProgressEvent)

// Publish implements Sink.
func (f SinkFunc) Publish(event models.ProgressEvent) { f(event) }

// Reporter is a passive progress sink. The last event is swapped atomically so
// pollers on other goroutines always see a complete event.
type Reporter struct {
	last atomic.Pointer[models.ProgressEvent]

	mu      sync.Mutex
	history []models.ProgressEvent
	sinks   []Sink
}

// NewReporter builds a reporter that fans events out to the given sinks.
func NewReporter(sinks ...Sink) *Reporter {
	return &Reporter{sinks: sinks}
}

// Push records the event, assigns its sequence number and keeps the percentage
// from moving backwards.
func (r *Reporter) Push(event models.ProgressEvent) models.ProgressEvent {
	r.mu.Lock()
	event.Sequence = len(r.history) + 1
	if event.Percentage > 100 {
		event.Percentage = 100
	}
	if prev := r.last.Load(); prev != nil && event.Percentage < prev.Percentage {
		event.Percentage = prev.Percentage
	}
	r.history = append(r.history, event)
	stored := event
	r.last.Store(&stored)
	sinks := r.sinks
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.Publish(event)
	}
	return event
}

// Last returns the most recent event.
func (r *Reporter) Last() (models.ProgressEvent, bool) {
	if r == nil {
		return models.ProgressEvent{}, false
	}
	ev := r.last.Load()
	if ev == nil {
		return models.ProgressEvent{}, false
	}
	return *ev, true
}

// History returns a copy of every event pushed so far.
func (r *Reporter) History() []models.ProgressEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProgressEvent, len(r.history))
	copy(out, r.history)
	return out
}

const (
	initializingEnd = 5.0
	schedulingEnd   = 85.0
	optimizingEnd   = 99.0
)

// schedulingPercentage maps attempt progress onto the scheduling band. Visited
// counts blocks processed in the attempt, so it only grows.
func schedulingPercentage(attempt, maxAttempts, visited, total int) float64 {
	if maxAttempts <= 0 || total <= 0 {
		return initializingEnd
	}
	fraction := (float64(attempt-1) + float64(visited)/float64(total)) / float64(maxAttempts)
	return initializingEnd + fraction*(schedulingEnd-initializingEnd)
}

func optimizingPercentage(round, budget int) float64 {
	if budget <= 0 {
		return schedulingEnd
	}
	return schedulingEnd + float64(round)/float64(budget)*(optimizingEnd-schedulingEnd)
}
