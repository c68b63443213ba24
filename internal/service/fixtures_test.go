package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type stubLoader struct {
	dataset *models.Dataset
	err     error
	calls   int
}

func (s *stubLoader) Load(_ context.Context, planIDs []string) (*models.Dataset, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	for _, id := range planIDs {
		found := false
		for _, plan := range s.dataset.Plans {
			found = found || plan.ID == id
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", repository.ErrUnknownPlan, id)
		}
	}
	return s.dataset, nil
}

// memoryCache stores JSON like the redis-backed cache repository does.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	raw, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

func lectureSession(staffID string, weekly, duration int) models.SessionRequirement {
	return models.SessionRequirement{
		Type:        models.SessionLecture,
		WeeklyCount: weekly,
		Duration:    duration,
		Staff:       []models.StaffAssignment{{StaffID: staffID}},
	}
}

// sampleDataset is one plan with two lecture courses, one lecturer and one hall.
func sampleDataset() *models.Dataset {
	return &models.Dataset{
		Plans: []models.StudyPlan{{
			ID:   "cs-1",
			Name: "Computer Science Year 1",
			Courses: []models.Course{
				{ID: "algo", Name: "Algorithms", GroupSize: 30, Sessions: []models.SessionRequirement{lectureSession("lecturer-1", 1, 2)}},
				{ID: "calc", Name: "Calculus", GroupSize: 30, Sessions: []models.SessionRequirement{lectureSession("lecturer-1", 1, 2)}},
			},
		}},
		Staff:      []models.Staff{{ID: "lecturer-1", Name: "Dr. One"}},
		Facilities: []models.Facility{{ID: "h1", Name: "Main Hall", Type: models.FacilityHall, Capacity: 30}},
	}
}

func intPtr(v int) *int { return &v }
