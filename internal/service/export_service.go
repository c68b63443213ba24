package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Path(name string) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type runResults interface {
	Result(ctx context.Context, id string) (*RunResult, error)
}

// ExportConfig tunes export behaviour. DayStart and PeriodLength label periods
// with clock times.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	DayStart        string
	PeriodLength    time.Duration
}

// ExportFile is a stored export resolved from a download token.
type ExportFile struct {
	RunID       string
	Path        string
	Name        string
	ContentType string
}

// ExportService renders finished schedules and hands out signed download links.
type ExportService struct {
	runs      runResults
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers map[string]export.Renderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	dayStart  time.Time

	mu   sync.Mutex
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewExportService constructs an ExportService. runs and store may be nil for
// render-only use.
func NewExportService(runs runResults, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.PeriodLength <= 0 {
		cfg.PeriodLength = time.Hour
	}
	dayStart, err := time.Parse("15:04", cfg.DayStart)
	if err != nil {
		dayStart, _ = time.Parse("15:04", "08:00")
	}
	return &ExportService{
		runs:    runs,
		storage: store,
		signer:  signer,
		renderers: map[string]export.Renderer{
			FormatCSV:  export.NewCSVExporter(),
			FormatPDF:  export.NewPDFExporter(),
			FormatXLSX: export.NewXLSXExporter(),
		},
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		dayStart:  dayStart,
	}
}

// Export renders the schedule of a finished run, stores the file and returns a signed link.
func (s *ExportService) Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFormat.Code, appErrors.ErrUnsupportedFormat.Status, "invalid export request")
	}
	result, err := s.runs.Result(ctx, runID)
	if err != nil {
		return nil, err
	}
	payload, ext, err := s.Render(result, req.Format, req.PlanID)
	if err != nil {
		return nil, err
	}

	name := s.filename(runID, req.PlanID, ext)
	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store export")
	}
	token, expiresAt, err := s.signer.Generate(runID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign export link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("schedule exported",
		zap.String("run_id", runID),
		zap.String("format", req.Format),
		zap.String("path", relPath),
		zap.Int("bytes", len(payload)),
	)
	return &dto.ExportResponse{
		Token:     token,
		URL:       fmt.Sprintf("%s/schedules/exports/%s", prefix, token),
		Format:    req.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Render produces the file content for a run result and returns it with its extension.
func (s *ExportService) Render(result *RunResult, format, planID string) ([]byte, string, error) {
	if result == nil || result.Schedule == nil {
		return nil, "", appErrors.ErrRunNotFinished
	}
	if planID != "" && !lo.ContainsBy(result.Schedule.Blocks, func(b models.Block) bool { return b.PlanID == planID }) {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("study plan %s is not part of this run", planID))
	}
	if format == FormatJSON {
		payload, err := s.renderJSON(result, planID)
		return payload, FormatJSON, err
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
	payload, err := renderer.Render(s.TimetableDataset(result, planID))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render export")
	}
	return payload, renderer.Extension(), nil
}

// Resolve validates a download token and locates the stored file.
func (s *ExportService) Resolve(token string) (*ExportFile, error) {
	ticket, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "export link expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid export link")
	}
	fullPath, err := s.storage.Path(ticket.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid export link")
	}
	if _, err := os.Stat(fullPath); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	name := path.Base(ticket.Path)
	return &ExportFile{
		RunID:       ticket.RunID,
		Path:        fullPath,
		Name:        name,
		ContentType: s.contentType(strings.TrimPrefix(path.Ext(name), ".")),
	}, nil
}

// Cleanup removes exports older than the configured result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// StartCleanup runs Cleanup every CleanupInterval until ctx ends or StopCleanup is called.
func (s *ExportService) StartCleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	ctx, s.stop = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Cleanup()
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

// StopCleanup stops the cleanup loop.
func (s *ExportService) StopCleanup() {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// TimetableDataset lays the placed blocks out by day and period.
func (s *ExportService) TimetableDataset(result *RunResult, planID string) export.Dataset {
	schedule := result.Schedule
	names := newNameIndex(result.Dataset)
	blocks := make(map[string]models.Block, len(schedule.Blocks))
	for _, b := range schedule.Blocks {
		blocks[b.ID] = b
	}

	assignments := make([]models.Assignment, 0, len(schedule.Assignments))
	for _, a := range schedule.Assignments {
		if planID != "" && blocks[a.BlockID].PlanID != planID {
			continue
		}
		assignments = append(assignments, a)
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		ai, aj := assignments[i], assignments[j]
		if ai.Day != aj.Day {
			return ai.Day < aj.Day
		}
		if ai.Start != aj.Start {
			return ai.Start < aj.Start
		}
		return blocks[ai.BlockID].Index < blocks[aj.BlockID].Index
	})

	headers := []string{"Day", "Time", "Plan", "Course", "Session", "Group", "Staff", "Facility"}
	rows := make([]map[string]string, 0, len(assignments))
	for _, a := range assignments {
		b := blocks[a.BlockID]
		group := "all"
		if !b.SingleGroup() {
			group = fmt.Sprintf("%d/%d", b.Group, b.TotalGroups)
		}
		course := b.CourseName
		if course == "" {
			course = b.CourseID
		}
		rows = append(rows, map[string]string{
			"Day":      dayName(a.Day),
			"Time":     s.timeRange(a.Start, a.Duration),
			"Plan":     names.plan(b.PlanID),
			"Course":   course,
			"Session":  string(b.SessionType),
			"Group":    group,
			"Staff":    names.staff(a.StaffID),
			"Facility": names.facility(a.FacilityID),
		})
	}

	title := "Timetable"
	if planID != "" {
		title = "Timetable " + names.plan(planID)
	}
	return export.Dataset{Title: title, Headers: headers, Rows: rows}
}

func (s *ExportService) renderJSON(result *RunResult, planID string) ([]byte, error) {
	schedule := *result.Schedule
	schedule.Events = nil
	if planID != "" {
		schedule.Blocks = lo.Filter(schedule.Blocks, func(b models.Block, _ int) bool { return b.PlanID == planID })
		keep := lo.Associate(schedule.Blocks, func(b models.Block) (string, bool) { return b.ID, true })
		schedule.Assignments = lo.Filter(schedule.Assignments, func(a models.Assignment, _ int) bool { return keep[a.BlockID] })
		schedule.Conflicts = lo.Filter(schedule.Conflicts, func(c models.Conflict, _ int) bool { return keep[c.BlockID] })
	}
	payload, err := json.MarshalIndent(struct {
		RunID    string           `json:"runId"`
		PlanID   string           `json:"planId,omitempty"`
		Schedule *models.Schedule `json:"schedule"`
	}{RunID: result.RunID, PlanID: planID, Schedule: &schedule}, "", "  ")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render json export")
	}
	return payload, nil
}

func (s *ExportService) timeRange(start, duration int) string {
	from := s.dayStart.Add(time.Duration(start) * s.cfg.PeriodLength)
	to := from.Add(time.Duration(duration) * s.cfg.PeriodLength)
	return from.Format("15:04") + "-" + to.Format("15:04")
}

func (s *ExportService) contentType(ext string) string {
	if renderer, ok := s.renderers[ext]; ok {
		return renderer.ContentType()
	}
	if ext == FormatJSON {
		return "application/json"
	}
	return "application/octet-stream"
}

func (s *ExportService) filename(runID, planID, ext string) string {
	part := "all"
	if planID != "" {
		part = sanitizeFilename(planID)
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s/timetable_%s_%s.%s", sanitizeFilename(runID), part, timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func dayName(day int) string {
	if day >= 0 && day < len(dayNames) {
		return dayNames[day]
	}
	return fmt.Sprintf("Day %d", day+1)
}

// nameIndex resolves display names, falling back to ids when no dataset is known.
type nameIndex struct {
	plans      map[string]string
	staffNames map[string]string
	facilities map[string]string
}

func newNameIndex(dataset *models.Dataset) nameIndex {
	idx := nameIndex{plans: map[string]string{}, staffNames: map[string]string{}, facilities: map[string]string{}}
	if dataset == nil {
		return idx
	}
	for _, p := range dataset.Plans {
		idx.plans[p.ID] = p.Name
	}
	for _, m := range dataset.Staff {
		idx.staffNames[m.ID] = m.Name
	}
	for _, f := range dataset.Facilities {
		idx.facilities[f.ID] = f.Name
	}
	return idx
}

func (n nameIndex) plan(id string) string     { return lookupName(n.plans, id) }
func (n nameIndex) staff(id string) string    { return lookupName(n.staffNames, id) }
func (n nameIndex) facility(id string) string { return lookupName(n.facilities, id) }

func lookupName(names map[string]string, id string) string {
	if name := names[id]; name != "" {
		return name
	}
	return id
}
