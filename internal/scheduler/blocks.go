package scheduler

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// DataIssue describes one missing or malformed field of the input data.
type DataIssue struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i DataIssue) String() string {
	if i.ID == "" {
		return fmt.Sprintf("%s.%s: %s", i.Entity, i.Field, i.Message)
	}
	return fmt.Sprintf("%s %s.%s: %s", i.Entity, i.ID, i.Field, i.Message)
}

// IncompleteDataError is returned before scheduling starts when the input cannot be
// turned into blocks. It lists every issue found, not just the first.
type IncompleteDataError struct {
	Issues []DataIssue
}

func (e *IncompleteDataError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "incomplete data"
	}
	parts := lo.Map(e.Issues, func(issue DataIssue, _ int) string { return issue.String() })
	if len(parts) > 5 {
		parts = append(parts[:5], fmt.Sprintf("and %d more", len(e.Issues)-5))
	}
	return fmt.Sprintf("incomplete data (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// ValidateInput checks the study plans, staff and facilities for the fields block
// generation and placement depend on.
func ValidateInput(grid models.Grid, plans []models.StudyPlan, staff []models.Staff, facilities []models.Facility) []DataIssue {
	var issues []DataIssue
	add := func(entity, id, field, format string, args ...any) {
		issues = append(issues, DataIssue{Entity: entity, ID: id, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(plans) == 0 {
		add("study_plan", "", "id", "at least one study plan is required")
	}

	staffIDs := make(map[string]bool, len(staff))
	for i, member := range staff {
		if member.ID == "" {
			add("staff", fmt.Sprintf("#%d", i), "id", "missing id")
			continue
		}
		if staffIDs[member.ID] {
			add("staff", member.ID, "id", "duplicate id")
		}
		staffIDs[member.ID] = true
		if member.MaxWeeklyLoad < 0 || member.MaxDailyLoad < 0 {
			add("staff", member.ID, "maxLoad", "load limits must not be negative")
		}
		if member.PreferenceWeight < 0 {
			add("staff", member.ID, "preferenceWeight", "must not be negative")
		}
		issues = append(issues, validateWindows(grid, "staff", member.ID, "availability", member.Availability)...)
		issues = append(issues, validateWindows(grid, "staff", member.ID, "preferred", member.Preferred)...)
	}

	facilityIDs := make(map[string]bool, len(facilities))
	facilityTypes := make(map[string]models.FacilityType, len(facilities))
	for i, facility := range facilities {
		if facility.ID == "" {
			add("facility", fmt.Sprintf("#%d", i), "id", "missing id")
			continue
		}
		if facilityIDs[facility.ID] {
			add("facility", facility.ID, "id", "duplicate id")
		}
		facilityIDs[facility.ID] = true
		facilityTypes[facility.ID] = facility.Type
		if !facility.Type.Valid() {
			add("facility", facility.ID, "type", "unknown facility type %q", facility.Type)
		}
		if facility.Capacity <= 0 {
			add("facility", facility.ID, "capacity", "must be positive")
		}
		issues = append(issues, validateWindows(grid, "facility", facility.ID, "availability", facility.Availability)...)
	}

	planIDs := make(map[string]bool, len(plans))
	for i, plan := range plans {
		if plan.ID == "" {
			add("study_plan", fmt.Sprintf("#%d", i), "id", "missing id")
			continue
		}
		if planIDs[plan.ID] {
			add("study_plan", plan.ID, "id", "duplicate id")
		}
		planIDs[plan.ID] = true
		if len(plan.Courses) == 0 {
			add("study_plan", plan.ID, "courses", "no courses")
		}

		courseIDs := make(map[string]bool, len(plan.Courses))
		for j, course := range plan.Courses {
			if course.ID == "" {
				add("course", fmt.Sprintf("%s#%d", plan.ID, j), "id", "missing id")
				continue
			}
			if courseIDs[course.ID] {
				add("course", course.ID, "id", "duplicate id in plan %s", plan.ID)
			}
			courseIDs[course.ID] = true
			if course.GroupSize <= 0 {
				add("course", course.ID, "groupSize", "must be positive")
			}
			if len(course.Sessions) == 0 {
				add("course", course.ID, "sessions", "no session requirements")
			}

			seenTypes := make(map[models.SessionType]bool)
			for _, session := range course.Sessions {
				if !session.Type.Valid() {
					add("course", course.ID, "sessions.type", "unknown session type %q", session.Type)
					continue
				}
				if seenTypes[session.Type] {
					add("course", course.ID, "sessions.type", "session type %s declared twice", session.Type)
				}
				seenTypes[session.Type] = true
				if session.WeeklyCount <= 0 {
					add("course", course.ID, "sessions.weeklyCount", "%s weekly count must be positive", session.Type)
				}
				if session.Duration <= 0 {
					add("course", course.ID, "sessions.duration", "%s duration must be positive", session.Type)
				}
				if len(session.Staff) == 0 {
					add("course", course.ID, "sessions.staff", "no staff assigned for %s", session.Type)
				}
				for _, assigned := range session.Staff {
					switch {
					case assigned.StaffID == "":
						add("course", course.ID, "sessions.staff", "%s staff assignment without staff id", session.Type)
					case !staffIDs[assigned.StaffID]:
						add("course", course.ID, "sessions.staff", "unknown staff %s for %s", assigned.StaffID, session.Type)
					}
					if assigned.Groups < 0 {
						add("course", course.ID, "sessions.staff.groups", "negative group count for staff %s", assigned.StaffID)
					}
				}
				for _, facilityID := range session.PreferredFacilities {
					ft, ok := facilityTypes[facilityID]
					if !ok {
						add("course", course.ID, "sessions.preferredFacilities", "unknown facility %s for %s", facilityID, session.Type)
						continue
					}
					if accepted, _ := session.Type.Accepts(ft); !accepted {
						add("course", course.ID, "sessions.preferredFacilities", "%s facility %s cannot host %s", ft, facilityID, session.Type)
					}
				}
			}
		}
	}

	return issues
}

func validateWindows(grid models.Grid, entity, id, field string, windows []models.Window) []DataIssue {
	var issues []DataIssue
	for _, w := range windows {
		if w.Day < 0 || w.Day >= grid.Days || w.Start < 0 || w.End > grid.PeriodsPerDay || w.Start >= w.End {
			issues = append(issues, DataIssue{
				Entity:  entity,
				ID:      id,
				Field:   field,
				Message: fmt.Sprintf("window day=%d [%d,%d) lies outside the %dx%d grid", w.Day, w.Start, w.End, grid.Days, grid.PeriodsPerDay),
			})
		}
	}
	return issues
}

// GenerateBlocks expands the study plans into unassigned blocks. Each staff
// assignment teaches its share of parallel groups and every group receives
// WeeklyCount blocks. Blocks are ordered by plan, course, session, group and
// occurrence, and Block.Index equals the position in the returned slice.
func GenerateBlocks(grid models.Grid, plans []models.StudyPlan, staff []models.Staff, facilities []models.Facility) ([]models.Block, error) {
	if issues := ValidateInput(grid, plans, staff, facilities); len(issues) > 0 {
		return nil, &IncompleteDataError{Issues: issues}
	}

	var blocks []models.Block
	for planIndex, plan := range plans {
		for _, course := range plan.Courses {
			for _, session := range course.Sessions {
				totalGroups := session.TotalGroups()
				groupSize := (course.GroupSize + totalGroups - 1) / totalGroups
				facilityType, _ := session.Type.FacilityTypes()

				group := 0
				for _, assigned := range session.Staff {
					for g := 0; g < assigned.GroupCount(); g++ {
						group++
						for occurrence := 1; occurrence <= session.WeeklyCount; occurrence++ {
							blocks = append(blocks, models.Block{
								ID:           fmt.Sprintf("%s/%s/%s/g%d/%d", plan.ID, course.ID, session.Type, group, occurrence),
								Index:        len(blocks),
								PlanID:       plan.ID,
								PlanIndex:    planIndex,
								CourseID:     course.ID,
								CourseName:   course.Name,
								SessionType:  session.Type,
								Duration:     session.Duration,
								StaffID:      assigned.StaffID,
								FacilityType: facilityType,
								GroupSize:    groupSize,
								Group:        group,
								TotalGroups:  totalGroups,
								Occurrence:   occurrence,

								PreferredFacilities: session.PreferredFacilities,
							})
						}
					}
				}
			}
		}
	}
	return blocks, nil
}
