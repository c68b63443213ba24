package models

import "github.com/samber/lo"

// ScheduleStatus is the feasibility verdict attached to every engine result.
type ScheduleStatus string

const (
	ScheduleFeasible  ScheduleStatus = "feasible"
	SchedulePartial   ScheduleStatus = "partial"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Phase is a state of the scheduling state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseScheduling   Phase = "scheduling"
	PhaseOptimizing   Phase = "optimizing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// Terminal reports whether no further events follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Block is one weekly occurrence of one course session, the unit the engine places.
type Block struct {
	ID           string       `json:"id"`
	Index        int          `json:"index"`
	PlanID       string       `json:"planId"`
	PlanIndex    int          `json:"planIndex"`
	CourseID     string       `json:"courseId"`
	CourseName   string       `json:"courseName"`
	SessionType  SessionType  `json:"sessionType"`
	Duration     int          `json:"duration"`
	StaffID      string       `json:"staffId"`
	FacilityType FacilityType `json:"facilityType"`
	GroupSize    int          `json:"groupSize"`
	Group        int          `json:"group"`
	TotalGroups  int          `json:"totalGroups"`
	Occurrence   int          `json:"occurrence"`

	PreferredFacilities []string `json:"preferredFacilities,omitempty"`
}

// SingleGroup reports whether the whole cohort of the plan attends this block.
func (b Block) SingleGroup() bool {
	return b.TotalGroups <= 1
}

// Admits reports whether the block may use the facility regardless of its type:
// a block with preferred facilities is restricted to them, any other block
// stays out of specialist facilities.
func (b Block) Admits(f Facility) bool {
	if len(b.PreferredFacilities) > 0 {
		return lo.Contains(b.PreferredFacilities, f.ID)
	}
	return !f.Specialist
}

// Assignment places a block on a contiguous run of periods in one facility.
type Assignment struct {
	BlockID    string `json:"blockId"`
	Day        int    `json:"day"`
	Start      int    `json:"start"`
	Duration   int    `json:"duration"`
	FacilityID string `json:"facilityId"`
	StaffID    string `json:"staffId"`
}

// Slots expands the assignment into the time slots it occupies.
func (a Assignment) Slots() []TimeSlot {
	slots := make([]TimeSlot, a.Duration)
	for i := range slots {
		slots[i] = TimeSlot{Day: a.Day, Period: a.Start + i}
	}
	return slots
}

// Overlaps reports whether two assignments share at least one slot.
func (a Assignment) Overlaps(b Assignment) bool {
	if a.Day != b.Day {
		return false
	}
	return a.Start < b.Start+b.Duration && b.Start < a.Start+a.Duration
}

// ConflictReason enumerates why a block stayed unplaced.
type ConflictReason string

const (
	ReasonNoFacilityType      ConflictReason = "no_facility_type"
	ReasonFacilityRestricted  ConflictReason = "facility_restricted"
	ReasonCapacity            ConflictReason = "capacity"
	ReasonDuration            ConflictReason = "duration"
	ReasonStaffUnavailable    ConflictReason = "staff_unavailable"
	ReasonFacilityUnavailable ConflictReason = "facility_unavailable"
	ReasonNoCommonSlot        ConflictReason = "no_common_slot"
	ReasonStaffBusy           ConflictReason = "staff_busy"
	ReasonFacilityBusy        ConflictReason = "facility_busy"
	ReasonCohortClash         ConflictReason = "cohort_clash"
	ReasonStaffOverloaded     ConflictReason = "staff_overloaded"
	ReasonInvalidPlacement    ConflictReason = "invalid_placement"
	ReasonNotAttempted        ConflictReason = "not_attempted"
)

// Conflict explains an unplaced block.
type Conflict struct {
	BlockID       string         `json:"blockId"`
	Reason        ConflictReason `json:"reason"`
	Message       string         `json:"message"`
	RelatedBlocks []string       `json:"relatedBlocks,omitempty"`
}

// CostSummary breaks total soft cost down per category.
type CostSummary struct {
	Total      float64                  `json:"total"`
	Categories map[CostCategory]float64 `json:"categories"`
}

// Schedule is the aggregate result of one engine run.
type Schedule struct {
	Status          ScheduleStatus  `json:"status"`
	Phase           Phase           `json:"phase"`
	Grid            Grid            `json:"grid"`
	Blocks          []Block         `json:"blocks"`
	Assignments     []Assignment    `json:"assignments"`
	Conflicts       []Conflict      `json:"conflicts"`
	Cost            CostSummary     `json:"cost"`
	Attempts        int             `json:"attempts"`
	OptimizerRounds int             `json:"optimizerRounds"`
	MovesAccepted   int             `json:"movesAccepted"`
	Events          []ProgressEvent `json:"events,omitempty"`
}

// Placed returns the number of assigned blocks.
func (s *Schedule) Placed() int {
	if s == nil {
		return 0
	}
	return len(s.Assignments)
}

// ProgressEvent is one structured progress notification. It carries no wall-clock
// data so identical runs produce identical event streams.
type ProgressEvent struct {
	Sequence        int     `json:"sequence"`
	Phase           Phase   `json:"phase"`
	Percentage      float64 `json:"percentage"`
	Attempt         int     `json:"attempt,omitempty"`
	MaxAttempts     int     `json:"maxAttempts,omitempty"`
	PlanID          string  `json:"planId,omitempty"`
	PlanIndex       int     `json:"planIndex,omitempty"`
	TotalPlans      int     `json:"totalPlans,omitempty"`
	PlanBlocksDone  int     `json:"planBlocksDone,omitempty"`
	PlanBlocksTotal int     `json:"planBlocksTotal,omitempty"`
	BlocksScheduled int     `json:"blocksScheduled"`
	TotalBlocks     int     `json:"totalBlocks"`
	Round           int     `json:"round,omitempty"`
	Cost            float64 `json:"cost,omitempty"`
	Message         string  `json:"message,omitempty"`
}
