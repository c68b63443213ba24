package models

import "fmt"

// SessionType enumerates the kinds of teaching session a course can require.
type SessionType string

const (
	SessionLecture  SessionType = "lecture"
	SessionLab      SessionType = "lab"
	SessionTutorial SessionType = "tutorial"
)

// Valid reports whether the session type is one of the known values.
func (t SessionType) Valid() bool {
	switch t {
	case SessionLecture, SessionLab, SessionTutorial:
		return true
	default:
		return false
	}
}

// FacilityTypes returns the exact facility type a session needs and the
// compatible supersets that may host it at a mismatch cost.
func (t SessionType) FacilityTypes() (FacilityType, []FacilityType) {
	switch t {
	case SessionLab:
		return FacilityLab, nil
	case SessionTutorial:
		return FacilityHall, []FacilityType{FacilityLab}
	default:
		return FacilityHall, nil
	}
}

// Accepts reports whether a facility of type ft can host the session and whether it is an exact match.
func (t SessionType) Accepts(ft FacilityType) (ok bool, exact bool) {
	want, supersets := t.FacilityTypes()
	if ft == want {
		return true, true
	}
	for _, s := range supersets {
		if s == ft {
			return true, false
		}
	}
	return false, false
}

// FacilityType enumerates physical room kinds.
type FacilityType string

const (
	FacilityHall FacilityType = "hall"
	FacilityLab  FacilityType = "lab"
)

// Valid reports whether the facility type is known.
func (t FacilityType) Valid() bool {
	return t == FacilityHall || t == FacilityLab
}

// CostCategory enumerates the soft-constraint categories that contribute to schedule cost.
type CostCategory string

const (
	CostStaffPreference  CostCategory = "staff_preference"
	CostFragmentation    CostCategory = "fragmentation"
	CostFacilityMismatch CostCategory = "facility_mismatch"
	CostCapacityWaste    CostCategory = "capacity_waste"
)

// CostCategories lists every category in reporting order.
var CostCategories = []CostCategory{
	CostStaffPreference,
	CostFragmentation,
	CostFacilityMismatch,
	CostCapacityWaste,
}

// TimeSlot is one (day, period) cell of the weekly grid. Both indices are zero based.
type TimeSlot struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("d%d.p%d", s.Day, s.Period)
}

// Grid describes the weekly time-slot universe.
type Grid struct {
	Days          int `json:"days"`
	PeriodsPerDay int `json:"periodsPerDay"`
}

// Contains reports whether the slot lies on the grid.
func (g Grid) Contains(s TimeSlot) bool {
	return s.Day >= 0 && s.Day < g.Days && s.Period >= 0 && s.Period < g.PeriodsPerDay
}

// Size returns the number of cells.
func (g Grid) Size() int {
	return g.Days * g.PeriodsPerDay
}

// Slots returns every cell ordered by day then period.
func (g Grid) Slots() []TimeSlot {
	slots := make([]TimeSlot, 0, g.Size())
	for d := 0; d < g.Days; d++ {
		for p := 0; p < g.PeriodsPerDay; p++ {
			slots = append(slots, TimeSlot{Day: d, Period: p})
		}
	}
	return slots
}

// Run returns the contiguous slots starting at (day, start). It returns nil when the run leaves the grid.
func (g Grid) Run(day, start, duration int) []TimeSlot {
	if duration <= 0 || day < 0 || day >= g.Days || start < 0 || start+duration > g.PeriodsPerDay {
		return nil
	}
	slots := make([]TimeSlot, duration)
	for i := range slots {
		slots[i] = TimeSlot{Day: day, Period: start + i}
	}
	return slots
}

// Window is an availability range on one day covering periods [Start, End).
type Window struct {
	Day   int `json:"day"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Covers reports whether the slot falls inside the window.
func (w Window) Covers(s TimeSlot) bool {
	return s.Day == w.Day && s.Period >= w.Start && s.Period < w.End
}

// WindowsCover treats an empty window list as unrestricted availability.
func WindowsCover(windows []Window, s TimeSlot) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Covers(s) {
			return true
		}
	}
	return false
}
