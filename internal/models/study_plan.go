package models

// StaffAssignment binds a staff member to a number of parallel groups of a session.
type StaffAssignment struct {
	StaffID string `json:"staffId"`
	Groups  int    `json:"groups"`
}

// SessionRequirement describes one recurring session type of a course.
// PreferredFacilities, when set, is the only set of rooms the session may use.
type SessionRequirement struct {
	Type                SessionType       `json:"type"`
	WeeklyCount         int               `json:"weeklyCount"`
	Duration            int               `json:"duration"`
	Staff               []StaffAssignment `json:"staff"`
	PreferredFacilities []string          `json:"preferredFacilities,omitempty"`
}

// TotalGroups returns the number of parallel sections across all staff.
func (r SessionRequirement) TotalGroups() int {
	total := 0
	for _, s := range r.Staff {
		total += s.GroupCount()
	}
	return total
}

// GroupCount normalises an unset group count to a single group.
func (a StaffAssignment) GroupCount() int {
	if a.Groups <= 0 {
		return 1
	}
	return a.Groups
}

// Course is a unit of teaching owned by a study plan.
type Course struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	GroupSize int                  `json:"groupSize"`
	Sessions  []SessionRequirement `json:"sessions"`
}

// StudyPlan is an academic programme whose courses are scheduled together.
type StudyPlan struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Courses []Course `json:"courses"`
}

// Staff is a lecturer or teaching assistant.
type Staff struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Availability     []Window `json:"availability,omitempty"`
	MaxWeeklyLoad    int      `json:"maxWeeklyLoad,omitempty"`
	MaxDailyLoad     int      `json:"maxDailyLoad,omitempty"`
	Preferred        []Window `json:"preferred,omitempty"`
	PreferenceWeight float64  `json:"preferenceWeight,omitempty"`
}

// Facility is a lecture hall or lab. A specialist facility only hosts sessions
// that list it among their preferred facilities.
type Facility struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         FacilityType `json:"type"`
	Capacity     int          `json:"capacity"`
	Specialist   bool         `json:"specialist,omitempty"`
	Availability []Window     `json:"availability,omitempty"`
}

// Dataset is a complete scheduling input as stored in a file or the database.
// Grid is optional and only set by dataset files that pin their own grid.
type Dataset struct {
	Grid       *Grid       `json:"grid,omitempty"`
	Plans      []StudyPlan `json:"plans"`
	Staff      []Staff     `json:"staff"`
	Facilities []Facility  `json:"facilities"`
}
