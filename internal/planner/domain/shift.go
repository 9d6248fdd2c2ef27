package domain

import (
	"time"

	"github.com/lib/pq"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
)

// ShiftClass identifies which fairness ledger and generator apply to a shift.
type ShiftClass string

const (
	ClassIncidents  ShiftClass = "incidents"
	ClassWaakdienst ShiftClass = "waakdienst"
	ClassChanges    ShiftClass = "changes"
	ClassProject    ShiftClass = "project"
)

// AllShiftClasses lists every valid class in generator order.
var AllShiftClasses = []ShiftClass{ClassIncidents, ClassWaakdienst, ClassChanges, ClassProject}

// IsValid reports whether the class is a member of the closed enum.
func (c ShiftClass) IsValid() bool {
	switch c {
	case ClassIncidents, ClassWaakdienst, ClassChanges, ClassProject:
		return true
	}
	return false
}

// ShiftStatus is the lifecycle state of a shift.
type ShiftStatus string

const (
	ShiftScheduled  ShiftStatus = "scheduled"
	ShiftConfirmed  ShiftStatus = "confirmed"
	ShiftInProgress ShiftStatus = "in_progress"
	ShiftCompleted  ShiftStatus = "completed"
	ShiftCancelled  ShiftStatus = "cancelled"
)

// IsValid reports whether the status is a member of the closed enum.
func (s ShiftStatus) IsValid() bool {
	switch s {
	case ShiftScheduled, ShiftConfirmed, ShiftInProgress, ShiftCompleted, ShiftCancelled:
		return true
	}
	return false
}

// ShiftTemplate defines the shape of shifts of one class.
// Templates are safe-deleted (flagged inactive) while shifts reference them.
type ShiftTemplate struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Class             ShiftClass     `db:"class" json:"class"`
	StartTime         string         `db:"start_time" json:"start_time"` // HH:MM
	EndTime           string         `db:"end_time" json:"end_time"`     // HH:MM
	RequiredHeadcount int            `db:"required_headcount" json:"required_headcount"`
	RequiredSkills    pq.StringArray `db:"required_skills" json:"required_skills"`
	Category          *string        `db:"category" json:"category,omitempty"`
	Tags              pq.StringArray `db:"tags" json:"tags"`
	Favorite          bool           `db:"favorite" json:"favorite"`
	UsageCount        int            `db:"usage_count" json:"usage_count"`
	Active            bool           `db:"active" json:"active"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time     `db:"deleted_at" json:"-"`
}

// Shift is a half-open interval [Start, End) assigned to one employee.
// Version backs optimistic concurrency on updates.
type Shift struct {
	ID           string      `db:"id" json:"id"`
	TemplateID   string      `db:"template_id" json:"template_id"`
	EmployeeID   string      `db:"employee_id" json:"employee_id"`
	TeamID       *string     `db:"team_id" json:"team_id,omitempty"`
	Class        ShiftClass  `db:"class" json:"class"`
	Start        time.Time   `db:"start_time" json:"start"`
	End          time.Time   `db:"end_time" json:"end"`
	Status       ShiftStatus `db:"status" json:"status"`
	Notes        *string     `db:"notes" json:"notes,omitempty"`
	AutoAssigned bool        `db:"auto_assigned" json:"auto_assigned"`
	Reason       *string     `db:"reason" json:"reason,omitempty"`
	Version      int         `db:"version" json:"version"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time  `db:"deleted_at" json:"-"`
}

// DurationHours returns the shift length in hours.
func (s *Shift) DurationHours() float64 {
	return s.End.Sub(s.Start).Hours()
}

// IsCounted reports whether the shift participates in overlap, hour, and
// fairness accounting. Cancelled shifts never count.
func (s *Shift) IsCounted() bool {
	return s.Status != ShiftCancelled
}

// Overlaps reports whether two half-open intervals intersect.
func (s *Shift) Overlaps(other *Shift) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// OverlapsInterval reports whether the shift intersects [start, end).
func (s *Shift) OverlapsInterval(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// CoveredDates returns every civil date the shift touches in the given
// location. The end instant is exclusive, so a shift ending at midnight
// does not cover the following day.
func (s *Shift) CoveredDates(loc *time.Location) []calendar.Date {
	first := calendar.DateOf(s.Start, loc)
	last := calendar.DateOf(s.End.Add(-time.Nanosecond), loc)
	return calendar.DatesBetween(first, last)
}

// RecurrenceKind is the cadence of a recurring shift pattern.
type RecurrenceKind string

const (
	RecurDaily    RecurrenceKind = "daily"
	RecurWeekly   RecurrenceKind = "weekly"
	RecurBiweekly RecurrenceKind = "biweekly"
	RecurMonthly  RecurrenceKind = "monthly"
)

// IsValid reports whether the kind is a member of the closed enum.
func (k RecurrenceKind) IsValid() bool {
	switch k {
	case RecurDaily, RecurWeekly, RecurBiweekly, RecurMonthly:
		return true
	}
	return false
}

// RecurringShiftPattern emits shifts on a cadence. Generation is
// idempotent; LastGeneratedThrough records the horizon already covered.
type RecurringShiftPattern struct {
	ID                   string         `db:"id" json:"id"`
	TemplateID           string         `db:"template_id" json:"template_id"`
	Kind                 RecurrenceKind `db:"kind" json:"kind"`
	StartTime            string         `db:"start_time" json:"start_time"` // HH:MM
	EndTime              string         `db:"end_time" json:"end_time"`     // HH:MM
	Weekdays             pq.Int64Array  `db:"weekdays" json:"weekdays"`     // time.Weekday values
	DayOfMonth           *int           `db:"day_of_month" json:"day_of_month,omitempty"`
	PatternStart         time.Time      `db:"pattern_start" json:"pattern_start"`
	PatternEnd           *time.Time     `db:"pattern_end" json:"pattern_end,omitempty"`
	EmployeeID           *string        `db:"employee_id" json:"employee_id,omitempty"`
	TeamID               *string        `db:"team_id" json:"team_id,omitempty"`
	Active               bool           `db:"active" json:"active"`
	LastGeneratedThrough *time.Time     `db:"last_generated_through" json:"last_generated_through,omitempty"`
	CreatedBy            string         `db:"created_by" json:"created_by"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt            *time.Time     `db:"deleted_at" json:"-"`
}

// OnWeekday reports whether the pattern's weekday set includes wd.
func (p *RecurringShiftPattern) OnWeekday(wd time.Weekday) bool {
	for _, w := range p.Weekdays {
		if time.Weekday(w) == wd {
			return true
		}
	}
	return false
}
