package domain

import (
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/calendar"
)

// LeaveType classifies a leave request.
type LeaveType string

const (
	LeaveVacation  LeaveType = "vacation"
	LeaveSick      LeaveType = "sick"
	LeavePersonal  LeaveType = "personal"
	LeaveEmergency LeaveType = "emergency"
	LeaveTraining  LeaveType = "training"
)

// IsValid reports whether the type is a member of the closed enum.
func (t LeaveType) IsValid() bool {
	switch t {
	case LeaveVacation, LeaveSick, LeavePersonal, LeaveEmergency, LeaveTraining:
		return true
	}
	return false
}

// IsUrgent reports whether the leave type escalates a shift conflict to
// HIGH severity.
func (t LeaveType) IsUrgent() bool {
	return t == LeaveSick || t == LeaveEmergency
}

// LeaveStatus is the lifecycle state of a leave request.
type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

// IsValid reports whether the status is a member of the closed enum.
func (s LeaveStatus) IsValid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected, LeaveCancelled:
		return true
	}
	return false
}

// LeaveRequest covers the civil-date interval [StartDate, EndDate], both
// ends inclusive. A single-day request has StartDate == EndDate and counts
// one day. Version backs optimistic concurrency on decisions.
type LeaveRequest struct {
	ID            string      `db:"id" json:"id"`
	EmployeeID    string      `db:"employee_id" json:"employee_id"`
	LeaveType     LeaveType   `db:"leave_type" json:"leave_type"`
	StartDate     time.Time   `db:"start_date" json:"start_date"`
	EndDate       time.Time   `db:"end_date" json:"end_date"`
	DaysRequested float64     `db:"days_requested" json:"days_requested"`
	Status        LeaveStatus `db:"status" json:"status"`
	Reason        *string     `db:"reason" json:"reason,omitempty"`
	DecidedBy     *string     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
	DecisionNote  *string     `db:"decision_note" json:"decision_note,omitempty"`
	Version       int         `db:"version" json:"version"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// StartCivil returns the first covered civil date.
func (l *LeaveRequest) StartCivil() calendar.Date {
	return calendar.DateOf(l.StartDate, time.UTC)
}

// EndCivil returns the last covered civil date.
func (l *LeaveRequest) EndCivil() calendar.Date {
	return calendar.DateOf(l.EndDate, time.UTC)
}

// Covers reports whether the leave includes the given civil date.
func (l *LeaveRequest) Covers(d calendar.Date) bool {
	return !d.Before(l.StartCivil()) && !d.After(l.EndCivil())
}

// IntersectsDates reports whether the leave intersects [start, end]
// inclusive.
func (l *LeaveRequest) IntersectsDates(start, end calendar.Date) bool {
	return !l.EndCivil().Before(start) && !l.StartCivil().After(end)
}
