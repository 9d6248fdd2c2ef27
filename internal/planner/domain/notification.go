package domain

import "time"

// NotificationClass is the kind of event a notification describes.
type NotificationClass string

const (
	NotifyShiftAssigned       NotificationClass = "shift_assigned"
	NotifyShiftUpdated        NotificationClass = "shift_updated"
	NotifyShiftCancelled      NotificationClass = "shift_cancelled"
	NotifySchedulePublished   NotificationClass = "schedule_published"
	NotifySwapRequested       NotificationClass = "swap_requested"
	NotifySwapApprovalPending NotificationClass = "swap_approval_pending"
	NotifySwapApproved        NotificationClass = "swap_approved"
	NotifySwapRejected        NotificationClass = "swap_rejected"
	NotifyLeaveRequested      NotificationClass = "leave_requested"
	NotifyLeaveDecided        NotificationClass = "leave_decided"
)

// IsValid reports whether the class is a member of the closed enum.
func (c NotificationClass) IsValid() bool {
	switch c {
	case NotifyShiftAssigned, NotifyShiftUpdated, NotifyShiftCancelled,
		NotifySchedulePublished, NotifySwapRequested, NotifySwapApprovalPending,
		NotifySwapApproved, NotifySwapRejected, NotifyLeaveRequested, NotifyLeaveDecided:
		return true
	}
	return false
}

// NotificationEvent is an in-app notification row. At most one row exists
// per (recipient, triggering event).
type NotificationEvent struct {
	ID           string            `db:"id" json:"id"`
	RecipientID  string            `db:"recipient_id" json:"recipient_id"`
	Class        NotificationClass `db:"class" json:"class"`
	Title        string            `db:"title" json:"title"`
	Body         string            `db:"body" json:"body"`
	ActionURL    *string           `db:"action_url" json:"action_url,omitempty"`
	ShiftID      *string           `db:"shift_id" json:"shift_id,omitempty"`
	LeaveID      *string           `db:"leave_id" json:"leave_id,omitempty"`
	SwapID       *string           `db:"swap_id" json:"swap_id,omitempty"`
	EmailEnabled bool              `db:"email_enabled" json:"email_enabled"`
	InAppEnabled bool              `db:"in_app_enabled" json:"in_app_enabled"`
	IsRead       bool              `db:"is_read" json:"is_read"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// NotificationPreference holds one recipient's opt-ins for one class plus
// their quiet-hours interval (HH:MM, organization timezone). Quiet hours
// delay email, never in-app.
type NotificationPreference struct {
	ID              string            `db:"id" json:"id"`
	EmployeeID      string            `db:"employee_id" json:"employee_id"`
	Class           NotificationClass `db:"class" json:"class"`
	EmailEnabled    bool              `db:"email_enabled" json:"email_enabled"`
	InAppEnabled    bool              `db:"in_app_enabled" json:"in_app_enabled"`
	QuietHoursStart *string           `db:"quiet_hours_start" json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string           `db:"quiet_hours_end" json:"quiet_hours_end,omitempty"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// DefaultPreference is used when a recipient has no stored preference for
// a class: both channels on, no quiet hours.
func DefaultPreference(employeeID string, class NotificationClass) *NotificationPreference {
	return &NotificationPreference{
		EmployeeID:   employeeID,
		Class:        class,
		EmailEnabled: true,
		InAppEnabled: true,
	}
}
