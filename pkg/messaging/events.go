package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Schedule events
	EventScheduleApplied = "planner.schedule.applied"
	EventShiftAssigned   = "planner.shift.assigned"
	EventShiftUpdated    = "planner.shift.updated"
	EventShiftDeleted    = "planner.shift.deleted"

	// Swap events
	EventSwapSubmitted    = "planner.swap.submitted"
	EventSwapAutoApproved = "planner.swap.auto_approved"
	EventSwapApproved     = "planner.swap.approved"
	EventSwapRejected     = "planner.swap.rejected"
	EventSwapCancelled    = "planner.swap.cancelled"
	EventSwapStepPending  = "planner.swap.step.pending"

	// Leave events
	EventLeaveSubmitted = "planner.leave.submitted"
	EventLeaveApproved  = "planner.leave.approved"
	EventLeaveRejected  = "planner.leave.rejected"
	EventLeaveCancelled = "planner.leave.cancelled"

	// Notification delivery
	EventEmailEnqueued = "planner.email.enqueued"
)

// Exchange and queue names
const (
	ExchangePlannerEvents = "planner.events"
	QueueEmailDelivery    = "planner.email"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Schedule Events

// ScheduleAppliedEvent is published when the orchestrator persists a run
type ScheduleAppliedEvent struct {
	TeamID      string    `json:"team_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Classes     []string  `json:"classes"`
	Created     int       `json:"created"`
	Unassigned  int       `json:"unassigned"`
	AppliedBy   string    `json:"applied_by"`
}

// ShiftAssignedEvent is published per shift created by the orchestrator or
// by bulk operations
type ShiftAssignedEvent struct {
	ShiftID    string    `json:"shift_id"`
	EmployeeID string    `json:"employee_id"`
	Class      string    `json:"class"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Auto       bool      `json:"auto_assigned"`
}

// ShiftUpdatedEvent is published when a shift is updated
type ShiftUpdatedEvent struct {
	ShiftID    string    `json:"shift_id"`
	EmployeeID string    `json:"employee_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
}

// ShiftDeletedEvent is published when a shift is cancelled or removed
type ShiftDeletedEvent struct {
	ShiftID    string `json:"shift_id"`
	EmployeeID string `json:"employee_id"`
}

// Swap Events

// SwapSubmittedEvent is published when a swap request is submitted
type SwapSubmittedEvent struct {
	SwapID       string  `json:"swap_id"`
	RequesterID  string  `json:"requester_id"`
	TargetID     string  `json:"target_id"`
	ShiftID      string  `json:"shift_id"`
	TargetShift  *string `json:"target_shift_id,omitempty"`
	RuleID       *string `json:"rule_id,omitempty"`
	AutoApproved bool    `json:"auto_approved"`
}

// SwapDecidedEvent is published when a swap reaches a terminal state
type SwapDecidedEvent struct {
	SwapID    string `json:"swap_id"`
	Status    string `json:"status"`
	DecidedBy string `json:"decided_by"`
	Notes     string `json:"notes,omitempty"`
}

// SwapStepPendingEvent is published when a chain step becomes pending
type SwapStepPendingEvent struct {
	SwapID     string `json:"swap_id"`
	StepID     string `json:"step_id"`
	Level      int    `json:"level"`
	ApproverID string `json:"approver_id"`
}

// Leave Events

// LeaveSubmittedEvent is published when a leave request is submitted
type LeaveSubmittedEvent struct {
	LeaveID    string    `json:"leave_id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Days       float64   `json:"days_requested"`
}

// LeaveDecidedEvent is published when a leave request is approved or rejected
type LeaveDecidedEvent struct {
	LeaveID   string `json:"leave_id"`
	Status    string `json:"status"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

// Email delivery

// EmailPayload is enqueued for the mail worker. DeliverAfter is set when the
// recipient's quiet hours delay delivery.
type EmailPayload struct {
	RecipientID  string     `json:"recipient_id"`
	To           string     `json:"to"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	ActionURL    string     `json:"action_url,omitempty"`
	DeliverAfter *time.Time `json:"deliver_after,omitempty"`
}
