package domain

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
)

// SwapStatus is the lifecycle state of a swap request.
// approved is terminal and implies the shift assignments were exchanged;
// cancelled is reachable only from pending by the requester.
type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapApproved  SwapStatus = "approved"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
)

// IsValid reports whether the status is a member of the closed enum.
func (s SwapStatus) IsValid() bool {
	switch s {
	case SwapPending, SwapApproved, SwapRejected, SwapCancelled:
		return true
	}
	return false
}

// SwapRequest asks to exchange the requesting shift with the target
// employee. TargetShiftID is nil for one-way swaps (handover without a
// return shift). Version backs optimistic concurrency on decisions.
type SwapRequest struct {
	ID                string     `db:"id" json:"id"`
	RequesterID       string     `db:"requester_id" json:"requester_id"`
	TargetID          string     `db:"target_id" json:"target_id"`
	RequestingShiftID string     `db:"requesting_shift_id" json:"requesting_shift_id"`
	TargetShiftID     *string    `db:"target_shift_id" json:"target_shift_id,omitempty"`
	Reason            *string    `db:"reason" json:"reason,omitempty"`
	Status            SwapStatus `db:"status" json:"status"`
	RuleID            *string    `db:"rule_id" json:"rule_id,omitempty"`
	Version           int        `db:"version" json:"version"`
	DecidedAt         *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// SwapApprovalRule configures how swap requests of certain classes are
// approved. The highest-priority active rule whose AppliesTo includes the
// requesting shift's class wins.
type SwapApprovalRule struct {
	ID                 string         `db:"id" json:"id"`
	Name               string         `db:"name" json:"name"`
	Priority           int            `db:"priority" json:"priority"`
	Active             bool           `db:"active" json:"active"`
	AppliesTo          pq.StringArray `db:"applies_to" json:"applies_to"`
	AutoApproveEnabled bool           `db:"auto_approve_enabled" json:"auto_approve_enabled"`
	RequireSameClass   bool           `db:"require_same_class" json:"require_same_class"`
	MinAdvanceHours    *int           `db:"min_advance_hours" json:"min_advance_hours,omitempty"`
	MinSeniorityMonths *int           `db:"min_seniority_months" json:"min_seniority_months,omitempty"`
	RequireSkillsMatch bool           `db:"require_skills_match" json:"require_skills_match"`
	RequiresManager    bool           `db:"requires_manager" json:"requires_manager"`
	RequiresAdmin      bool           `db:"requires_admin" json:"requires_admin"`
	LevelsRequired     int            `db:"levels_required" json:"levels_required"` // 1..5
	AllowDelegation    bool           `db:"allow_delegation" json:"allow_delegation"`
	MonthlySwapCap     *int           `db:"monthly_swap_cap" json:"monthly_swap_cap,omitempty"`
	NotifyOnDecision   bool           `db:"notify_on_decision" json:"notify_on_decision"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt          *time.Time     `db:"deleted_at" json:"-"`
}

// AppliesToClass reports whether the rule covers the given shift class.
func (r *SwapApprovalRule) AppliesToClass(class ShiftClass) bool {
	for _, c := range r.AppliesTo {
		if ShiftClass(c) == class {
			return true
		}
	}
	return false
}

// DefaultApprovalRule is the fallback when no configured rule matches:
// one manager level, no auto-approval.
func DefaultApprovalRule() *SwapApprovalRule {
	return &SwapApprovalRule{
		Name:            "system default",
		Priority:        -1,
		Active:          true,
		RequiresManager: true,
		LevelsRequired:  1,
	}
}

// StepStatus is the state of one approval chain step.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepApproved     StepStatus = "approved"
	StepRejected     StepStatus = "rejected"
	StepSkipped      StepStatus = "skipped"
	StepDelegated    StepStatus = "delegated"
	StepAutoApproved StepStatus = "auto_approved"
)

// IsValid reports whether the status is a member of the closed enum.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepApproved, StepRejected, StepSkipped, StepDelegated, StepAutoApproved:
		return true
	}
	return false
}

// SwapApprovalChainStep is one level of a swap's approval chain.
// (SwapRequestID, Level) is unique except for delegation replacements,
// where the delegated original remains as history.
type SwapApprovalChainStep struct {
	ID            string     `db:"id" json:"id"`
	SwapRequestID string     `db:"swap_request_id" json:"swap_request_id"`
	Level         int        `db:"level" json:"level"` // 1-based
	ApproverID    string     `db:"approver_id" json:"approver_id"`
	Status        StepStatus `db:"status" json:"status"`
	DecidedAt     *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	DelegatedTo   *string    `db:"delegated_to" json:"delegated_to,omitempty"`
	RuleID        *string    `db:"rule_id" json:"rule_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// ApprovalDelegation substitutes one approver for another over a civil-date
// interval. EndDate nil means open-ended.
type ApprovalDelegation struct {
	ID          string     `db:"id" json:"id"`
	DelegatorID string     `db:"delegator_id" json:"delegator_id"`
	DelegateID  string     `db:"delegate_id" json:"delegate_id"`
	StartDate   time.Time  `db:"start_date" json:"start_date"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	Active      bool       `db:"active" json:"active"`
	Reason      *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ActiveOn reports whether the delegation is in force on the given date.
func (d *ApprovalDelegation) ActiveOn(day calendar.Date) bool {
	if !d.Active {
		return false
	}
	start := calendar.DateOf(d.StartDate, time.UTC)
	if day.Before(start) {
		return false
	}
	if d.EndDate != nil {
		end := calendar.DateOf(*d.EndDate, time.UTC)
		if day.After(end) {
			return false
		}
	}
	return true
}

// AuditAction is the kind of a swap audit entry.
type AuditAction string

const (
	AuditCreated      AuditAction = "created"
	AuditRuleApplied  AuditAction = "rule_applied"
	AuditAutoApproved AuditAction = "auto_approved"
	AuditApproved     AuditAction = "approved"
	AuditRejected     AuditAction = "rejected"
	AuditDelegated    AuditAction = "delegated"
	AuditEscalated    AuditAction = "escalated"
	AuditCancelled    AuditAction = "cancelled"
)

// IsValid reports whether the action is a member of the closed enum.
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditCreated, AuditRuleApplied, AuditAutoApproved, AuditApproved,
		AuditRejected, AuditDelegated, AuditEscalated, AuditCancelled:
		return true
	}
	return false
}

// SwapApprovalAudit is an append-only record of every swap state
// transition. ActorID nil means the system acted.
type SwapApprovalAudit struct {
	ID            string          `db:"id" json:"id"`
	SwapRequestID string          `db:"swap_request_id" json:"swap_request_id"`
	Action        AuditAction     `db:"action" json:"action"`
	ActorID       *string         `db:"actor_id" json:"actor_id,omitempty"`
	ChainStepID   *string         `db:"chain_step_id" json:"chain_step_id,omitempty"`
	RuleID        *string         `db:"rule_id" json:"rule_id,omitempty"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
