package service

import (
	"context"
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/domain"
)

// Store is the transactional boundary over the planner's persistence.
// Atomically runs fn against a store bound to a single transaction;
// either every write in fn persists or none do.
type Store interface {
	Employees() EmployeeRepository
	Teams() TeamRepository
	Templates() TemplateRepository
	Shifts() ShiftRepository
	Patterns() PatternRepository
	Leaves() LeaveRepository
	Swaps() SwapRepository
	Approvals() ApprovalRepository
	Notifications() NotificationRepository

	Atomically(ctx context.Context, fn func(Store) error) error
}

// EmployeeRepository persists employees. Employees referenced by shifts
// are never hard-deleted; Deactivate is the only lifecycle mutation.
type EmployeeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Employee, error)
	ListActive(ctx context.Context) ([]domain.Employee, error)
	ListByTeam(ctx context.Context, teamID string) ([]domain.Employee, error)
	Create(ctx context.Context, e *domain.Employee) error
	Update(ctx context.Context, e *domain.Employee) error
	Deactivate(ctx context.Context, id string) error
}

// TeamRepository persists teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	List(ctx context.Context) ([]domain.Team, error)
	Create(ctx context.Context, t *domain.Team) error
	Update(ctx context.Context, t *domain.Team) error
}

// TemplateRepository persists shift templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ShiftTemplate, error)
	GetByName(ctx context.Context, name string) (*domain.ShiftTemplate, error)
	List(ctx context.Context, includeInactive bool) ([]domain.ShiftTemplate, error)
	Create(ctx context.Context, t *domain.ShiftTemplate) error
	Update(ctx context.Context, t *domain.ShiftTemplate) error
	Deactivate(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string, by int) error
	SetFavorite(ctx context.Context, id string, favorite bool) error
}

// ShiftFilter narrows range queries on shifts. From/To bound the
// half-open interval [From, To); zero values are ignored.
type ShiftFilter struct {
	EmployeeID *string
	TeamID     *string
	TemplateID *string
	Class      *domain.ShiftClass
	From       time.Time
	To         time.Time
	Statuses   []domain.ShiftStatus
}

// ShiftRepository persists shifts and answers the overlap and hour
// aggregation queries the conflict and fairness layers need.
type ShiftRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Shift, error)
	ListRange(ctx context.Context, f ShiftFilter) ([]domain.Shift, error)
	// FindOverlapping returns non-cancelled shifts of the employee
	// intersecting [start, end), excluding excludeID when non-nil.
	FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID *string) ([]domain.Shift, error)
	// HoursInRange sums non-cancelled shift hours of the employee whose
	// start falls in [from, to).
	HoursInRange(ctx context.Context, employeeID string, from, to time.Time) (float64, error)
	Create(ctx context.Context, s *domain.Shift) error
	// Update applies a version-checked update; a version mismatch
	// returns StaleState.
	Update(ctx context.Context, s *domain.Shift) error
	// Reassign moves the shift to a new employee, version-checked.
	Reassign(ctx context.Context, shiftID, employeeID string, version int) error
	Delete(ctx context.Context, id string) error
}

// PatternRepository persists recurring shift patterns.
type PatternRepository interface {
	GetByID(ctx context.Context, id string) (*domain.RecurringShiftPattern, error)
	ListActive(ctx context.Context) ([]domain.RecurringShiftPattern, error)
	Create(ctx context.Context, p *domain.RecurringShiftPattern) error
	Update(ctx context.Context, p *domain.RecurringShiftPattern) error
	Deactivate(ctx context.Context, id string) error
}

// LeaveFilter narrows leave queries. Start/End bound the inclusive
// civil-date interval; zero values are ignored.
type LeaveFilter struct {
	EmployeeID *string
	TeamID     *string
	Start      time.Time
	End        time.Time
	Statuses   []domain.LeaveStatus
}

// LeaveRepository persists leave requests.
type LeaveRepository interface {
	GetByID(ctx context.Context, id string) (*domain.LeaveRequest, error)
	// ListIntersecting returns leaves whose [start_date, end_date]
	// intersects the filter interval.
	ListIntersecting(ctx context.Context, f LeaveFilter) ([]domain.LeaveRequest, error)
	Create(ctx context.Context, l *domain.LeaveRequest) error
	// UpdateStatus applies a version-checked status transition; a
	// version mismatch returns StaleState.
	UpdateStatus(ctx context.Context, l *domain.LeaveRequest) error
	// DaysUsedInYear sums approved leave days of the employee in the
	// calendar year.
	DaysUsedInYear(ctx context.Context, employeeID string, year int) (float64, error)
}

// SwapRepository persists swap requests.
type SwapRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SwapRequest, error)
	// GetByIDLocked acquires a row lock on the request for the duration
	// of the enclosing transaction, serializing decisions per request.
	GetByIDLocked(ctx context.Context, id string) (*domain.SwapRequest, error)
	ListByStatus(ctx context.Context, status domain.SwapStatus) ([]domain.SwapRequest, error)
	ListForEmployee(ctx context.Context, employeeID string) ([]domain.SwapRequest, error)
	Create(ctx context.Context, s *domain.SwapRequest) error
	// UpdateStatus applies a version-checked status transition; a
	// version mismatch returns StaleState.
	UpdateStatus(ctx context.Context, s *domain.SwapRequest) error
	// CountApprovedInMonth counts approved swaps the employee initiated
	// in the calendar month containing ref.
	CountApprovedInMonth(ctx context.Context, employeeID string, ref time.Time) (int, error)
}

// ApprovalRepository persists approval rules, chain steps, delegations,
// and the append-only audit.
type ApprovalRepository interface {
	// Rules
	GetRule(ctx context.Context, id string) (*domain.SwapApprovalRule, error)
	ListActiveRules(ctx context.Context) ([]domain.SwapApprovalRule, error)
	CreateRule(ctx context.Context, r *domain.SwapApprovalRule) error
	UpdateRule(ctx context.Context, r *domain.SwapApprovalRule) error

	// Chain steps
	GetStep(ctx context.Context, id string) (*domain.SwapApprovalChainStep, error)
	ListSteps(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalChainStep, error)
	// ListPendingStepsFor returns raw pending steps assigned to the
	// approver; delegation expansion happens in the service.
	ListPendingStepsFor(ctx context.Context, approverID string) ([]domain.SwapApprovalChainStep, error)
	CreateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error
	UpdateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error

	// Delegations
	GetDelegation(ctx context.Context, id string) (*domain.ApprovalDelegation, error)
	ListActiveDelegations(ctx context.Context) ([]domain.ApprovalDelegation, error)
	ListDelegationsBy(ctx context.Context, delegatorID string) ([]domain.ApprovalDelegation, error)
	CreateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error
	UpdateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error

	// Audit (append-only; the store layer rejects updates and deletes)
	AppendAudit(ctx context.Context, a *domain.SwapApprovalAudit) error
	ListAudit(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalAudit, error)
}

// NotificationRepository persists in-app notifications and per-recipient
// preferences.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.NotificationEvent) error
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.NotificationEvent, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	GetPreference(ctx context.Context, employeeID string, class domain.NotificationClass) (*domain.NotificationPreference, error)
	ListPreferences(ctx context.Context, employeeID string) ([]domain.NotificationPreference, error)
	UpsertPreference(ctx context.Context, p *domain.NotificationPreference) error
}

// EventPublisher is the outbound event surface. Publishing is
// best-effort; callers log failures and continue.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}
