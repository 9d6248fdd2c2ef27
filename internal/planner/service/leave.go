package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

// SubmitLeaveRequest is the input to leave submission. Dates are
// YYYY-MM-DD, both ends inclusive.
type SubmitLeaveRequest struct {
	LeaveType domain.LeaveType `json:"leave_type" validate:"required"`
	StartDate string           `json:"start_date" validate:"required"`
	EndDate   string           `json:"end_date" validate:"required"`
	Reason    *string          `json:"reason,omitempty"`
}

// LeaveSubmissionResult carries the created request and the advisory
// warnings the submitter acknowledged.
type LeaveSubmissionResult struct {
	Leave    *domain.LeaveRequest `json:"leave"`
	Warnings *LeaveConflictReport `json:"warnings,omitempty"`
}

// LeaveDecision is the outcome a manager chooses on a leave request.
type LeaveDecision string

const (
	LeaveDecisionApprove LeaveDecision = "approve"
	LeaveDecisionReject  LeaveDecision = "reject"
)

// RuleVote is one recommendation rule's pick.
type RuleVote struct {
	Rule      string `json:"rule"`
	RequestID string `json:"request_id"`
}

// LeaveRecommendation is the advisory outcome of the three-rule vote
// over mutually conflicting leave requests. The actor may override.
type LeaveRecommendation struct {
	RecommendedID string     `json:"recommended_id"`
	Votes         []RuleVote `json:"votes"`
}

// LeaveService runs leave submission and the single-level manager
// approval flow, including atomic resolution of competing requests.
type LeaveService struct {
	store     Store
	clock     calendar.Clock
	cal       *calendar.Calendar
	cfg       *config.SchedulingConfig
	conflicts *ConflictService
	perms     permissions.Checker
	events    EventPublisher
	notifier  *Notifier
	log       *logger.Logger
}

// NewLeaveService creates a leave service.
func NewLeaveService(store Store, clock calendar.Clock, cal *calendar.Calendar, cfg *config.SchedulingConfig, conflicts *ConflictService, perms permissions.Checker, events EventPublisher, notifier *Notifier, log *logger.Logger) *LeaveService {
	return &LeaveService{store: store, clock: clock, cal: cal, cfg: cfg, conflicts: conflicts, perms: perms, events: events, notifier: notifier, log: log}
}

// Submit validates the range, refuses on blocking conflicts, and creates
// a pending request. Warnings are returned alongside the created
// request, not raised.
func (s *LeaveService) Submit(ctx context.Context, a *actor.Actor, req *SubmitLeaveRequest) (*LeaveSubmissionResult, error) {
	if !s.perms.Has(a, permissions.RequestLeave) {
		return nil, errors.PermissionDenied(permissions.RequestLeave)
	}
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}
	if !req.LeaveType.IsValid() {
		return nil, errors.BadRequest(fmt.Sprintf("unknown leave type %q", req.LeaveType))
	}

	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		return nil, errors.BadRequest("invalid start_date")
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		return nil, errors.BadRequest("invalid end_date")
	}
	if end.Before(start) {
		return nil, errors.BadRequest("end_date must not precede start_date")
	}

	employee, err := s.store.Employees().GetByID(ctx, a.EmployeeID)
	if err != nil {
		return nil, err
	}

	report, err := s.conflicts.CheckLeaveConflicts(ctx, employee.ID, start, end, employee.TeamID)
	if err != nil {
		return nil, err
	}
	if report.Blocking() {
		return nil, errors.ConflictBlocking("leave range conflicts with existing leave or assigned shifts").
			WithDetails(map[string]string{
				"personal_overlaps": fmt.Sprintf("%d", len(report.PersonalOverlaps)),
				"shift_conflicts":   fmt.Sprintf("%d", len(report.ShiftConflicts)),
			})
	}

	// A single-day request counts one working day.
	days := s.cal.WorkdaysBetween(start, end)
	if days == 0 {
		days = 1
	}

	leave := &domain.LeaveRequest{
		ID:            uuid.New().String(),
		EmployeeID:    employee.ID,
		LeaveType:     req.LeaveType,
		StartDate:     start.Time(time.UTC),
		EndDate:       end.Time(time.UTC),
		DaysRequested: float64(days),
		Status:        domain.LeavePending,
		Reason:        req.Reason,
		Version:       1,
	}
	if err := s.store.Leaves().Create(ctx, leave); err != nil {
		return nil, err
	}

	s.notifyManager(ctx, employee, leave)
	if err := s.events.Publish(ctx, messaging.EventLeaveSubmitted, messaging.LeaveSubmittedEvent{
		LeaveID:    leave.ID,
		EmployeeID: leave.EmployeeID,
		LeaveType:  string(leave.LeaveType),
		StartDate:  leave.StartDate,
		EndDate:    leave.EndDate,
		Days:       leave.DaysRequested,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish leave submitted event")
	}

	result := &LeaveSubmissionResult{Leave: leave}
	if report.HasWarnings() {
		result.Warnings = report
	}
	return result, nil
}

// ConflictReport exposes the conflict check so approvers can review it
// next to a pending request.
func (s *LeaveService) ConflictReport(ctx context.Context, a *actor.Actor, leaveID string) (*LeaveConflictReport, error) {
	if !s.perms.Has(a, permissions.ViewConflicts) {
		return nil, errors.PermissionDenied(permissions.ViewConflicts)
	}
	leave, err := s.store.Leaves().GetByID(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	employee, err := s.store.Employees().GetByID(ctx, leave.EmployeeID)
	if err != nil {
		return nil, err
	}
	return s.conflicts.CheckLeaveConflicts(ctx, leave.EmployeeID, leave.StartCivil(), leave.EndCivil(), employee.TeamID)
}

// Decide approves or rejects a pending leave request. Approval that
// creates a staffing breach with other pending team requests atomically
// rejects those competitors with a resolution note.
func (s *LeaveService) Decide(ctx context.Context, a *actor.Actor, leaveID string, decision LeaveDecision, note *string) (*domain.LeaveRequest, error) {
	if !s.perms.Has(a, permissions.ApproveLeave) {
		return nil, errors.PermissionDenied(permissions.ApproveLeave)
	}

	var leave *domain.LeaveRequest
	var rejected []domain.LeaveRequest
	err := s.store.Atomically(ctx, func(tx Store) error {
		var err error
		leave, err = tx.Leaves().GetByID(ctx, leaveID)
		if err != nil {
			return err
		}
		if leave.Status != domain.LeavePending {
			return errors.ConflictBlocking(fmt.Sprintf("leave request is already %s", leave.Status))
		}

		now := s.clock.Now()
		leave.DecidedBy = &a.EmployeeID
		leave.DecidedAt = &now
		leave.DecisionNote = note

		switch decision {
		case LeaveDecisionApprove:
			leave.Status = domain.LeaveApproved
		case LeaveDecisionReject:
			leave.Status = domain.LeaveRejected
		default:
			return errors.BadRequest(fmt.Sprintf("unknown decision %q", decision))
		}
		if err := tx.Leaves().UpdateStatus(ctx, leave); err != nil {
			return err
		}

		if decision == LeaveDecisionApprove {
			rejected, err = s.resolveCompeting(ctx, tx, a, leave, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDecision(ctx, leave)
	for i := range rejected {
		s.notifyDecision(ctx, &rejected[i])
	}
	return leave, nil
}

// resolveCompeting rejects other pending team requests that, together
// with the approved one, would breach minimum staffing on a shared day.
func (s *LeaveService) resolveCompeting(ctx context.Context, tx Store, a *actor.Actor, approved *domain.LeaveRequest, now time.Time) ([]domain.LeaveRequest, error) {
	employee, err := tx.Employees().GetByID(ctx, approved.EmployeeID)
	if err != nil {
		return nil, err
	}
	if employee.TeamID == nil {
		return nil, nil
	}
	members, err := tx.Employees().ListByTeam(ctx, *employee.TeamID)
	if err != nil {
		return nil, err
	}
	activeMembers := 0
	for i := range members {
		if members[i].Active {
			activeMembers++
		}
	}

	pending, err := tx.Leaves().ListIntersecting(ctx, LeaveFilter{
		TeamID:   employee.TeamID,
		Start:    approved.StartDate,
		End:      approved.EndDate,
		Statuses: []domain.LeaveStatus{domain.LeavePending},
	})
	if err != nil {
		return nil, err
	}
	var competitors []domain.LeaveRequest
	for i := range pending {
		if pending[i].ID != approved.ID && pending[i].EmployeeID != approved.EmployeeID {
			competitors = append(competitors, pending[i])
		}
	}
	if len(competitors) == 0 {
		return nil, nil
	}

	approvedLeaves, err := tx.Leaves().ListIntersecting(ctx, LeaveFilter{
		TeamID:   employee.TeamID,
		Start:    approved.StartDate,
		End:      approved.EndDate,
		Statuses: []domain.LeaveStatus{domain.LeaveApproved},
	})
	if err != nil {
		return nil, err
	}

	// Would granting everything breach staffing on any shared day?
	breach := false
	for _, day := range calendar.DatesBetween(approved.StartCivil(), approved.EndCivil()) {
		onLeave := map[string]bool{}
		for i := range approvedLeaves {
			if approvedLeaves[i].Covers(day) {
				onLeave[approvedLeaves[i].EmployeeID] = true
			}
		}
		for i := range competitors {
			if competitors[i].Covers(day) {
				onLeave[competitors[i].EmployeeID] = true
			}
		}
		if activeMembers-len(onLeave) < s.cfg.MinRequiredStaff {
			breach = true
			break
		}
	}
	if !breach {
		return nil, nil
	}

	sort.Slice(competitors, func(i, j int) bool { return competitors[i].ID < competitors[j].ID })
	resolution := fmt.Sprintf("automatically rejected: conflicts with approved leave %s", approved.ID)
	var rejected []domain.LeaveRequest
	for i := range competitors {
		c := competitors[i]
		c.Status = domain.LeaveRejected
		c.DecidedBy = &a.EmployeeID
		c.DecidedAt = &now
		c.DecisionNote = &resolution
		if err := tx.Leaves().UpdateStatus(ctx, &c); err != nil {
			return nil, err
		}
		rejected = append(rejected, c)
	}
	return rejected, nil
}

// Recommend runs the advisory three-rule vote over a set of conflicting
// pending requests: seniority (earliest hire), first submitted, least
// leave used this year. Ties break by seniority.
func (s *LeaveService) Recommend(ctx context.Context, a *actor.Actor, leaveIDs []string) (*LeaveRecommendation, error) {
	if !s.perms.Has(a, permissions.ApproveLeave) {
		return nil, errors.PermissionDenied(permissions.ApproveLeave)
	}
	if len(leaveIDs) < 2 {
		return nil, errors.BadRequest("at least two leave requests are required")
	}

	type entry struct {
		leave    *domain.LeaveRequest
		employee *domain.Employee
		used     float64
	}
	entries := make([]entry, 0, len(leaveIDs))
	year := s.clock.Today().Year
	for _, id := range leaveIDs {
		leave, err := s.store.Leaves().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if leave.Status != domain.LeavePending {
			return nil, errors.ConflictBlocking(fmt.Sprintf("leave request %s is not pending", id))
		}
		employee, err := s.store.Employees().GetByID(ctx, leave.EmployeeID)
		if err != nil {
			return nil, err
		}
		used, err := s.store.Leaves().DaysUsedInYear(ctx, leave.EmployeeID, year)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{leave: leave, employee: employee, used: used})
	}

	bySeniority := func(i, j int) bool {
		if !entries[i].employee.HireDate.Equal(entries[j].employee.HireDate) {
			return entries[i].employee.HireDate.Before(entries[j].employee.HireDate)
		}
		return entries[i].leave.ID < entries[j].leave.ID
	}

	pick := func(less func(i, j int) bool) string {
		best := 0
		for i := 1; i < len(entries); i++ {
			if less(i, best) {
				best = i
			}
		}
		return entries[best].leave.ID
	}

	votes := []RuleVote{
		{Rule: "seniority", RequestID: pick(bySeniority)},
		{Rule: "first_submitted", RequestID: pick(func(i, j int) bool {
			if !entries[i].leave.CreatedAt.Equal(entries[j].leave.CreatedAt) {
				return entries[i].leave.CreatedAt.Before(entries[j].leave.CreatedAt)
			}
			return entries[i].leave.ID < entries[j].leave.ID
		})},
		{Rule: "least_leave_used", RequestID: pick(func(i, j int) bool {
			if entries[i].used != entries[j].used {
				return entries[i].used < entries[j].used
			}
			return bySeniority(i, j)
		})},
	}

	tally := map[string]int{}
	for _, v := range votes {
		tally[v.RequestID]++
	}
	winner := ""
	winnerVotes := -1
	seniorityWinner := votes[0].RequestID
	for _, e := range entries {
		count := tally[e.leave.ID]
		if count > winnerVotes {
			winner, winnerVotes = e.leave.ID, count
		} else if count == winnerVotes && e.leave.ID == seniorityWinner {
			winner = e.leave.ID
		}
	}

	return &LeaveRecommendation{RecommendedID: winner, Votes: votes}, nil
}

// Cancel lets the requester withdraw a pending request, or an approved
// one that has not started yet.
func (s *LeaveService) Cancel(ctx context.Context, a *actor.Actor, leaveID string) (*domain.LeaveRequest, error) {
	if !s.perms.Has(a, permissions.CancelLeave) {
		return nil, errors.PermissionDenied(permissions.CancelLeave)
	}

	var leave *domain.LeaveRequest
	err := s.store.Atomically(ctx, func(tx Store) error {
		var err error
		leave, err = tx.Leaves().GetByID(ctx, leaveID)
		if err != nil {
			return err
		}
		if leave.EmployeeID != a.EmployeeID {
			return errors.PermissionDenied(permissions.CancelLeave)
		}
		switch leave.Status {
		case domain.LeavePending:
		case domain.LeaveApproved:
			if !leave.StartCivil().After(s.clock.Today()) {
				return errors.ConflictBlocking("approved leave that already started cannot be cancelled")
			}
		default:
			return errors.ConflictBlocking(fmt.Sprintf("leave request is already %s", leave.Status))
		}

		now := s.clock.Now()
		leave.Status = domain.LeaveCancelled
		leave.DecidedAt = &now
		return tx.Leaves().UpdateStatus(ctx, leave)
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, messaging.EventLeaveCancelled, messaging.LeaveDecidedEvent{
		LeaveID:   leave.ID,
		Status:    string(leave.Status),
		DecidedBy: a.EmployeeID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish leave cancelled event")
	}
	return leave, nil
}

// ListForEmployee returns an employee's leave requests intersecting a
// range.
func (s *LeaveService) ListForEmployee(ctx context.Context, a *actor.Actor, employeeID string, start, end calendar.Date) ([]domain.LeaveRequest, error) {
	if employeeID != a.EmployeeID && !s.perms.Has(a, permissions.ApproveLeave) {
		return nil, errors.PermissionDenied(permissions.ApproveLeave)
	}
	return s.store.Leaves().ListIntersecting(ctx, LeaveFilter{
		EmployeeID: &employeeID,
		Start:      start.Time(time.UTC),
		End:        end.Time(time.UTC),
	})
}

func (s *LeaveService) notifyManager(ctx context.Context, employee *domain.Employee, leave *domain.LeaveRequest) {
	if employee.TeamID == nil {
		return
	}
	team, err := s.store.Teams().GetByID(ctx, *employee.TeamID)
	if err != nil || team.ManagerID == nil {
		return
	}
	manager, err := s.store.Employees().GetByID(ctx, *team.ManagerID)
	if err != nil {
		return
	}
	s.notifier.Emit(ctx, s.store, &domain.NotificationEvent{
		RecipientID: manager.ID,
		Class:       domain.NotifyLeaveRequested,
		Title:       "Leave request submitted",
		Body:        fmt.Sprintf("%s requested %s leave %s..%s.", employee.Name, leave.LeaveType, leave.StartCivil(), leave.EndCivil()),
		LeaveID:     &leave.ID,
	}, manager.Email)
}

func (s *LeaveService) notifyDecision(ctx context.Context, leave *domain.LeaveRequest) {
	employee, err := s.store.Employees().GetByID(ctx, leave.EmployeeID)
	if err != nil {
		s.log.Warn().Err(err).Str("employee_id", leave.EmployeeID).Msg("failed to load employee for notification")
		return
	}
	body := fmt.Sprintf("Your %s leave %s..%s was %s.", leave.LeaveType, leave.StartCivil(), leave.EndCivil(), leave.Status)
	if leave.DecisionNote != nil {
		body += " " + *leave.DecisionNote
	}
	s.notifier.Emit(ctx, s.store, &domain.NotificationEvent{
		RecipientID: employee.ID,
		Class:       domain.NotifyLeaveDecided,
		Title:       "Leave request " + string(leave.Status),
		Body:        body,
		LeaveID:     &leave.ID,
	}, employee.Email)

	eventType := messaging.EventLeaveApproved
	if leave.Status == domain.LeaveRejected {
		eventType = messaging.EventLeaveRejected
	}
	decidedBy := ""
	if leave.DecidedBy != nil {
		decidedBy = *leave.DecidedBy
	}
	if err := s.events.Publish(ctx, eventType, messaging.LeaveDecidedEvent{
		LeaveID:   leave.ID,
		Status:    string(leave.Status),
		DecidedBy: decidedBy,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish leave decided event")
	}
}
