package service

import (
	"context"
	"encoding/json"
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

// SubmitSwapRequest is the input to swap submission. TargetShiftID nil
// requests a one-way handover.
type SubmitSwapRequest struct {
	TargetEmployeeID  string  `json:"target_employee_id" validate:"required,uuid"`
	RequestingShiftID string  `json:"requesting_shift_id" validate:"required,uuid"`
	TargetShiftID     *string `json:"target_shift_id,omitempty"`
	Reason            *string `json:"reason,omitempty"`
}

// SwapDecision is the outcome an approver chooses on a chain step.
type SwapDecision string

const (
	DecisionApprove  SwapDecision = "approve"
	DecisionReject   SwapDecision = "reject"
	DecisionDelegate SwapDecision = "delegate"
)

// SwapSubmissionResult reports the outcome of submitting a swap.
type SwapSubmissionResult struct {
	Swap         *domain.SwapRequest            `json:"swap"`
	AutoApproved bool                           `json:"auto_approved"`
	Chain        []domain.SwapApprovalChainStep `json:"chain,omitempty"`
	RuleName     string                         `json:"rule_name"`
}

// PendingApproval is one chain step awaiting the user, with delegation
// already resolved.
type PendingApproval struct {
	Step        domain.SwapApprovalChainStep `json:"step"`
	Swap        domain.SwapRequest           `json:"swap"`
	ViaDelegate bool                         `json:"via_delegate"`
	DelegatorID string                       `json:"delegator_id,omitempty"`
}

// CreateDelegationRequest is the input to delegation creation.
type CreateDelegationRequest struct {
	DelegateID string  `json:"delegate_id" validate:"required,uuid"`
	StartDate  string  `json:"start_date" validate:"required"`
	EndDate    *string `json:"end_date,omitempty"`
	Reason     *string `json:"reason,omitempty"`
}

// swapBlockedStatuses are shift states a swap may never reference.
// in_progress is refused at submit and re-checked at execution.
var swapBlockedStatuses = map[domain.ShiftStatus]bool{
	domain.ShiftCompleted:  true,
	domain.ShiftCancelled:  true,
	domain.ShiftInProgress: true,
}

// ApprovalService runs the swap approval workflow: rule matching,
// auto-approval, chain construction with delegation, decision
// processing, and the append-only audit.
type ApprovalService struct {
	store    Store
	clock    calendar.Clock
	cal      *calendar.Calendar
	cfg      *config.SchedulingConfig
	perms    permissions.Checker
	events   EventPublisher
	notifier *Notifier
	log      *logger.Logger
}

// NewApprovalService creates an approval service.
func NewApprovalService(store Store, clock calendar.Clock, cal *calendar.Calendar, cfg *config.SchedulingConfig, perms permissions.Checker, events EventPublisher, notifier *Notifier, log *logger.Logger) *ApprovalService {
	return &ApprovalService{store: store, clock: clock, cal: cal, cfg: cfg, perms: perms, events: events, notifier: notifier, log: log}
}

// SubmitSwap validates the request, matches the highest-priority rule,
// attempts auto-approval, and otherwise builds the approval chain. The
// whole submission is atomic.
func (s *ApprovalService) SubmitSwap(ctx context.Context, a *actor.Actor, req *SubmitSwapRequest) (*SwapSubmissionResult, error) {
	if !s.perms.Has(a, permissions.RequestSwap) {
		return nil, errors.PermissionDenied(permissions.RequestSwap)
	}
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}

	var result *SwapSubmissionResult
	err := s.store.Atomically(ctx, func(tx Store) error {
		var err error
		result, err = s.submitSwap(ctx, tx, a, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishSubmitted(ctx, result)
	return result, nil
}

func (s *ApprovalService) submitSwap(ctx context.Context, tx Store, a *actor.Actor, req *SubmitSwapRequest) (*SwapSubmissionResult, error) {
	requester, err := tx.Employees().GetByID(ctx, a.EmployeeID)
	if err != nil {
		return nil, err
	}
	target, err := tx.Employees().GetByID(ctx, req.TargetEmployeeID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, errors.BadRequest("target employee is inactive")
	}
	if target.ID == requester.ID {
		return nil, errors.BadRequest("cannot swap with yourself")
	}

	reqShift, err := tx.Shifts().GetByID(ctx, req.RequestingShiftID)
	if err != nil {
		return nil, err
	}
	if reqShift.EmployeeID != requester.ID {
		return nil, errors.BadRequest("requesting shift is not assigned to you")
	}
	if swapBlockedStatuses[reqShift.Status] {
		return nil, errors.ConflictBlocking(fmt.Sprintf("shift in state %q cannot be swapped", reqShift.Status))
	}

	var tgtShift *domain.Shift
	if req.TargetShiftID != nil {
		tgtShift, err = tx.Shifts().GetByID(ctx, *req.TargetShiftID)
		if err != nil {
			return nil, err
		}
		if tgtShift.EmployeeID != target.ID {
			return nil, errors.BadRequest("target shift is not assigned to the target employee")
		}
		if swapBlockedStatuses[tgtShift.Status] {
			return nil, errors.ConflictBlocking(fmt.Sprintf("shift in state %q cannot be swapped", tgtShift.Status))
		}
	}

	rule, err := s.matchRule(ctx, tx, reqShift.Class)
	if err != nil {
		return nil, err
	}

	// Monthly cap is blocking at submission, one-way swaps included.
	if rule.MonthlySwapCap != nil {
		count, err := tx.Swaps().CountApprovedInMonth(ctx, requester.ID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if count >= *rule.MonthlySwapCap {
			return nil, errors.ConflictBlocking(fmt.Sprintf("monthly swap cap of %d reached", *rule.MonthlySwapCap))
		}
	}

	now := s.clock.Now()
	swap := &domain.SwapRequest{
		ID:                uuid.New().String(),
		RequesterID:       requester.ID,
		TargetID:          target.ID,
		RequestingShiftID: reqShift.ID,
		TargetShiftID:     req.TargetShiftID,
		Reason:            req.Reason,
		Status:            domain.SwapPending,
		Version:           1,
	}
	if rule.ID != "" {
		swap.RuleID = &rule.ID
	}
	if err := tx.Swaps().Create(ctx, swap); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, tx, swap.ID, domain.AuditCreated, &a.EmployeeID, nil, nil, nil, map[string]any{
		"requesting_shift_id": reqShift.ID,
		"target_employee_id":  target.ID,
	}); err != nil {
		return nil, err
	}
	ruleNote := rule.Name
	if err := s.audit(ctx, tx, swap.ID, domain.AuditRuleApplied, nil, nil, swap.RuleID, &ruleNote, map[string]any{
		"priority": rule.Priority,
	}); err != nil {
		return nil, err
	}

	result := &SwapSubmissionResult{Swap: swap, RuleName: rule.Name}

	if rule.AutoApproveEnabled {
		ok, failReason, err := s.autoApprovalPasses(ctx, tx, rule, requester, target, reqShift, tgtShift, now)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := s.executeSwap(ctx, tx, swap); err != nil {
				return nil, err
			}
			if err := s.audit(ctx, tx, swap.ID, domain.AuditAutoApproved, nil, nil, swap.RuleID, nil, nil); err != nil {
				return nil, err
			}
			s.notifySwapDecided(ctx, tx, swap, requester, target, true)
			result.AutoApproved = true
			return result, nil
		}
		s.log.Debug().Str("swap_id", swap.ID).Str("reason", failReason).Msg("auto-approval predicate failed")
	}

	chain, err := s.buildChain(ctx, tx, rule, swap, requester, target)
	if err != nil {
		return nil, err
	}
	result.Chain = chain

	// Only level-1 approvers hear about the new chain.
	for i := range chain {
		if chain[i].Level != 1 || chain[i].Status != domain.StepPending {
			continue
		}
		s.notifyStepPending(ctx, tx, swap, &chain[i])
	}
	return result, nil
}

// matchRule returns the highest-priority active rule covering the class,
// or the system default.
func (s *ApprovalService) matchRule(ctx context.Context, tx Store, class domain.ShiftClass) (*domain.SwapApprovalRule, error) {
	rules, err := tx.Approvals().ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	var matching []domain.SwapApprovalRule
	for i := range rules {
		if rules[i].AppliesToClass(class) {
			matching = append(matching, rules[i])
		}
	}
	if len(matching) == 0 {
		return domain.DefaultApprovalRule(), nil
	}
	sort.Slice(matching, func(i, j int) bool {
		if matching[i].Priority != matching[j].Priority {
			return matching[i].Priority > matching[j].Priority
		}
		return matching[i].ID < matching[j].ID
	})
	return &matching[0], nil
}

// autoApprovalPasses evaluates the predicate bundle in fixed order,
// short-circuiting on the first failure.
func (s *ApprovalService) autoApprovalPasses(ctx context.Context, tx Store, rule *domain.SwapApprovalRule, requester, target *domain.Employee, reqShift, tgtShift *domain.Shift, now time.Time) (bool, string, error) {
	if rule.RequireSameClass {
		if tgtShift == nil || tgtShift.Class != reqShift.Class {
			return false, "shifts are not the same class", nil
		}
	}
	if rule.MinAdvanceHours != nil {
		if reqShift.Start.Sub(now) < time.Duration(*rule.MinAdvanceHours)*time.Hour {
			return false, "below minimum advance notice", nil
		}
	}
	if rule.MinSeniorityMonths != nil {
		if requester.SeniorityMonths(now) < *rule.MinSeniorityMonths {
			return false, "requester below minimum seniority", nil
		}
	}
	if rule.RequireSkillsMatch {
		reqTpl, err := tx.Templates().GetByID(ctx, reqShift.TemplateID)
		if err != nil {
			return false, "", err
		}
		if !target.HasSkills(reqTpl.RequiredSkills) {
			return false, "target lacks required skills", nil
		}
		if tgtShift != nil {
			tgtTpl, err := tx.Templates().GetByID(ctx, tgtShift.TemplateID)
			if err != nil {
				return false, "", err
			}
			if !requester.HasSkills(tgtTpl.RequiredSkills) {
				return false, "requester lacks required skills", nil
			}
		}
	}
	if rule.MonthlySwapCap != nil {
		count, err := tx.Swaps().CountApprovedInMonth(ctx, requester.ID, now)
		if err != nil {
			return false, "", err
		}
		if count >= *rule.MonthlySwapCap {
			return false, "monthly swap cap reached", nil
		}
	}
	return true, "", nil
}

// buildChain creates approval steps 1..levels_required, substituting
// currently-active delegates and recording each substitution.
func (s *ApprovalService) buildChain(ctx context.Context, tx Store, rule *domain.SwapApprovalRule, swap *domain.SwapRequest, requester, target *domain.Employee) ([]domain.SwapApprovalChainStep, error) {
	levels := rule.LevelsRequired
	if levels < 1 {
		levels = 1
	}
	if levels > 5 {
		levels = 5
	}

	var chain []domain.SwapApprovalChainStep
	for level := 1; level <= levels; level++ {
		approverID, err := s.approverForLevel(ctx, tx, level, rule, target, requester)
		if err != nil {
			return nil, err
		}
		if approverID == "" {
			return nil, errors.ConflictBlocking(fmt.Sprintf("no approver available for level %d", level))
		}

		finalApprover := approverID
		delegated := false
		if deleg, err := s.activeDelegateFor(ctx, tx, approverID); err != nil {
			return nil, err
		} else if deleg != nil {
			finalApprover = deleg.DelegateID
			delegated = true
		}

		step := domain.SwapApprovalChainStep{
			ID:            uuid.New().String(),
			SwapRequestID: swap.ID,
			Level:         level,
			ApproverID:    finalApprover,
			Status:        domain.StepPending,
			RuleID:        swap.RuleID,
		}
		if err := tx.Approvals().CreateStep(ctx, &step); err != nil {
			return nil, err
		}
		if delegated {
			note := fmt.Sprintf("level %d approver %s substituted by active delegation", level, approverID)
			if err := s.audit(ctx, tx, swap.ID, domain.AuditDelegated, nil, &step.ID, swap.RuleID, &note, map[string]any{
				"original_approver": approverID,
				"delegate":          finalApprover,
			}); err != nil {
				return nil, err
			}
		}
		chain = append(chain, step)
	}
	return chain, nil
}

// approverForLevel resolves who approves at a given level: the target's
// team manager at level 1, an admin at level 2 when the rule requires
// one, then the configured escalation approvers.
func (s *ApprovalService) approverForLevel(ctx context.Context, tx Store, level int, rule *domain.SwapApprovalRule, target, requester *domain.Employee) (string, error) {
	manager, err := s.teamManager(ctx, tx, target)
	if err != nil {
		return "", err
	}
	if manager == "" {
		manager, err = s.teamManager(ctx, tx, requester)
		if err != nil {
			return "", err
		}
	}

	if level == 1 {
		return manager, nil
	}
	if level == 2 && rule.RequiresAdmin && len(s.cfg.EscalationApprovers) > 0 {
		return s.cfg.EscalationApprovers[0], nil
	}

	idx := level - 2
	if idx >= 0 && idx < len(s.cfg.EscalationApprovers) {
		return s.cfg.EscalationApprovers[idx], nil
	}
	// No configured escalation role: the manager covers the level.
	return manager, nil
}

func (s *ApprovalService) teamManager(ctx context.Context, tx Store, e *domain.Employee) (string, error) {
	if e.TeamID == nil {
		return "", nil
	}
	team, err := tx.Teams().GetByID(ctx, *e.TeamID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if team.ManagerID == nil {
		return "", nil
	}
	return *team.ManagerID, nil
}

// activeDelegateFor returns the delegation currently in force for the
// approver, if any.
func (s *ApprovalService) activeDelegateFor(ctx context.Context, tx Store, approverID string) (*domain.ApprovalDelegation, error) {
	delegations, err := tx.Approvals().ListActiveDelegations(ctx)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	var candidates []domain.ApprovalDelegation
	for i := range delegations {
		d := delegations[i]
		if d.DelegatorID == approverID && d.ActiveOn(today) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return &candidates[0], nil
}

// DecideSwapStep processes one approver decision. The swap request row
// is locked for the transaction so concurrent decisions serialize.
func (s *ApprovalService) DecideSwapStep(ctx context.Context, a *actor.Actor, stepID string, decision SwapDecision, notes *string, delegateID *string) (*domain.SwapRequest, error) {
	if !s.perms.Has(a, permissions.ApproveSwap) {
		return nil, errors.PermissionDenied(permissions.ApproveSwap)
	}
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}

	var swap *domain.SwapRequest
	err := s.store.Atomically(ctx, func(tx Store) error {
		step, err := tx.Approvals().GetStep(ctx, stepID)
		if err != nil {
			return err
		}
		swap, err = tx.Swaps().GetByIDLocked(ctx, step.SwapRequestID)
		if err != nil {
			return err
		}
		if swap.Status != domain.SwapPending {
			return errors.ConflictBlocking(fmt.Sprintf("swap request is already %s", swap.Status))
		}

		// Authorization: the named approver, or their active delegate.
		if step.ApproverID != a.EmployeeID {
			deleg, err := s.activeDelegateFor(ctx, tx, step.ApproverID)
			if err != nil {
				return err
			}
			if deleg == nil || deleg.DelegateID != a.EmployeeID {
				return errors.PermissionDenied(permissions.ApproveSwap)
			}
		}

		if step.Status != domain.StepPending {
			return errors.ConflictBlocking(fmt.Sprintf("chain step is %s, not pending", step.Status))
		}
		steps, err := tx.Approvals().ListSteps(ctx, swap.ID)
		if err != nil {
			return err
		}
		for i := range steps {
			other := &steps[i]
			if other.Level < step.Level && other.Status != domain.StepApproved &&
				other.Status != domain.StepAutoApproved && other.Status != domain.StepDelegated {
				return errors.ConflictBlocking(fmt.Sprintf("level %d must be approved first", other.Level))
			}
		}

		switch decision {
		case DecisionApprove:
			return s.approveStep(ctx, tx, a, swap, step, steps, notes)
		case DecisionReject:
			return s.rejectStep(ctx, tx, a, swap, step, notes)
		case DecisionDelegate:
			return s.delegateStep(ctx, tx, a, swap, step, notes, delegateID)
		default:
			return errors.BadRequest(fmt.Sprintf("unknown decision %q", decision))
		}
	})
	if err != nil {
		return nil, err
	}
	return swap, nil
}

func (s *ApprovalService) approveStep(ctx context.Context, tx Store, a *actor.Actor, swap *domain.SwapRequest, step *domain.SwapApprovalChainStep, steps []domain.SwapApprovalChainStep, notes *string) error {
	now := s.clock.Now()
	step.Status = domain.StepApproved
	step.DecidedAt = &now
	step.Notes = notes
	if err := tx.Approvals().UpdateStep(ctx, step); err != nil {
		return err
	}
	if err := s.audit(ctx, tx, swap.ID, domain.AuditApproved, &a.EmployeeID, &step.ID, step.RuleID, notes, map[string]any{
		"level": step.Level,
	}); err != nil {
		return err
	}

	// Notify the next pending level, if any; otherwise execute.
	var next *domain.SwapApprovalChainStep
	for i := range steps {
		candidate := &steps[i]
		if candidate.Level == step.Level+1 && candidate.Status == domain.StepPending {
			next = candidate
			break
		}
	}
	if next != nil {
		s.notifyStepPending(ctx, tx, swap, next)
		return nil
	}

	if err := s.executeSwap(ctx, tx, swap); err != nil {
		return err
	}
	requester, err := tx.Employees().GetByID(ctx, swap.RequesterID)
	if err != nil {
		return err
	}
	target, err := tx.Employees().GetByID(ctx, swap.TargetID)
	if err != nil {
		return err
	}
	s.notifySwapDecided(ctx, tx, swap, requester, target, false)
	return nil
}

func (s *ApprovalService) rejectStep(ctx context.Context, tx Store, a *actor.Actor, swap *domain.SwapRequest, step *domain.SwapApprovalChainStep, notes *string) error {
	now := s.clock.Now()
	step.Status = domain.StepRejected
	step.DecidedAt = &now
	step.Notes = notes
	if err := tx.Approvals().UpdateStep(ctx, step); err != nil {
		return err
	}

	swap.Status = domain.SwapRejected
	swap.DecidedAt = &now
	if err := tx.Swaps().UpdateStatus(ctx, swap); err != nil {
		return err
	}
	if err := s.audit(ctx, tx, swap.ID, domain.AuditRejected, &a.EmployeeID, &step.ID, step.RuleID, notes, map[string]any{
		"level": step.Level,
	}); err != nil {
		return err
	}

	requester, err := tx.Employees().GetByID(ctx, swap.RequesterID)
	if err != nil {
		return err
	}
	body := "Your shift swap request was rejected."
	if notes != nil {
		body = fmt.Sprintf("Your shift swap request was rejected: %s", *notes)
	}
	s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
		RecipientID: requester.ID,
		Class:       domain.NotifySwapRejected,
		Title:       "Swap request rejected",
		Body:        body,
		SwapID:      &swap.ID,
	}, requester.Email)
	return nil
}

func (s *ApprovalService) delegateStep(ctx context.Context, tx Store, a *actor.Actor, swap *domain.SwapRequest, step *domain.SwapApprovalChainStep, notes *string, delegateID *string) error {
	if delegateID == nil {
		return errors.BadRequest("delegate_id is required")
	}
	allowed := false
	if step.RuleID != nil {
		rule, err := tx.Approvals().GetRule(ctx, *step.RuleID)
		if err != nil {
			return err
		}
		allowed = rule.AllowDelegation
	}
	if !allowed {
		return errors.ConflictBlocking("the approval rule does not allow delegation")
	}
	if _, err := tx.Employees().GetByID(ctx, *delegateID); err != nil {
		return err
	}

	now := s.clock.Now()
	step.Status = domain.StepDelegated
	step.DecidedAt = &now
	step.Notes = notes
	step.DelegatedTo = delegateID
	if err := tx.Approvals().UpdateStep(ctx, step); err != nil {
		return err
	}

	replacement := domain.SwapApprovalChainStep{
		ID:            uuid.New().String(),
		SwapRequestID: swap.ID,
		Level:         step.Level,
		ApproverID:    *delegateID,
		Status:        domain.StepPending,
		RuleID:        step.RuleID,
	}
	if err := tx.Approvals().CreateStep(ctx, &replacement); err != nil {
		return err
	}
	if err := s.audit(ctx, tx, swap.ID, domain.AuditDelegated, &a.EmployeeID, &step.ID, step.RuleID, notes, map[string]any{
		"level":    step.Level,
		"delegate": *delegateID,
	}); err != nil {
		return err
	}
	s.notifyStepPending(ctx, tx, swap, &replacement)
	return nil
}

// executeSwap exchanges the assignments on both shifts and marks the
// request approved, all version-checked.
func (s *ApprovalService) executeSwap(ctx context.Context, tx Store, swap *domain.SwapRequest) error {
	reqShift, err := tx.Shifts().GetByID(ctx, swap.RequestingShiftID)
	if err != nil {
		return err
	}
	if swapBlockedStatuses[reqShift.Status] {
		return errors.ConflictBlocking(fmt.Sprintf("shift in state %q can no longer be swapped", reqShift.Status))
	}
	if err := tx.Shifts().Reassign(ctx, reqShift.ID, swap.TargetID, reqShift.Version); err != nil {
		return err
	}

	if swap.TargetShiftID != nil {
		tgtShift, err := tx.Shifts().GetByID(ctx, *swap.TargetShiftID)
		if err != nil {
			return err
		}
		if swapBlockedStatuses[tgtShift.Status] {
			return errors.ConflictBlocking(fmt.Sprintf("shift in state %q can no longer be swapped", tgtShift.Status))
		}
		if err := tx.Shifts().Reassign(ctx, tgtShift.ID, swap.RequesterID, tgtShift.Version); err != nil {
			return err
		}
	}

	now := s.clock.Now()
	swap.Status = domain.SwapApproved
	swap.DecidedAt = &now
	return tx.Swaps().UpdateStatus(ctx, swap)
}

// CancelSwap lets the requester withdraw a pending request.
func (s *ApprovalService) CancelSwap(ctx context.Context, a *actor.Actor, swapID string) (*domain.SwapRequest, error) {
	if !s.perms.Has(a, permissions.CancelSwap) {
		return nil, errors.PermissionDenied(permissions.CancelSwap)
	}

	var swap *domain.SwapRequest
	err := s.store.Atomically(ctx, func(tx Store) error {
		var err error
		swap, err = tx.Swaps().GetByIDLocked(ctx, swapID)
		if err != nil {
			return err
		}
		if swap.RequesterID != a.EmployeeID {
			return errors.PermissionDenied(permissions.CancelSwap)
		}
		if swap.Status != domain.SwapPending {
			return errors.ConflictBlocking(fmt.Sprintf("swap request is already %s", swap.Status))
		}

		now := s.clock.Now()
		swap.Status = domain.SwapCancelled
		swap.DecidedAt = &now
		if err := tx.Swaps().UpdateStatus(ctx, swap); err != nil {
			return err
		}

		steps, err := tx.Approvals().ListSteps(ctx, swap.ID)
		if err != nil {
			return err
		}
		for i := range steps {
			if steps[i].Status != domain.StepPending {
				continue
			}
			steps[i].Status = domain.StepSkipped
			steps[i].DecidedAt = &now
			if err := tx.Approvals().UpdateStep(ctx, &steps[i]); err != nil {
				return err
			}
		}
		return s.audit(ctx, tx, swap.ID, domain.AuditCancelled, &a.EmployeeID, nil, nil, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, messaging.EventSwapCancelled, messaging.SwapDecidedEvent{
		SwapID:    swap.ID,
		Status:    string(swap.Status),
		DecidedBy: a.EmployeeID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish swap cancelled event")
	}
	return swap, nil
}

// ListPendingFor returns the chain steps the user may decide: the raw
// steps assigned to them plus, via the delegation resolver, steps of
// approvers who currently delegate to them.
func (s *ApprovalService) ListPendingFor(ctx context.Context, a *actor.Actor) ([]PendingApproval, error) {
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}

	direct, err := s.store.Approvals().ListPendingStepsFor(ctx, a.EmployeeID)
	if err != nil {
		return nil, err
	}

	var out []PendingApproval
	appendSteps := func(steps []domain.SwapApprovalChainStep, viaDelegate bool, delegator string) error {
		for i := range steps {
			swap, err := s.store.Swaps().GetByID(ctx, steps[i].SwapRequestID)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					continue
				}
				return err
			}
			if swap.Status != domain.SwapPending {
				continue
			}
			out = append(out, PendingApproval{
				Step:        steps[i],
				Swap:        *swap,
				ViaDelegate: viaDelegate,
				DelegatorID: delegator,
			})
		}
		return nil
	}
	if err := appendSteps(direct, false, ""); err != nil {
		return nil, err
	}

	delegations, err := s.store.Approvals().ListActiveDelegations(ctx)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	for i := range delegations {
		d := delegations[i]
		if d.DelegateID != a.EmployeeID || !d.ActiveOn(today) {
			continue
		}
		delegated, err := s.store.Approvals().ListPendingStepsFor(ctx, d.DelegatorID)
		if err != nil {
			return nil, err
		}
		if err := appendSteps(delegated, true, d.DelegatorID); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Step.CreatedAt.Equal(out[j].Step.CreatedAt) {
			return out[i].Step.CreatedAt.Before(out[j].Step.CreatedAt)
		}
		return out[i].Step.ID < out[j].Step.ID
	})
	return out, nil
}

// CreateDelegation registers a time-bounded approver substitution for
// the acting user.
func (s *ApprovalService) CreateDelegation(ctx context.Context, a *actor.Actor, req *CreateDelegationRequest) (*domain.ApprovalDelegation, error) {
	if !s.perms.Has(a, permissions.CreateDelegation) {
		return nil, errors.PermissionDenied(permissions.CreateDelegation)
	}
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}
	if req.DelegateID == a.EmployeeID {
		return nil, errors.BadRequest("cannot delegate to yourself")
	}
	if _, err := s.store.Employees().GetByID(ctx, req.DelegateID); err != nil {
		return nil, err
	}

	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		return nil, errors.BadRequest("invalid start_date")
	}
	d := &domain.ApprovalDelegation{
		ID:          uuid.New().String(),
		DelegatorID: a.EmployeeID,
		DelegateID:  req.DelegateID,
		StartDate:   start.Time(time.UTC),
		Active:      true,
		Reason:      req.Reason,
	}
	if req.EndDate != nil {
		end, err := calendar.ParseDate(*req.EndDate)
		if err != nil {
			return nil, errors.BadRequest("invalid end_date")
		}
		if end.Before(start) {
			return nil, errors.BadRequest("end_date must not precede start_date")
		}
		t := end.Time(time.UTC)
		d.EndDate = &t
	}

	if err := s.store.Approvals().CreateDelegation(ctx, d); err != nil {
		return nil, err
	}
	s.log.Info().Str("delegator_id", d.DelegatorID).Str("delegate_id", d.DelegateID).Msg("approval delegation created")
	return d, nil
}

// ListForEmployee returns swaps the actor requested or is targeted by,
// newest first.
func (s *ApprovalService) ListForEmployee(ctx context.Context, a *actor.Actor) ([]domain.SwapRequest, error) {
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}
	return s.store.Swaps().ListForEmployee(ctx, a.EmployeeID)
}

// ListRules returns the active approval rules in matching order.
func (s *ApprovalService) ListRules(ctx context.Context, a *actor.Actor) ([]domain.SwapApprovalRule, error) {
	if !s.perms.Has(a, permissions.ManageSwapRules) {
		return nil, errors.PermissionDenied(permissions.ManageSwapRules)
	}
	return s.store.Approvals().ListActiveRules(ctx)
}

// CreateRule adds an approval rule.
func (s *ApprovalService) CreateRule(ctx context.Context, a *actor.Actor, rule *domain.SwapApprovalRule) (*domain.SwapApprovalRule, error) {
	if !s.perms.Has(a, permissions.ManageSwapRules) {
		return nil, errors.PermissionDenied(permissions.ManageSwapRules)
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	rule.ID = uuid.New().String()
	if err := s.store.Approvals().CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule mutates an approval rule. In-flight chains keep the steps
// they were built with; the new configuration applies to new swaps.
func (s *ApprovalService) UpdateRule(ctx context.Context, a *actor.Actor, rule *domain.SwapApprovalRule) error {
	if !s.perms.Has(a, permissions.ManageSwapRules) {
		return errors.PermissionDenied(permissions.ManageSwapRules)
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.store.Approvals().UpdateRule(ctx, rule)
}

func validateRule(rule *domain.SwapApprovalRule) error {
	if rule.Name == "" {
		return errors.BadRequest("rule name is required")
	}
	if rule.LevelsRequired < 1 || rule.LevelsRequired > 5 {
		return errors.BadRequest("levels_required must be between 1 and 5")
	}
	for _, c := range rule.AppliesTo {
		if !domain.ShiftClass(c).IsValid() {
			return errors.BadRequest(fmt.Sprintf("unknown shift class %q in applies_to", c))
		}
	}
	return nil
}

// AuditTrail returns the append-only audit of one swap request.
func (s *ApprovalService) AuditTrail(ctx context.Context, a *actor.Actor, swapID string) ([]domain.SwapApprovalAudit, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	if _, err := s.store.Swaps().GetByID(ctx, swapID); err != nil {
		return nil, err
	}
	return s.store.Approvals().ListAudit(ctx, swapID)
}

func (s *ApprovalService) audit(ctx context.Context, tx Store, swapID string, action domain.AuditAction, actorID, stepID, ruleID, notes *string, metadata map[string]any) error {
	entry := &domain.SwapApprovalAudit{
		ID:            uuid.New().String(),
		SwapRequestID: swapID,
		Action:        action,
		ActorID:       actorID,
		ChainStepID:   stepID,
		RuleID:        ruleID,
		Notes:         notes,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return errors.Internal("failed to encode audit metadata")
		}
		entry.Metadata = raw
	}
	return tx.Approvals().AppendAudit(ctx, entry)
}

func (s *ApprovalService) notifyStepPending(ctx context.Context, tx Store, swap *domain.SwapRequest, step *domain.SwapApprovalChainStep) {
	approver, err := tx.Employees().GetByID(ctx, step.ApproverID)
	if err != nil {
		s.log.Warn().Err(err).Str("approver_id", step.ApproverID).Msg("failed to load approver for notification")
		return
	}
	s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
		RecipientID: approver.ID,
		Class:       domain.NotifySwapApprovalPending,
		Title:       "Swap approval needed",
		Body:        fmt.Sprintf("A shift swap request awaits your decision at level %d.", step.Level),
		SwapID:      &swap.ID,
	}, approver.Email)

	if err := s.events.Publish(ctx, messaging.EventSwapStepPending, messaging.SwapStepPendingEvent{
		SwapID:     swap.ID,
		StepID:     step.ID,
		Level:      step.Level,
		ApproverID: step.ApproverID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish swap step pending event")
	}
}

func (s *ApprovalService) notifySwapDecided(ctx context.Context, tx Store, swap *domain.SwapRequest, requester, target *domain.Employee, auto bool) {
	title := "Swap request approved"
	body := "Your shift swap request was approved and the shifts were exchanged."
	if auto {
		body = "Your shift swap request was auto-approved and the shifts were exchanged."
	}
	for _, rcpt := range []*domain.Employee{requester, target} {
		s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
			RecipientID: rcpt.ID,
			Class:       domain.NotifySwapApproved,
			Title:       title,
			Body:        body,
			SwapID:      &swap.ID,
		}, rcpt.Email)
	}

	eventType := messaging.EventSwapApproved
	if auto {
		eventType = messaging.EventSwapAutoApproved
	}
	if err := s.events.Publish(ctx, eventType, messaging.SwapDecidedEvent{
		SwapID: swap.ID,
		Status: string(swap.Status),
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish swap decided event")
	}
}

func (s *ApprovalService) publishSubmitted(ctx context.Context, result *SwapSubmissionResult) {
	swap := result.Swap
	if err := s.events.Publish(ctx, messaging.EventSwapSubmitted, messaging.SwapSubmittedEvent{
		SwapID:       swap.ID,
		RequesterID:  swap.RequesterID,
		TargetID:     swap.TargetID,
		ShiftID:      swap.RequestingShiftID,
		TargetShift:  swap.TargetShiftID,
		RuleID:       swap.RuleID,
		AutoApproved: result.AutoApproved,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish swap submitted event")
	}
}
