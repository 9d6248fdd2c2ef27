package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const ruleColumns = `
	id, name, priority, active, applies_to, auto_approve_enabled,
	require_same_class, min_advance_hours, min_seniority_months,
	require_skills_match, requires_manager, requires_admin, levels_required,
	allow_delegation, monthly_swap_cap, notify_on_decision,
	created_at, updated_at, deleted_at`

const stepColumns = `
	id, swap_request_id, level, approver_id, status, decided_at, notes,
	delegated_to, rule_id, created_at`

const delegationColumns = `
	id, delegator_id, delegate_id, start_date, end_date, active, reason,
	created_at, updated_at`

const auditColumns = `
	id, swap_request_id, action, actor_id, chain_step_id, rule_id, notes,
	metadata, created_at`

// ApprovalRepo persists approval rules, chain steps, delegations, and
// the append-only audit trail.
type ApprovalRepo struct {
	q queryer
}

func (r *ApprovalRepo) GetRule(ctx context.Context, id string) (*domain.SwapApprovalRule, error) {
	var rule domain.SwapApprovalRule
	query := `SELECT` + ruleColumns + ` FROM swap_approval_rules
		WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &rule, query, id); err != nil {
		return nil, wrapErr(err, "approval rule")
	}
	return &rule, nil
}

func (r *ApprovalRepo) ListActiveRules(ctx context.Context) ([]domain.SwapApprovalRule, error) {
	rules := []domain.SwapApprovalRule{}
	query := `SELECT` + ruleColumns + ` FROM swap_approval_rules
		WHERE active = true AND deleted_at IS NULL
		ORDER BY priority DESC, id`
	if err := r.q.SelectContext(ctx, &rules, query); err != nil {
		return nil, wrapErr(err, "approval rule")
	}
	return rules, nil
}

func (r *ApprovalRepo) CreateRule(ctx context.Context, rule *domain.SwapApprovalRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	query := `
		INSERT INTO swap_approval_rules (
			id, name, priority, active, applies_to, auto_approve_enabled,
			require_same_class, min_advance_hours, min_seniority_months,
			require_skills_match, requires_manager, requires_admin,
			levels_required, allow_delegation, monthly_swap_cap, notify_on_decision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		rule.ID, rule.Name, rule.Priority, rule.Active, rule.AppliesTo,
		rule.AutoApproveEnabled, rule.RequireSameClass, rule.MinAdvanceHours,
		rule.MinSeniorityMonths, rule.RequireSkillsMatch, rule.RequiresManager,
		rule.RequiresAdmin, rule.LevelsRequired, rule.AllowDelegation,
		rule.MonthlySwapCap, rule.NotifyOnDecision,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	return wrapErr(err, "approval rule")
}

func (r *ApprovalRepo) UpdateRule(ctx context.Context, rule *domain.SwapApprovalRule) error {
	query := `
		UPDATE swap_approval_rules SET
			name = $2, priority = $3, active = $4, applies_to = $5,
			auto_approve_enabled = $6, require_same_class = $7,
			min_advance_hours = $8, min_seniority_months = $9,
			require_skills_match = $10, requires_manager = $11,
			requires_admin = $12, levels_required = $13, allow_delegation = $14,
			monthly_swap_cap = $15, notify_on_decision = $16, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		rule.ID, rule.Name, rule.Priority, rule.Active, rule.AppliesTo,
		rule.AutoApproveEnabled, rule.RequireSameClass, rule.MinAdvanceHours,
		rule.MinSeniorityMonths, rule.RequireSkillsMatch, rule.RequiresManager,
		rule.RequiresAdmin, rule.LevelsRequired, rule.AllowDelegation,
		rule.MonthlySwapCap, rule.NotifyOnDecision,
	).Scan(&rule.UpdatedAt)
	return wrapErr(err, "approval rule")
}

func (r *ApprovalRepo) GetStep(ctx context.Context, id string) (*domain.SwapApprovalChainStep, error) {
	var step domain.SwapApprovalChainStep
	query := `SELECT` + stepColumns + ` FROM swap_approval_chain_steps WHERE id = $1`
	if err := r.q.GetContext(ctx, &step, query, id); err != nil {
		return nil, wrapErr(err, "chain step")
	}
	return &step, nil
}

func (r *ApprovalRepo) ListSteps(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalChainStep, error) {
	steps := []domain.SwapApprovalChainStep{}
	query := `SELECT` + stepColumns + ` FROM swap_approval_chain_steps
		WHERE swap_request_id = $1
		ORDER BY level, created_at, id`
	if err := r.q.SelectContext(ctx, &steps, query, swapRequestID); err != nil {
		return nil, wrapErr(err, "chain step")
	}
	return steps, nil
}

func (r *ApprovalRepo) ListPendingStepsFor(ctx context.Context, approverID string) ([]domain.SwapApprovalChainStep, error) {
	steps := []domain.SwapApprovalChainStep{}
	query := `SELECT` + stepColumns + ` FROM swap_approval_chain_steps
		WHERE approver_id = $1 AND status = 'pending'
		ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &steps, query, approverID); err != nil {
		return nil, wrapErr(err, "chain step")
	}
	return steps, nil
}

func (r *ApprovalRepo) CreateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO swap_approval_chain_steps (
			id, swap_request_id, level, approver_id, status, decided_at,
			notes, delegated_to, rule_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	err := r.q.QueryRowxContext(ctx, query,
		s.ID, s.SwapRequestID, s.Level, s.ApproverID, s.Status, s.DecidedAt,
		s.Notes, s.DelegatedTo, s.RuleID,
	).Scan(&s.CreatedAt)
	return wrapErr(err, "chain step")
}

func (r *ApprovalRepo) UpdateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error {
	query := `
		UPDATE swap_approval_chain_steps SET
			status = $2, decided_at = $3, notes = $4, delegated_to = $5
		WHERE id = $1`
	res, err := r.q.ExecContext(ctx, query,
		s.ID, s.Status, s.DecidedAt, s.Notes, s.DelegatedTo,
	)
	if err != nil {
		return wrapErr(err, "chain step")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("chain step")
	}
	return nil
}

func (r *ApprovalRepo) GetDelegation(ctx context.Context, id string) (*domain.ApprovalDelegation, error) {
	var d domain.ApprovalDelegation
	query := `SELECT` + delegationColumns + ` FROM approval_delegations WHERE id = $1`
	if err := r.q.GetContext(ctx, &d, query, id); err != nil {
		return nil, wrapErr(err, "delegation")
	}
	return &d, nil
}

func (r *ApprovalRepo) ListActiveDelegations(ctx context.Context) ([]domain.ApprovalDelegation, error) {
	delegations := []domain.ApprovalDelegation{}
	query := `SELECT` + delegationColumns + ` FROM approval_delegations
		WHERE active = true
		ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &delegations, query); err != nil {
		return nil, wrapErr(err, "delegation")
	}
	return delegations, nil
}

func (r *ApprovalRepo) ListDelegationsBy(ctx context.Context, delegatorID string) ([]domain.ApprovalDelegation, error) {
	delegations := []domain.ApprovalDelegation{}
	query := `SELECT` + delegationColumns + ` FROM approval_delegations
		WHERE delegator_id = $1
		ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &delegations, query, delegatorID); err != nil {
		return nil, wrapErr(err, "delegation")
	}
	return delegations, nil
}

func (r *ApprovalRepo) CreateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO approval_delegations (
			id, delegator_id, delegate_id, start_date, end_date, active, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		d.ID, d.DelegatorID, d.DelegateID, d.StartDate, d.EndDate, d.Active, d.Reason,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return wrapErr(err, "delegation")
}

func (r *ApprovalRepo) UpdateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error {
	query := `
		UPDATE approval_delegations SET
			delegate_id = $2, start_date = $3, end_date = $4, active = $5,
			reason = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		d.ID, d.DelegateID, d.StartDate, d.EndDate, d.Active, d.Reason,
	).Scan(&d.UpdatedAt)
	return wrapErr(err, "delegation")
}

// AppendAudit inserts one audit row. The audit is append-only: no update
// or delete path exists in this repository.
func (r *ApprovalRepo) AppendAudit(ctx context.Context, a *domain.SwapApprovalAudit) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `
		INSERT INTO swap_approval_audit (
			id, swap_request_id, action, actor_id, chain_step_id, rule_id,
			notes, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := r.q.QueryRowxContext(ctx, query,
		a.ID, a.SwapRequestID, a.Action, a.ActorID, a.ChainStepID, a.RuleID,
		a.Notes, a.Metadata,
	).Scan(&a.CreatedAt)
	return wrapErr(err, "audit entry")
}

func (r *ApprovalRepo) ListAudit(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalAudit, error) {
	entries := []domain.SwapApprovalAudit{}
	query := `SELECT` + auditColumns + ` FROM swap_approval_audit
		WHERE swap_request_id = $1
		ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &entries, query, swapRequestID); err != nil {
		return nil, wrapErr(err, "audit entry")
	}
	return entries, nil
}
