package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/messaging"
)

func (e *testEnv) approvalService() *ApprovalService {
	return NewApprovalService(e.store, e.clock, e.cal, e.cfg, e.perms, e.events, e.notifier(), e.log)
}

func (e *testEnv) putRule(r domain.SwapApprovalRule) domain.SwapApprovalRule {
	if r.LevelsRequired == 0 {
		r.LevelsRequired = 1
	}
	r.Active = true
	e.store.data.rules[r.ID] = r
	return r
}

// seedSwapScenario builds a team managed by Carol with Alice and Bob
// holding one incidents shift each.
func (e *testEnv) seedSwapScenario() {
	team := e.putTeam("team-1", "Platform", strPtr("emp-carol"))
	e.putEmployee("emp-alice", "Alice", &team.ID)
	e.putEmployee("emp-bob", "Bob", &team.ID)
	e.putEmployee("emp-carol", "Carol", &team.ID)
	e.putEmployee("emp-dave", "Dave", nil)
	e.putTemplate("tpl-inc", "Incidents Day", domain.ClassIncidents)
	e.putShift("shift-alice", "tpl-inc", "emp-alice", &team.ID, domain.ClassIncidents,
		e.at(2025, 3, 10, 8, 0), e.at(2025, 3, 10, 17, 0), domain.ShiftScheduled)
	e.putShift("shift-bob", "tpl-inc", "emp-bob", &team.ID, domain.ClassIncidents,
		e.at(2025, 3, 11, 8, 0), e.at(2025, 3, 11, 17, 0), domain.ShiftScheduled)
}

func auditActions(env *testEnv, swapID string) []domain.AuditAction {
	var out []domain.AuditAction
	for _, a := range env.store.data.audits {
		if a.SwapRequestID == swapID {
			out = append(out, a.Action)
		}
	}
	return out
}

func TestSubmitSwapDefaultRule(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()

	result, err := env.approvalService().SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
		TargetShiftID:     strPtr("shift-bob"),
	})
	require.NoError(t, err)

	assert.False(t, result.AutoApproved)
	assert.Equal(t, "system default", result.RuleName)
	assert.Equal(t, domain.SwapPending, result.Swap.Status)
	assert.Nil(t, result.Swap.RuleID)

	require.Len(t, result.Chain, 1)
	assert.Equal(t, 1, result.Chain[0].Level)
	assert.Equal(t, "emp-carol", result.Chain[0].ApproverID)
	assert.Equal(t, domain.StepPending, result.Chain[0].Status)

	actions := auditActions(env, result.Swap.ID)
	assert.Equal(t, []domain.AuditAction{domain.AuditCreated, domain.AuditRuleApplied}, actions)

	env.events.AssertEventPublished(t, messaging.EventSwapSubmitted)
	env.events.AssertEventPublished(t, messaging.EventSwapStepPending)

	// The level-1 approver hears about the pending step.
	require.Len(t, env.store.data.notifications, 1)
	for _, n := range env.store.data.notifications {
		assert.Equal(t, "emp-carol", n.RecipientID)
		assert.Equal(t, domain.NotifySwapApprovalPending, n.Class)
	}
}

func TestSubmitSwapValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()

	_, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-alice",
		RequestingShiftID: "shift-alice",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	// Bob's shift is not Alice's to swap away.
	_, err = svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-bob",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	done := env.store.data.shifts["shift-alice"]
	done.Status = domain.ShiftCompleted
	env.store.data.shifts[done.ID] = done
	_, err = svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	assert.ErrorIs(t, err, errors.ErrConflictBlocking)
}

func TestSubmitSwapAutoApproved(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putRule(domain.SwapApprovalRule{
		ID:                 "rule-auto",
		Name:               "auto incidents",
		Priority:           10,
		AppliesTo:          []string{"incidents"},
		AutoApproveEnabled: true,
		RequireSameClass:   true,
	})

	result, err := env.approvalService().SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
		TargetShiftID:     strPtr("shift-bob"),
	})
	require.NoError(t, err)

	assert.True(t, result.AutoApproved)
	assert.Empty(t, result.Chain)
	assert.Equal(t, domain.SwapApproved, result.Swap.Status)
	require.NotNil(t, result.Swap.DecidedAt)

	// The assignments were exchanged.
	assert.Equal(t, "emp-bob", env.store.data.shifts["shift-alice"].EmployeeID)
	assert.Equal(t, "emp-alice", env.store.data.shifts["shift-bob"].EmployeeID)

	assert.Contains(t, auditActions(env, result.Swap.ID), domain.AuditAutoApproved)
	env.events.AssertEventPublished(t, messaging.EventSwapAutoApproved)
}

func TestSubmitSwapAutoApprovalPredicateFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putRule(domain.SwapApprovalRule{
		ID:                 "rule-auto",
		Name:               "auto with notice",
		Priority:           10,
		AppliesTo:          []string{"incidents"},
		AutoApproveEnabled: true,
		MinAdvanceHours:    intPtr(24 * 30),
	})

	result, err := env.approvalService().SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	// Falls back to the manager chain.
	assert.False(t, result.AutoApproved)
	require.Len(t, result.Chain, 1)
	assert.Equal(t, "emp-carol", result.Chain[0].ApproverID)
	assert.Equal(t, "emp-alice", env.store.data.shifts["shift-alice"].EmployeeID)
}

func TestDecideSwapStepTwoLevels(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.cfg.EscalationApprovers = []string{"emp-dave"}
	env.putRule(domain.SwapApprovalRule{
		ID:             "rule-two",
		Name:           "two level",
		Priority:       5,
		AppliesTo:      []string{"incidents"},
		LevelsRequired: 2,
	})
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
		TargetShiftID:     strPtr("shift-bob"),
	})
	require.NoError(t, err)
	require.Len(t, result.Chain, 2)
	assert.Equal(t, "emp-carol", result.Chain[0].ApproverID)
	assert.Equal(t, "emp-dave", result.Chain[1].ApproverID)

	// Level 2 may not move before level 1.
	_, err = svc.DecideSwapStep(context.Background(), testActor("emp-dave"), result.Chain[1].ID, DecisionApprove, nil, nil)
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.ErrorContains(t, err, "level 1 must be approved first")

	swap, err := svc.DecideSwapStep(context.Background(), testActor("emp-carol"), result.Chain[0].ID, DecisionApprove, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapPending, swap.Status)

	swap, err = svc.DecideSwapStep(context.Background(), testActor("emp-dave"), result.Chain[1].ID, DecisionApprove, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapApproved, swap.Status)
	assert.Equal(t, "emp-bob", env.store.data.shifts["shift-alice"].EmployeeID)
	assert.Equal(t, "emp-alice", env.store.data.shifts["shift-bob"].EmployeeID)
	env.events.AssertEventPublished(t, messaging.EventSwapApproved)
}

func TestDecideSwapStepReject(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	swap, err := svc.DecideSwapStep(context.Background(), testActor("emp-carol"), result.Chain[0].ID,
		DecisionReject, strPtr("coverage too thin"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapRejected, swap.Status)

	step := env.store.data.steps[result.Chain[0].ID]
	assert.Equal(t, domain.StepRejected, step.Status)
	assert.Contains(t, auditActions(env, swap.ID), domain.AuditRejected)

	// The requester still holds the shift and gets the bad news.
	assert.Equal(t, "emp-alice", env.store.data.shifts["shift-alice"].EmployeeID)
	rejected := false
	for _, n := range env.store.data.notifications {
		if n.RecipientID == "emp-alice" && n.Class == domain.NotifySwapRejected {
			rejected = true
		}
	}
	assert.True(t, rejected)
}

func TestDecideSwapStepUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	_, err = svc.DecideSwapStep(context.Background(), testActor("emp-bob"), result.Chain[0].ID, DecisionApprove, nil, nil)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}

func TestBuildChainSubstitutesActiveDelegate(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putEmployee("emp-erin", "Erin", nil)
	env.store.data.delegations["del-1"] = domain.ApprovalDelegation{
		ID:          "del-1",
		DelegatorID: "emp-carol",
		DelegateID:  "emp-erin",
		StartDate:   env.at(2025, 3, 1, 0, 0).UTC(),
		Active:      true,
	}
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)
	require.Len(t, result.Chain, 1)
	assert.Equal(t, "emp-erin", result.Chain[0].ApproverID)
	assert.Contains(t, auditActions(env, result.Swap.ID), domain.AuditDelegated)

	swap, err := svc.DecideSwapStep(context.Background(), testActor("emp-erin"), result.Chain[0].ID, DecisionApprove, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapApproved, swap.Status)
}

func TestDecideSwapStepDelegate(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putEmployee("emp-erin", "Erin", nil)
	env.putRule(domain.SwapApprovalRule{
		ID:              "rule-del",
		Name:            "delegable",
		Priority:        5,
		AppliesTo:       []string{"incidents"},
		AllowDelegation: true,
	})
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
		TargetShiftID:     strPtr("shift-bob"),
	})
	require.NoError(t, err)

	swap, err := svc.DecideSwapStep(context.Background(), testActor("emp-carol"), result.Chain[0].ID,
		DecisionDelegate, nil, strPtr("emp-erin"))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapPending, swap.Status)

	original := env.store.data.steps[result.Chain[0].ID]
	assert.Equal(t, domain.StepDelegated, original.Status)
	require.NotNil(t, original.DelegatedTo)
	assert.Equal(t, "emp-erin", *original.DelegatedTo)

	// A replacement step at the same level awaits the delegate.
	var replacement *domain.SwapApprovalChainStep
	for id, s := range env.store.data.steps {
		if id != original.ID && s.SwapRequestID == swap.ID {
			s := s
			replacement = &s
		}
	}
	require.NotNil(t, replacement)
	assert.Equal(t, 1, replacement.Level)
	assert.Equal(t, "emp-erin", replacement.ApproverID)
	assert.Equal(t, domain.StepPending, replacement.Status)

	swap, err = svc.DecideSwapStep(context.Background(), testActor("emp-erin"), replacement.ID, DecisionApprove, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapApproved, swap.Status)
}

func TestDecideSwapStepDelegateRequiresRule(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putEmployee("emp-erin", "Erin", nil)
	svc := env.approvalService()

	// The system default rule does not allow delegation.
	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	_, err = svc.DecideSwapStep(context.Background(), testActor("emp-carol"), result.Chain[0].ID,
		DecisionDelegate, nil, strPtr("emp-erin"))
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.ErrorContains(t, err, "does not allow delegation")
}

func TestSubmitSwapMonthlyCap(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putRule(domain.SwapApprovalRule{
		ID:             "rule-cap",
		Name:           "capped",
		Priority:       5,
		AppliesTo:      []string{"incidents"},
		MonthlySwapCap: intPtr(1),
	})
	decided := env.clock.Now()
	env.store.data.swaps["swap-old"] = domain.SwapRequest{
		ID:                "swap-old",
		RequesterID:       "emp-alice",
		TargetID:          "emp-bob",
		RequestingShiftID: "shift-old",
		Status:            domain.SwapApproved,
		DecidedAt:         &decided,
		Version:           2,
	}

	_, err := env.approvalService().SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.ErrorContains(t, err, "monthly swap cap of 1 reached")
}

func TestCancelSwap(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	// Only the requester may cancel.
	_, err = svc.CancelSwap(context.Background(), testActor("emp-bob"), result.Swap.ID)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	swap, err := svc.CancelSwap(context.Background(), testActor("emp-alice"), result.Swap.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapCancelled, swap.Status)
	assert.Equal(t, domain.StepSkipped, env.store.data.steps[result.Chain[0].ID].Status)
	assert.Contains(t, auditActions(env, swap.ID), domain.AuditCancelled)
	env.events.AssertEventPublished(t, messaging.EventSwapCancelled)

	_, err = svc.CancelSwap(context.Background(), testActor("emp-alice"), result.Swap.ID)
	assert.ErrorIs(t, err, errors.ErrConflictBlocking)
}

func TestListPendingForResolvesDelegation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	env.putEmployee("emp-erin", "Erin", nil)
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	direct, err := svc.ListPendingFor(context.Background(), testActor("emp-carol"))
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, result.Chain[0].ID, direct[0].Step.ID)
	assert.False(t, direct[0].ViaDelegate)

	// A delegation created after the chain routes Carol's queue to Erin.
	env.store.data.delegations["del-1"] = domain.ApprovalDelegation{
		ID:          "del-1",
		DelegatorID: "emp-carol",
		DelegateID:  "emp-erin",
		StartDate:   env.at(2025, 3, 1, 0, 0).UTC(),
		Active:      true,
	}
	viaDelegate, err := svc.ListPendingFor(context.Background(), testActor("emp-erin"))
	require.NoError(t, err)
	require.Len(t, viaDelegate, 1)
	assert.True(t, viaDelegate[0].ViaDelegate)
	assert.Equal(t, "emp-carol", viaDelegate[0].DelegatorID)
}

func TestCreateDelegationValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()
	a := testActor("emp-carol")

	_, err := svc.CreateDelegation(context.Background(), a, &CreateDelegationRequest{
		DelegateID: "emp-carol",
		StartDate:  "2025-03-01",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.CreateDelegation(context.Background(), a, &CreateDelegationRequest{
		DelegateID: "emp-bob",
		StartDate:  "2025-03-10",
		EndDate:    strPtr("2025-03-01"),
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	d, err := svc.CreateDelegation(context.Background(), a, &CreateDelegationRequest{
		DelegateID: "emp-bob",
		StartDate:  "2025-03-01",
		EndDate:    strPtr("2025-03-31"),
	})
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.Equal(t, "emp-carol", d.DelegatorID)
}

func TestRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.approvalService()
	a := testActor("emp-admin")

	_, err := svc.CreateRule(context.Background(), a, &domain.SwapApprovalRule{
		Name:           "too deep",
		LevelsRequired: 6,
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.CreateRule(context.Background(), a, &domain.SwapApprovalRule{
		Name:           "bad class",
		LevelsRequired: 1,
		AppliesTo:      []string{"nightshift"},
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	rule, err := svc.CreateRule(context.Background(), a, &domain.SwapApprovalRule{
		Name:           "incidents manager",
		LevelsRequired: 1,
		AppliesTo:      []string{"incidents"},
		Active:         true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	env.seedSwapScenario()
	svc := env.approvalService()

	result, err := svc.SubmitSwap(context.Background(), testActor("emp-alice"), &SubmitSwapRequest{
		TargetEmployeeID:  "emp-bob",
		RequestingShiftID: "shift-alice",
	})
	require.NoError(t, err)

	trail, err := svc.AuditTrail(context.Background(), testActor("emp-carol"), result.Swap.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.AuditCreated, trail[0].Action)
	assert.Equal(t, domain.AuditRuleApplied, trail[1].Action)

	_, err = svc.AuditTrail(context.Background(), testActor("emp-carol"), "swap-unknown")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
