package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

func (e *testEnv) leaveService() *LeaveService {
	return NewLeaveService(e.store, e.clock, e.cal, e.cfg, e.conflictService(), e.perms, e.events, e.notifier(), e.log)
}

// seedLeaveTeam creates a four-person team managed by Carol, roomy
// enough that one absence raises no staffing warning.
func (e *testEnv) seedLeaveTeam() domain.Team {
	team := e.putTeam("team-1", "Platform", strPtr("emp-carol"))
	e.putEmployee("emp-alice", "Alice", &team.ID)
	e.putEmployee("emp-bob", "Bob", &team.ID)
	e.putEmployee("emp-carol", "Carol", &team.ID)
	e.putEmployee("emp-dana", "Dana", &team.ID)
	return team
}

func TestLeaveSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()

	result, err := env.leaveService().Submit(context.Background(), testActor("emp-alice"), &SubmitLeaveRequest{
		LeaveType: domain.LeaveVacation,
		StartDate: "2025-03-10",
		EndDate:   "2025-03-14",
	})
	require.NoError(t, err)

	leave := result.Leave
	assert.Equal(t, domain.LeavePending, leave.Status)
	assert.Equal(t, 5.0, leave.DaysRequested)
	assert.Equal(t, 1, leave.Version)
	assert.Nil(t, result.Warnings)

	stored, ok := env.store.data.leaves[leave.ID]
	require.True(t, ok)
	assert.Equal(t, "emp-alice", stored.EmployeeID)

	env.events.AssertEventPublished(t, messaging.EventLeaveSubmitted)

	// The team manager hears about it.
	require.Len(t, env.store.data.notifications, 1)
	for _, n := range env.store.data.notifications {
		assert.Equal(t, "emp-carol", n.RecipientID)
		assert.Equal(t, domain.NotifyLeaveRequested, n.Class)
	}
}

func TestLeaveSubmitSingleWeekendDayCountsOne(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()

	result, err := env.leaveService().Submit(context.Background(), testActor("emp-alice"), &SubmitLeaveRequest{
		LeaveType: domain.LeavePersonal,
		StartDate: "2025-03-08",
		EndDate:   "2025-03-08",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Leave.DaysRequested)
}

func TestLeaveSubmitBlocking(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-old", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-12"), calendar.MustDate("2025-03-13"), domain.LeaveApproved)

	_, err := env.leaveService().Submit(context.Background(), testActor("emp-alice"), &SubmitLeaveRequest{
		LeaveType: domain.LeaveVacation,
		StartDate: "2025-03-10",
		EndDate:   "2025-03-14",
	})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	// Nothing was written.
	assert.Len(t, env.store.data.leaves, 1)
}

func TestLeaveSubmitWarnsOnThinStaffing(t *testing.T) {
	env := newTestEnv(t)
	// Three members: two absences on a shared day drop below minimum.
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-alice", "Alice", &team.ID)
	env.putEmployee("emp-bob", "Bob", &team.ID)
	env.putEmployee("emp-carol", "Carol", &team.ID)
	env.putLeave("leave-bob", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeaveApproved)

	result, err := env.leaveService().Submit(context.Background(), testActor("emp-alice"), &SubmitLeaveRequest{
		LeaveType: domain.LeaveVacation,
		StartDate: "2025-03-10",
		EndDate:   "2025-03-11",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Warnings)
	assert.NotEmpty(t, result.Warnings.TeamConflictsByDay)
	assert.Equal(t, domain.LeavePending, result.Leave.Status)
}

func TestLeaveSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	svc := env.leaveService()
	a := testActor("emp-alice")

	_, err := svc.Submit(context.Background(), a, &SubmitLeaveRequest{
		LeaveType: "sabbatical", StartDate: "2025-03-10", EndDate: "2025-03-11",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.Submit(context.Background(), a, &SubmitLeaveRequest{
		LeaveType: domain.LeaveVacation, StartDate: "10-03-2025", EndDate: "2025-03-11",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.Submit(context.Background(), a, &SubmitLeaveRequest{
		LeaveType: domain.LeaveVacation, StartDate: "2025-03-11", EndDate: "2025-03-10",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestLeaveDecideApprove(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)

	leave, err := env.leaveService().Decide(context.Background(), testActor("emp-carol"), "leave-a", LeaveDecisionApprove, strPtr("enjoy"))
	require.NoError(t, err)

	assert.Equal(t, domain.LeaveApproved, leave.Status)
	require.NotNil(t, leave.DecidedBy)
	assert.Equal(t, "emp-carol", *leave.DecidedBy)
	assert.NotNil(t, leave.DecidedAt)

	env.events.AssertEventPublished(t, messaging.EventLeaveApproved)
	require.Len(t, env.store.data.notifications, 1)
	for _, n := range env.store.data.notifications {
		assert.Equal(t, "emp-alice", n.RecipientID)
		assert.Equal(t, domain.NotifyLeaveDecided, n.Class)
	}
}

func TestLeaveDecideAlreadyDecided(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeaveApproved)

	_, err := env.leaveService().Decide(context.Background(), testActor("emp-carol"), "leave-a", LeaveDecisionApprove, nil)
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.ErrorContains(t, err, "already approved")
}

func TestLeaveDecideRejectsCompetitorsOnBreach(t *testing.T) {
	env := newTestEnv(t)
	// Three active members, minimum staff two: granting both pending
	// requests would leave one person standing.
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-alice", "Alice", &team.ID)
	env.putEmployee("emp-bob", "Bob", &team.ID)
	env.putEmployee("emp-carol", "Carol", &team.ID)
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	env.putLeave("leave-b", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-11"), calendar.MustDate("2025-03-13"), domain.LeavePending)

	approved, err := env.leaveService().Decide(context.Background(), testActor("emp-carol"), "leave-a", LeaveDecisionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveApproved, approved.Status)

	competitor := env.store.data.leaves["leave-b"]
	assert.Equal(t, domain.LeaveRejected, competitor.Status)
	require.NotNil(t, competitor.DecisionNote)
	assert.Equal(t, "automatically rejected: conflicts with approved leave leave-a", *competitor.DecisionNote)

	env.events.AssertEventPublished(t, messaging.EventLeaveApproved)
	env.events.AssertEventPublished(t, messaging.EventLeaveRejected)

	// Both employees are told.
	recipients := map[string]bool{}
	for _, n := range env.store.data.notifications {
		recipients[n.RecipientID] = true
	}
	assert.True(t, recipients["emp-alice"])
	assert.True(t, recipients["emp-bob"])
}

func TestLeaveDecideKeepsCompetitorsWithoutBreach(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	env.putLeave("leave-b", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-11"), calendar.MustDate("2025-03-13"), domain.LeavePending)

	_, err := env.leaveService().Decide(context.Background(), testActor("emp-carol"), "leave-a", LeaveDecisionApprove, nil)
	require.NoError(t, err)

	// Four members minus two absentees still meets the minimum.
	assert.Equal(t, domain.LeavePending, env.store.data.leaves["leave-b"].Status)
}

func TestLeaveRecommend(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	alice := env.putEmployee("emp-alice", "Alice", &team.ID)
	alice.HireDate = time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	env.store.data.employees[alice.ID] = alice
	bob := env.putEmployee("emp-bob", "Bob", &team.ID)
	bob.HireDate = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	env.store.data.employees[bob.ID] = bob

	// Bob submitted first, but Alice is senior and neither has used
	// leave this year: two votes to one.
	env.putLeave("leave-b", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)

	rec, err := env.leaveService().Recommend(context.Background(), testActor("emp-carol"), []string{"leave-a", "leave-b"})
	require.NoError(t, err)

	assert.Equal(t, "leave-a", rec.RecommendedID)
	require.Len(t, rec.Votes, 3)
	assert.Equal(t, RuleVote{Rule: "seniority", RequestID: "leave-a"}, rec.Votes[0])
	assert.Equal(t, RuleVote{Rule: "first_submitted", RequestID: "leave-b"}, rec.Votes[1])
	assert.Equal(t, RuleVote{Rule: "least_leave_used", RequestID: "leave-a"}, rec.Votes[2])
}

func TestLeaveRecommendLeastLeaveUsed(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	alice := env.putEmployee("emp-alice", "Alice", &team.ID)
	alice.HireDate = time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	env.store.data.employees[alice.ID] = alice
	env.putEmployee("emp-bob", "Bob", &team.ID)

	// Alice already burned a week this year.
	env.putLeave("leave-used", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-01-06"), calendar.MustDate("2025-01-10"), domain.LeaveApproved)
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	env.putLeave("leave-b", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)

	rec, err := env.leaveService().Recommend(context.Background(), testActor("emp-carol"), []string{"leave-a", "leave-b"})
	require.NoError(t, err)
	assert.Equal(t, RuleVote{Rule: "least_leave_used", RequestID: "leave-b"}, rec.Votes[2])
	// Seniority and submission order still outvote it two to one.
	assert.Equal(t, "leave-a", rec.RecommendedID)
}

func TestLeaveRecommendValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeaveApproved)
	env.putLeave("leave-b", "emp-bob", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	svc := env.leaveService()

	_, err := svc.Recommend(context.Background(), testActor("emp-carol"), []string{"leave-a"})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.Recommend(context.Background(), testActor("emp-carol"), []string{"leave-a", "leave-b"})
	assert.ErrorIs(t, err, errors.ErrConflictBlocking)
}

func TestLeaveCancel(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-pending", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	env.putLeave("leave-future", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-04-07"), calendar.MustDate("2025-04-11"), domain.LeaveApproved)
	env.putLeave("leave-started", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-03"), calendar.MustDate("2025-03-05"), domain.LeaveApproved)
	svc := env.leaveService()

	// Only the requester may cancel.
	_, err := svc.Cancel(context.Background(), testActor("emp-bob"), "leave-pending")
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	cancelled, err := svc.Cancel(context.Background(), testActor("emp-alice"), "leave-pending")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveCancelled, cancelled.Status)
	env.events.AssertEventPublished(t, messaging.EventLeaveCancelled)

	cancelled, err = svc.Cancel(context.Background(), testActor("emp-alice"), "leave-future")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveCancelled, cancelled.Status)

	// Approved leave that already started is immutable.
	_, err = svc.Cancel(context.Background(), testActor("emp-alice"), "leave-started")
	assert.ErrorIs(t, err, errors.ErrConflictBlocking)
}

func TestLeaveListForEmployeePermission(t *testing.T) {
	env := newTestEnv(t)
	env.seedLeaveTeam()
	env.putLeave("leave-a", "emp-alice", domain.LeaveVacation,
		calendar.MustDate("2025-03-10"), calendar.MustDate("2025-03-12"), domain.LeavePending)
	svc := env.leaveService()
	start, end := calendar.MustDate("2025-03-01"), calendar.MustDate("2025-03-31")

	own, err := svc.ListForEmployee(context.Background(), testActor("emp-alice", permissions.RequestLeave), "emp-alice", start, end)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	_, err = svc.ListForEmployee(context.Background(), testActor("emp-bob", permissions.RequestLeave), "emp-alice", start, end)
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}
