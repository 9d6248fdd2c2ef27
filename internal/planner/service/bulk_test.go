package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

func (e *testEnv) bulkService() *BulkService {
	return NewBulkService(e.store, e.clock, e.cal, e.conflictService(), e.perms, e.events, e.log)
}

func (e *testEnv) seedBulkFixtures() {
	team := e.putTeam("team-1", "Platform", nil)
	e.putEmployee("emp-a", "Alice", &team.ID)
	e.putEmployee("emp-b", "Bob", &team.ID)
	e.putTemplate("tpl-chg", "Changes Day", domain.ClassChanges)
}

func TestBulkCreateFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()

	report, err := env.bulkService().CreateFromTemplate(context.Background(), testActor("emp-m"), &BulkCreateRequest{
		TemplateID: "tpl-chg",
		EmployeeID: "emp-a",
		Dates:      []string{"2025-03-03", "2025-03-04", "2025-03-05"},
	})
	require.NoError(t, err)

	require.Len(t, report.Affected, 3)
	assert.False(t, report.DryRun)
	assert.Len(t, env.store.data.shifts, 3)
	assert.Equal(t, env.at(2025, 3, 3, 8, 0), report.Affected[0].Start)
	assert.Equal(t, env.at(2025, 3, 3, 17, 0), report.Affected[0].End)
	assert.Equal(t, 3, env.store.data.templates["tpl-chg"].UsageCount)
	assert.Len(t, env.events.EventsOfType(messaging.EventShiftAssigned), 3)
}

func TestBulkCreateDryRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()

	report, err := env.bulkService().CreateFromTemplate(context.Background(), testActor("emp-m"), &BulkCreateRequest{
		TemplateID: "tpl-chg",
		EmployeeID: "emp-a",
		Dates:      []string{"2025-03-03", "2025-03-04"},
		DryRun:     true,
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Len(t, report.Affected, 2)
	assert.Empty(t, env.store.data.shifts)
	assert.Equal(t, 0, env.store.data.templates["tpl-chg"].UsageCount)
	assert.Empty(t, env.events.PublishedEvents)
}

func TestBulkCreateBlocksOnDoubleBooking(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-busy", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 4, 8, 0), env.at(2025, 3, 4, 17, 0), domain.ShiftScheduled)

	_, err := env.bulkService().CreateFromTemplate(context.Background(), testActor("emp-m"), &BulkCreateRequest{
		TemplateID: "tpl-chg",
		EmployeeID: "emp-a",
		Dates:      []string{"2025-03-03", "2025-03-04"},
	})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.ErrorContains(t, err, "shift on 2025-03-04")

	// The whole batch rolled back, including the clean first date.
	assert.Len(t, env.store.data.shifts, 1)
}

func TestBulkCreateTimeOverride(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()

	report, err := env.bulkService().CreateFromTemplate(context.Background(), testActor("emp-m"), &BulkCreateRequest{
		TemplateID: "tpl-chg",
		EmployeeID: "emp-a",
		Dates:      []string{"2025-03-03"},
		StartTime:  strPtr("22:00"),
		EndTime:    strPtr("06:00"),
	})
	require.NoError(t, err)
	require.Len(t, report.Affected, 1)
	assert.Equal(t, env.at(2025, 3, 3, 22, 0), report.Affected[0].Start)
	assert.Equal(t, env.at(2025, 3, 4, 6, 0), report.Affected[0].End)
}

func TestBulkAssignEmployee(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-1", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftScheduled)
	env.putShift("shift-2", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 4, 8, 0), env.at(2025, 3, 4, 17, 0), domain.ShiftScheduled)

	report, err := env.bulkService().AssignEmployee(context.Background(), testActor("emp-m"), &BulkAssignRequest{
		ShiftIDs:   []string{"shift-1", "shift-2"},
		EmployeeID: "emp-b",
	})
	require.NoError(t, err)
	require.Len(t, report.Affected, 2)
	assert.Equal(t, "emp-b", env.store.data.shifts["shift-1"].EmployeeID)
	assert.Equal(t, "emp-b", env.store.data.shifts["shift-2"].EmployeeID)
	assert.Equal(t, 2, env.store.data.shifts["shift-1"].Version)
}

func TestBulkAssignRefusesFinishedShifts(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-done", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftCompleted)

	_, err := env.bulkService().AssignEmployee(context.Background(), testActor("emp-m"), &BulkAssignRequest{
		ShiftIDs:   []string{"shift-done"},
		EmployeeID: "emp-b",
	})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.Equal(t, "emp-a", env.store.data.shifts["shift-done"].EmployeeID)
}

func TestBulkAssignBlocksOnDoubleBooking(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-move", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftScheduled)
	env.putShift("shift-bob", "tpl-chg", "emp-b", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 12, 0), env.at(2025, 3, 3, 20, 0), domain.ShiftScheduled)

	_, err := env.bulkService().AssignEmployee(context.Background(), testActor("emp-m"), &BulkAssignRequest{
		ShiftIDs:   []string{"shift-move"},
		EmployeeID: "emp-b",
	})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)
	assert.Equal(t, "emp-a", env.store.data.shifts["shift-move"].EmployeeID)
}

func TestBulkModifyTimesSet(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-1", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftScheduled)

	report, err := env.bulkService().ModifyTimes(context.Background(), testActor("emp-m"), &BulkModifyTimesRequest{
		ShiftIDs:  []string{"shift-1"},
		Mode:      "set",
		StartTime: strPtr("10:00"),
		EndTime:   strPtr("18:00"),
	})
	require.NoError(t, err)
	require.Len(t, report.Affected, 1)

	stored := env.store.data.shifts["shift-1"]
	assert.Equal(t, env.at(2025, 3, 3, 10, 0), stored.Start)
	assert.Equal(t, env.at(2025, 3, 3, 18, 0), stored.End)
}

func TestBulkModifyTimesOffset(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-1", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftScheduled)

	_, err := env.bulkService().ModifyTimes(context.Background(), testActor("emp-m"), &BulkModifyTimesRequest{
		ShiftIDs:      []string{"shift-1"},
		Mode:          "offset",
		OffsetMinutes: 60,
	})
	require.NoError(t, err)

	stored := env.store.data.shifts["shift-1"]
	assert.Equal(t, env.at(2025, 3, 3, 9, 0), stored.Start)
	assert.Equal(t, env.at(2025, 3, 3, 18, 0), stored.End)
}

func TestBulkModifyTimesValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	svc := env.bulkService()
	a := testActor("emp-m")

	_, err := svc.ModifyTimes(context.Background(), a, &BulkModifyTimesRequest{
		ShiftIDs: []string{"shift-1"},
		Mode:     "set",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.ModifyTimes(context.Background(), a, &BulkModifyTimesRequest{
		ShiftIDs: []string{"shift-1"},
		Mode:     "offset",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestBulkDelete(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-1", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftScheduled)
	env.putShift("shift-2", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 4, 8, 0), env.at(2025, 3, 4, 17, 0), domain.ShiftScheduled)

	report, err := env.bulkService().Delete(context.Background(), testActor("emp-m"), &BulkDeleteRequest{
		ShiftIDs: []string{"shift-1", "shift-2"},
	})
	require.NoError(t, err)
	require.Len(t, report.Affected, 2)

	for _, id := range []string{"shift-1", "shift-2"} {
		stored := env.store.data.shifts[id]
		assert.Equal(t, domain.ShiftCancelled, stored.Status)
		assert.NotNil(t, stored.DeletedAt)
	}
	assert.Len(t, env.events.EventsOfType(messaging.EventShiftDeleted), 2)
}

func TestBulkDeleteStatusRules(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	env.putShift("shift-running", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 3, 17, 0), domain.ShiftInProgress)
	env.putShift("shift-done", "tpl-chg", "emp-a", strPtr("team-1"), domain.ClassChanges,
		env.at(2025, 3, 4, 8, 0), env.at(2025, 3, 4, 17, 0), domain.ShiftCompleted)
	svc := env.bulkService()
	a := testActor("emp-m")

	_, err := svc.Delete(context.Background(), a, &BulkDeleteRequest{ShiftIDs: []string{"shift-running"}})
	require.ErrorIs(t, err, errors.ErrConflictBlocking)

	_, err = svc.Delete(context.Background(), a, &BulkDeleteRequest{ShiftIDs: []string{"shift-running"}, Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftCancelled, env.store.data.shifts["shift-running"].Status)

	// Completed shifts are refused even under force.
	_, err = svc.Delete(context.Background(), a, &BulkDeleteRequest{ShiftIDs: []string{"shift-done"}, Force: true})
	assert.ErrorIs(t, err, errors.ErrConflictBlocking)
}

func TestBulkRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	env.seedBulkFixtures()
	viewer := testActor("emp-a", permissions.ViewSchedule)

	_, err := env.bulkService().CreateFromTemplate(context.Background(), viewer, &BulkCreateRequest{
		TemplateID: "tpl-chg",
		EmployeeID: "emp-a",
		Dates:      []string{"2025-03-03"},
	})
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	_, err = env.bulkService().Delete(context.Background(), viewer, &BulkDeleteRequest{ShiftIDs: []string{"x"}})
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
}
