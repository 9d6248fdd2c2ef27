package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
)

func TestFairnessScore(t *testing.T) {
	tests := []struct {
		name     string
		assigned float64
		expected float64
		want     float64
	}{
		{"on target", 10, 10, 100},
		{"double the expected load", 20, 10, 25},
		{"half the expected load", 5, 10, 70},
		{"nothing expected nothing assigned", 0, 0, 100},
		{"assigned with zero expected floors at zero", 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fairnessScore(tt.assigned, tt.expected), 0.001)
		})
	}
}

func TestFairnessScoreBounded(t *testing.T) {
	for _, assigned := range []float64{0, 1, 5, 50, 500} {
		for _, expected := range []float64{0, 1, 10, 100} {
			s := fairnessScore(assigned, expected)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 100.0)
		}
	}
}

func TestLedgerSelectPrefersLowerLoad(t *testing.T) {
	a := domain.Employee{ID: "emp-a", FTE: 1}
	b := domain.Employee{ID: "emp-b", FTE: 1}
	ledger := &ClassLedger{
		Class: domain.ClassIncidents,
		Entries: map[string]*LedgerEntry{
			"emp-a": {Employee: &a, Assigned: 0, Expected: 10},
			"emp-b": {Employee: &b, Assigned: 5, Expected: 10},
		},
	}

	picked := ledger.Select([]domain.Employee{b, a}, 5)
	require.NotNil(t, picked)
	assert.Equal(t, "emp-a", picked.ID)
}

func TestLedgerSelectEmptyLedgerFavorsHigherExpectedLoad(t *testing.T) {
	alice := domain.Employee{ID: "emp-a", FTE: 1}
	bob := domain.Employee{ID: "emp-b", FTE: 1}
	carol := domain.Employee{ID: "emp-c", FTE: 0.5}
	ledger := &ClassLedger{
		Class: domain.ClassIncidents,
		Entries: map[string]*LedgerEntry{
			"emp-a": {Employee: &alice, Assigned: 0, Expected: 104.4},
			"emp-b": {Employee: &bob, Assigned: 0, Expected: 104.4},
			"emp-c": {Employee: &carol, Assigned: 0, Expected: 52.2},
		},
	}

	// Nobody has anything yet; the half-time employee reaches its
	// expected load in half the assignments, so a full-timer takes the
	// week.
	assert.Greater(t, ledger.Rank("emp-a", 5), ledger.Rank("emp-c", 5))
	picked := ledger.Select([]domain.Employee{carol, bob, alice}, 5)
	require.NotNil(t, picked)
	assert.Equal(t, "emp-a", picked.ID)
}

func TestLedgerSelectTieBreaksOnID(t *testing.T) {
	a := domain.Employee{ID: "emp-a", FTE: 1}
	b := domain.Employee{ID: "emp-b", FTE: 1}
	ledger := &ClassLedger{
		Class: domain.ClassIncidents,
		Entries: map[string]*LedgerEntry{
			"emp-a": {Employee: &a, Assigned: 2, Expected: 10},
			"emp-b": {Employee: &b, Assigned: 2, Expected: 10},
		},
	}

	picked := ledger.Select([]domain.Employee{b, a}, 5)
	require.NotNil(t, picked)
	assert.Equal(t, "emp-a", picked.ID)
}

func TestLedgerSelectSkipsUnknownCandidates(t *testing.T) {
	a := domain.Employee{ID: "emp-a", FTE: 1}
	outsider := domain.Employee{ID: "emp-x", FTE: 1}
	ledger := &ClassLedger{
		Class: domain.ClassIncidents,
		Entries: map[string]*LedgerEntry{
			"emp-a": {Employee: &a, Assigned: 0, Expected: 5},
		},
	}

	picked := ledger.Select([]domain.Employee{outsider, a}, 5)
	require.NotNil(t, picked)
	assert.Equal(t, "emp-a", picked.ID)

	assert.Nil(t, ledger.Select([]domain.Employee{outsider}, 5))
	assert.Nil(t, ledger.Select(nil, 5))
}

func TestLedgerRecord(t *testing.T) {
	a := domain.Employee{ID: "emp-a", FTE: 1}
	ledger := &ClassLedger{
		Entries: map[string]*LedgerEntry{
			"emp-a": {Employee: &a, Assigned: 1, Expected: 10},
		},
	}
	ledger.Record("emp-a", 5)
	assert.InDelta(t, 6.0, ledger.Entries["emp-a"].Assigned, 0.001)
	// unknown ids are ignored
	ledger.Record("emp-z", 5)
}

func TestFairnessLedgerExpectedLoadIsFTEWeighted(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-a", "Alice", &team.ID)
	bob := env.putEmployee("emp-b", "Bob", &team.ID)
	bob.FTE = 0.5
	env.store.data.employees[bob.ID] = bob

	start := calendar.MustDate("2025-03-03")
	end := calendar.MustDate("2025-03-09")

	ledger, err := env.fairnessEngine().Ledger(context.Background(), domain.ClassIncidents, start, end, &team.ID)
	require.NoError(t, err)

	// Mon..Fri only for incidents.
	assert.InDelta(t, 5.0, ledger.TotalClassDays, 0.001)
	assert.InDelta(t, 1.5, ledger.TotalFTE, 0.001)
	require.Contains(t, ledger.Entries, "emp-a")
	require.Contains(t, ledger.Entries, "emp-b")
	assert.InDelta(t, 5.0*1.0/1.5, ledger.Entries["emp-a"].Expected, 0.001)
	assert.InDelta(t, 5.0*0.5/1.5, ledger.Entries["emp-b"].Expected, 0.001)
}

func TestFairnessLedgerCountsAssignedDays(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-a", "Alice", &team.ID)
	env.putTemplate("tpl-inc", "Incidents Day", domain.ClassIncidents)

	// Mon through Fri block counts five weekdays.
	env.putShift("shift-1", "tpl-inc", "emp-a", &team.ID, domain.ClassIncidents,
		env.at(2025, 3, 3, 8, 0), env.at(2025, 3, 7, 17, 0), domain.ShiftScheduled)
	// Cancelled shifts never count.
	env.putShift("shift-2", "tpl-inc", "emp-a", &team.ID, domain.ClassIncidents,
		env.at(2025, 3, 10, 8, 0), env.at(2025, 3, 10, 17, 0), domain.ShiftCancelled)

	start := calendar.MustDate("2025-03-03")
	end := calendar.MustDate("2025-03-16")

	ledger, err := env.fairnessEngine().Ledger(context.Background(), domain.ClassIncidents, start, end, &team.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ledger.Entries["emp-a"].Assigned, 0.001)
}

func TestFairnessLedgerWaakdienstCountsWeekends(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-a", "Alice", &team.ID)
	env.putTemplate("tpl-wd", "Waakdienst", domain.ClassWaakdienst)

	// Saturday 00:00 to Sunday 00:00 covers one weekend day.
	env.putShift("shift-1", "tpl-wd", "emp-a", &team.ID, domain.ClassWaakdienst,
		env.at(2025, 3, 8, 0, 0), env.at(2025, 3, 9, 0, 0), domain.ShiftScheduled)

	start := calendar.MustDate("2025-03-03")
	end := calendar.MustDate("2025-03-09")

	ledger, err := env.fairnessEngine().Ledger(context.Background(), domain.ClassWaakdienst, start, end, &team.ID)
	require.NoError(t, err)
	// All seven days schedulable for waakdienst.
	assert.InDelta(t, 7.0, ledger.TotalClassDays, 0.001)
	assert.InDelta(t, 1.0, ledger.Entries["emp-a"].Assigned, 0.001)
}

func TestFairnessLedgerExcludesUnavailable(t *testing.T) {
	env := newTestEnv(t)
	team := env.putTeam("team-1", "Platform", nil)
	env.putEmployee("emp-a", "Alice", &team.ID)
	bob := env.putEmployee("emp-b", "Bob", &team.ID)
	bob.AvailableForIncidents = false
	env.store.data.employees[bob.ID] = bob

	start := calendar.MustDate("2025-03-03")
	end := calendar.MustDate("2025-03-09")

	ledger, err := env.fairnessEngine().Ledger(context.Background(), domain.ClassIncidents, start, end, &team.ID)
	require.NoError(t, err)
	assert.Contains(t, ledger.Entries, "emp-a")
	assert.NotContains(t, ledger.Entries, "emp-b")
}

func TestWindowFor(t *testing.T) {
	env := newTestEnv(t)
	target := calendar.MustDate("2025-03-03")
	start, end := env.fairnessEngine().WindowFor(target)
	assert.Equal(t, target, end)
	assert.Equal(t, target.AddDays(-89), start)
}

func TestDaysForAssignment(t *testing.T) {
	assert.InDelta(t, 5.0, DaysForAssignment(domain.ClassIncidents), 0.001)
	assert.InDelta(t, 7.0, DaysForAssignment(domain.ClassWaakdienst), 0.001)
	assert.InDelta(t, 1.0, DaysForAssignment(domain.ClassChanges), 0.001)
	assert.InDelta(t, 1.0, DaysForAssignment(domain.ClassProject), 0.001)
}
