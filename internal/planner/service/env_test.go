package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/permissions"
	"github.com/teamplanner/planner-backend/pkg/testutil"
)

// testEnv bundles the collaborators every service test needs. The clock
// is frozen on Monday 2025-03-03 10:00 in the organization timezone.
type testEnv struct {
	t      *testing.T
	store  *fakeStore
	clock  *calendar.FrozenClock
	cal    *calendar.Calendar
	cfg    *config.SchedulingConfig
	events *testutil.MockPublisher
	perms  permissions.ClaimsChecker
	log    *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cal, err := calendar.New("Europe/Amsterdam", nil)
	require.NoError(t, err)
	loc := cal.Location()

	return &testEnv{
		t:     t,
		store: newFakeStore(),
		clock: calendar.NewFrozenClock(time.Date(2025, 3, 3, 10, 0, 0, 0, loc), loc),
		cal:   cal,
		cfg: &config.SchedulingConfig{
			MaxDailyHours:                12,
			MaxWeeklyHours:               48,
			MaxMonthlyHours:              200,
			PartialAvailabilityThreshold: 0.75,
			MinRequiredStaff:             2,
			AlternativeSearchWindowDays:  14,
			FairnessWindowDays:           90,
			OrganizationTimezone:         "Europe/Amsterdam",
		},
		events: testutil.NewMockPublisher(),
		perms:  permissions.ClaimsChecker{},
		log:    logger.Nop(),
	}
}

func (e *testEnv) conflictService() *ConflictService {
	return NewConflictService(e.store, e.clock, e.cal, e.cfg, e.log)
}

func (e *testEnv) fairnessEngine() *FairnessEngine {
	return NewFairnessEngine(e.store, e.cal, e.cfg, e.log)
}

func (e *testEnv) notifier() *Notifier {
	return NewNotifier(e.clock, e.cal, e.events, e.log)
}

// at returns an instant in the organization timezone.
func (e *testEnv) at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, e.cal.Location())
}

func (e *testEnv) putTeam(id, name string, managerID *string) domain.Team {
	t := domain.Team{ID: id, Name: name, ManagerID: managerID}
	e.store.data.teams[id] = t
	return t
}

// putEmployee stores an active full-time employee available for every
// shift class; callers mutate the returned copy and re-store for
// variations.
func (e *testEnv) putEmployee(id, name string, teamID *string) domain.Employee {
	emp := domain.Employee{
		ID:                     id,
		Name:                   name,
		Email:                  id + "@example.test",
		TeamID:                 teamID,
		FTE:                    1.0,
		HireDate:               time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:                 true,
		AvailableForIncidents:  true,
		AvailableForWaakdienst: true,
	}
	e.store.data.employees[id] = emp
	return emp
}

func (e *testEnv) putTemplate(id, name string, class domain.ShiftClass) domain.ShiftTemplate {
	tpl := domain.ShiftTemplate{
		ID:        id,
		Name:      name,
		Class:     class,
		StartTime: "08:00",
		EndTime:   "17:00",
		Active:    true,
	}
	e.store.data.templates[id] = tpl
	return tpl
}

func (e *testEnv) putShift(id, templateID, employeeID string, teamID *string, class domain.ShiftClass, start, end time.Time, status domain.ShiftStatus) domain.Shift {
	s := domain.Shift{
		ID:         id,
		TemplateID: templateID,
		EmployeeID: employeeID,
		TeamID:     teamID,
		Class:      class,
		Start:      start,
		End:        end,
		Status:     status,
		Version:    1,
	}
	e.store.data.shifts[id] = s
	return s
}

func (e *testEnv) putLeave(id, employeeID string, leaveType domain.LeaveType, start, end calendar.Date, status domain.LeaveStatus) domain.LeaveRequest {
	l := domain.LeaveRequest{
		ID:            id,
		EmployeeID:    employeeID,
		LeaveType:     leaveType,
		StartDate:     start.Time(time.UTC),
		EndDate:       end.Time(time.UTC),
		DaysRequested: float64(start.DaysUntil(end) + 1),
		Status:        status,
		Version:       1,
		CreatedAt:     e.store.data.stamp(),
	}
	e.store.data.leaves[id] = l
	return l
}

// testActor builds an actor mapped to the given employee. Without
// explicit keys the actor holds the full wildcard.
func testActor(employeeID string, perms ...string) *actor.Actor {
	if len(perms) == 0 {
		perms = []string{"*"}
	}
	return &actor.Actor{
		ID:          "user-" + employeeID,
		EmployeeID:  employeeID,
		Name:        employeeID,
		Email:       employeeID + "@example.test",
		Permissions: perms,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
