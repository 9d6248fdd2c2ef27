package service

import (
	"context"
	"math"
	"sort"

	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// fairnessEpsilon guards divisions when the expected load is zero.
const fairnessEpsilon = 0.5

// Composite rank weights for candidate selection.
const (
	weightHeadroom  = 0.60
	weightSpread    = 0.25
	weightUnderLoad = 0.15
)

// LedgerEntry is one employee's standing in a class ledger.
type LedgerEntry struct {
	Employee *domain.Employee `json:"-"`
	Assigned float64          `json:"assigned_days"`
	Expected float64          `json:"expected_days"`
}

// ClassLedger is the fairness state of one shift class over a window:
// assigned class-days versus FTE-weighted expected load per eligible
// employee.
type ClassLedger struct {
	Class          domain.ShiftClass
	WindowStart    calendar.Date
	WindowEnd      calendar.Date
	TotalClassDays float64
	TotalFTE       float64
	Entries        map[string]*LedgerEntry
}

// Score computes the fairness score for one entry, bounded to [0, 100].
// Over-assignment is penalized progressively, under-assignment linearly
// and more mildly.
func (l *ClassLedger) Score(employeeID string) float64 {
	e, ok := l.Entries[employeeID]
	if !ok {
		return 0
	}
	return fairnessScore(e.Assigned, e.Expected)
}

func fairnessScore(assigned, expected float64) float64 {
	deviation := (assigned - expected) / math.Max(expected, fairnessEpsilon)
	var score float64
	if deviation >= 0 {
		score = 100 - math.Min(100, math.Pow(deviation, 1.5)*75)
	} else {
		score = 100 - math.Min(100, -deviation*60)
	}
	return math.Max(0, math.Min(100, score))
}

// headroom scores how much of the expected load would remain unfilled
// after granting addDays more class-days. Candidates that would
// overshoot their expected load score negative on the over-assignment
// curve, so anyone still under target outranks them.
func headroom(assigned, expected, addDays float64) float64 {
	deviation := (assigned + addDays - expected) / math.Max(expected, fairnessEpsilon)
	if deviation >= 0 {
		return -math.Min(100, math.Pow(deviation, 1.5)*75)
	}
	return math.Min(100, -deviation*100)
}

// Stddev returns the population standard deviation of scores across all
// eligible employees, with employeeID's assigned count incremented by
// addDays (zero projects the current state).
func (l *ClassLedger) Stddev(employeeID string, addDays float64) float64 {
	if len(l.Entries) == 0 {
		return 0
	}
	var scores []float64
	for id, e := range l.Entries {
		assigned := e.Assigned
		if id == employeeID {
			assigned += addDays
		}
		scores = append(scores, fairnessScore(assigned, e.Expected))
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	return math.Sqrt(variance / float64(len(scores)))
}

// Rank computes the composite selection rank for assigning addDays more
// class-days to the employee. Higher is better. The headroom term keeps
// relative expected load in play even when nobody has assignments yet:
// on an empty ledger a full-time employee outranks a part-time one, and
// among equal loads the less-assigned employee wins.
func (l *ClassLedger) Rank(employeeID string, addDays float64) float64 {
	e, ok := l.Entries[employeeID]
	if !ok {
		return 0
	}
	room := headroom(e.Assigned, e.Expected, addDays)
	spread := 100 - math.Min(100, l.Stddev(employeeID, addDays))
	underLoad := 100 * clamp((e.Expected-e.Assigned)/math.Max(e.Expected, fairnessEpsilon), 0, 1)
	return weightHeadroom*room + weightSpread*spread + weightUnderLoad*underLoad
}

// Select picks the candidate with the highest composite rank, assuming
// the assignment adds addDays class-days. Ties break on lower current
// assigned count, then lower employee id. Deterministic for the same
// inputs.
func (l *ClassLedger) Select(candidates []domain.Employee, addDays float64) *domain.Employee {
	if len(candidates) == 0 {
		return nil
	}

	sorted := append([]domain.Employee(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var best *domain.Employee
	var bestRank float64
	for i := range sorted {
		c := &sorted[i]
		entry, ok := l.Entries[c.ID]
		if !ok {
			continue
		}
		rank := l.Rank(c.ID, addDays)
		if best == nil {
			best, bestRank = c, rank
			continue
		}
		if rank > bestRank {
			best, bestRank = c, rank
			continue
		}
		if rank == bestRank {
			bestEntry := l.Entries[best.ID]
			if entry.Assigned < bestEntry.Assigned ||
				(entry.Assigned == bestEntry.Assigned && c.ID < best.ID) {
				best, bestRank = c, rank
			}
		}
	}
	return best
}

// Record notes an assignment of addDays class-days so that subsequent
// selections within the same run see the updated state.
func (l *ClassLedger) Record(employeeID string, addDays float64) {
	if e, ok := l.Entries[employeeID]; ok {
		e.Assigned += addDays
	}
}

// FairnessEngine builds class ledgers from the store.
type FairnessEngine struct {
	store Store
	cal   *calendar.Calendar
	cfg   *config.SchedulingConfig
	log   *logger.Logger
}

// NewFairnessEngine creates a fairness engine.
func NewFairnessEngine(store Store, cal *calendar.Calendar, cfg *config.SchedulingConfig, log *logger.Logger) *FairnessEngine {
	return &FairnessEngine{store: store, cal: cal, cfg: cfg, log: log}
}

// Ledger builds the fairness ledger for a class over [start, end]
// inclusive, restricted to one team when teamID is non-nil. The window
// defaults to the rolling year containing the target date when callers
// pass WindowFor's result.
func (f *FairnessEngine) Ledger(ctx context.Context, class domain.ShiftClass, start, end calendar.Date, teamID *string) (*ClassLedger, error) {
	var eligible []domain.Employee
	var err error
	if teamID != nil {
		eligible, err = f.store.Employees().ListByTeam(ctx, *teamID)
	} else {
		eligible, err = f.store.Employees().ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	ledger := &ClassLedger{
		Class:       class,
		WindowStart: start,
		WindowEnd:   end,
		Entries:     map[string]*LedgerEntry{},
	}

	for i := range eligible {
		e := &eligible[i]
		if !e.Active || !e.AvailableFor(class) {
			continue
		}
		ledger.Entries[e.ID] = &LedgerEntry{Employee: e}
		ledger.TotalFTE += e.FTE
	}

	ledger.TotalClassDays = f.classDaysInWindow(class, start, end)

	for id, entry := range ledger.Entries {
		if ledger.TotalFTE > 0 {
			entry.Expected = ledger.TotalClassDays * entry.Employee.FTE / ledger.TotalFTE
		}
		assigned, err := f.assignedDays(ctx, id, class, start, end)
		if err != nil {
			return nil, err
		}
		entry.Assigned = assigned
	}

	return ledger, nil
}

// WindowFor returns the default fairness window: the rolling period of
// fairness_window_days ending on the target date.
func (f *FairnessEngine) WindowFor(target calendar.Date) (calendar.Date, calendar.Date) {
	days := f.cfg.FairnessWindowDays
	if days <= 0 {
		days = 365
	}
	return target.AddDays(-(days - 1)), target
}

// classDaysInWindow counts schedulable class-days: weekdays for
// incidents, changes, and project work; every calendar day for
// waakdienst.
func (f *FairnessEngine) classDaysInWindow(class domain.ShiftClass, start, end calendar.Date) float64 {
	total := 0
	for _, d := range calendar.DatesBetween(start, end) {
		if class == domain.ClassWaakdienst || !f.cal.IsWeekend(d) {
			total++
		}
	}
	return float64(total)
}

// assignedDays counts distinct civil dates of non-cancelled shifts of the
// class assigned to the employee within the window. Incidents, changes,
// and project shifts count weekdays only; waakdienst counts every
// covered day. Cancelled shifts never count, replaced or not.
func (f *FairnessEngine) assignedDays(ctx context.Context, employeeID string, class domain.ShiftClass, start, end calendar.Date) (float64, error) {
	loc := f.cal.Location()
	shifts, err := f.store.Shifts().ListRange(ctx, ShiftFilter{
		EmployeeID: &employeeID,
		Class:      &class,
		From:       start.Time(loc),
		To:         end.AddDays(1).Time(loc),
		Statuses:   countedStatuses,
	})
	if err != nil {
		return 0, err
	}

	seen := map[calendar.Date]bool{}
	for i := range shifts {
		for _, d := range shifts[i].CoveredDates(loc) {
			if d.Before(start) || d.After(end) {
				continue
			}
			if class != domain.ClassWaakdienst && f.cal.IsWeekend(d) {
				continue
			}
			seen[d] = true
		}
	}
	return float64(len(seen)), nil
}

// DaysForAssignment returns how many class-days one generated assignment
// adds: five weekdays for an incidents week, seven calendar days for a
// waakdienst week, one day otherwise.
func DaysForAssignment(class domain.ShiftClass) float64 {
	switch class {
	case domain.ClassIncidents:
		return 5
	case domain.ClassWaakdienst:
		return 7
	default:
		return 1
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
