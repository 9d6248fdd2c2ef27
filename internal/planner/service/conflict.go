package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// ConflictKind identifies a category of scheduling conflict.
type ConflictKind string

const (
	ConflictDoubleBooking ConflictKind = "double_booking"
	ConflictLeave         ConflictKind = "leave_conflict"
	ConflictOverWeek      ConflictKind = "over_scheduled_week"
	ConflictOverMonth     ConflictKind = "over_scheduled_month"
	ConflictSkillMismatch ConflictKind = "skill_mismatch"
)

// Severity ranks a conflict.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// conflictKindOrder fixes the emission order so reports are deterministic
// regardless of query enumeration order.
var conflictKindOrder = map[ConflictKind]int{
	ConflictDoubleBooking: 0,
	ConflictLeave:         1,
	ConflictOverWeek:      2,
	ConflictOverMonth:     3,
	ConflictSkillMismatch: 4,
}

// Conflict describes one detected problem on a shift.
type Conflict struct {
	Kind               ConflictKind `json:"kind"`
	Severity           Severity     `json:"severity"`
	Message            string       `json:"message"`
	ShiftID            string       `json:"shift_id"`
	EmployeeID         string       `json:"employee_id"`
	ConflictingShiftID *string      `json:"conflicting_shift_id,omitempty"`
	LeaveID            *string      `json:"leave_id,omitempty"`
	OverlapHours       float64      `json:"overlap_hours,omitempty"`
	Hours              float64      `json:"hours,omitempty"`
	Limit              float64      `json:"limit,omitempty"`
}

// TeamDayConflict lists other team members already on approved leave for
// one calendar date.
type TeamDayConflict struct {
	Date        string   `json:"date"`
	Count       int      `json:"count"`
	EmployeeIDs []string `json:"employee_ids"`
}

// DayStaffing is the staffing outlook for one calendar date.
type DayStaffing struct {
	Date           string `json:"date"`
	AvailableStaff int    `json:"available_staff"`
	Understaffed   bool   `json:"understaffed"`
	Warning        bool   `json:"warning"`
}

// LeaveConflictReport is the result of checking a prospective leave range.
// PersonalOverlaps and ShiftConflicts non-empty mean BLOCKING; the rest
// are warnings the caller may acknowledge.
type LeaveConflictReport struct {
	PersonalOverlaps   []domain.LeaveRequest `json:"personal_overlaps"`
	ShiftConflicts     []domain.Shift        `json:"shift_conflicts"`
	TeamConflictsByDay []TeamDayConflict     `json:"team_conflicts_by_day"`
	StaffingAnalysis   []DayStaffing         `json:"staffing_analysis"`
}

// Blocking reports whether the leave cannot be submitted as requested.
func (r *LeaveConflictReport) Blocking() bool {
	return len(r.PersonalOverlaps) > 0 || len(r.ShiftConflicts) > 0
}

// HasWarnings reports whether advisory conflicts exist.
func (r *LeaveConflictReport) HasWarnings() bool {
	if len(r.TeamConflictsByDay) > 0 {
		return true
	}
	for _, s := range r.StaffingAnalysis {
		if s.Understaffed || s.Warning {
			return true
		}
	}
	return false
}

// LeaveSuggestion is one alternative leave window, lower score is better.
type LeaveSuggestion struct {
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Score      int    `json:"score"`
	DaysOffset int    `json:"days_offset"`
}

// DayAvailability is one cell of the availability matrix.
type DayAvailability string

const (
	Available   DayAvailability = "available"
	Partial     DayAvailability = "partial"
	Unavailable DayAvailability = "unavailable"
)

// ConflictService is the stateless query layer for overlap, staffing,
// hour-limit, and skill conflicts.
type ConflictService struct {
	store Store
	clock calendar.Clock
	cal   *calendar.Calendar
	cfg   *config.SchedulingConfig
	log   *logger.Logger
}

// NewConflictService creates a conflict service.
func NewConflictService(store Store, clock calendar.Clock, cal *calendar.Calendar, cfg *config.SchedulingConfig, log *logger.Logger) *ConflictService {
	return &ConflictService{store: store, clock: clock, cal: cal, cfg: cfg, log: log}
}

var countedStatuses = []domain.ShiftStatus{
	domain.ShiftScheduled, domain.ShiftConfirmed, domain.ShiftInProgress, domain.ShiftCompleted,
}

// DetectShiftConflicts evaluates every shift in [from, to) (optionally
// restricted to one employee) and returns conflicts keyed by shift id.
func (s *ConflictService) DetectShiftConflicts(ctx context.Context, from, to time.Time, employeeID *string) (map[string][]Conflict, error) {
	shifts, err := s.store.Shifts().ListRange(ctx, ShiftFilter{
		EmployeeID: employeeID,
		From:       from,
		To:         to,
		Statuses:   countedStatuses,
	})
	if err != nil {
		return nil, err
	}

	employees := map[string]*domain.Employee{}
	templates := map[string]*domain.ShiftTemplate{}

	result := make(map[string][]Conflict)
	for i := range shifts {
		shift := &shifts[i]
		conflicts, err := s.conflictsForShift(ctx, shift, employees, templates)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			result[shift.ID] = conflicts
		}
	}
	return result, nil
}

// ConflictsForShift evaluates a single shift. Used by the orchestrator
// and bulk operations before writing.
func (s *ConflictService) ConflictsForShift(ctx context.Context, shift *domain.Shift) ([]Conflict, error) {
	return s.conflictsForShift(ctx, shift, map[string]*domain.Employee{}, map[string]*domain.ShiftTemplate{})
}

func (s *ConflictService) conflictsForShift(ctx context.Context, shift *domain.Shift, employees map[string]*domain.Employee, templates map[string]*domain.ShiftTemplate) ([]Conflict, error) {
	var conflicts []Conflict

	// Double booking
	var exclude *string
	if shift.ID != "" {
		exclude = &shift.ID
	}
	overlapping, err := s.store.Shifts().FindOverlapping(ctx, shift.EmployeeID, shift.Start, shift.End, exclude)
	if err != nil {
		return nil, err
	}
	sort.Slice(overlapping, func(i, j int) bool { return overlapping[i].ID < overlapping[j].ID })
	for i := range overlapping {
		other := overlapping[i]
		overlap := overlapHours(shift.Start, shift.End, other.Start, other.End)
		conflicts = append(conflicts, Conflict{
			Kind:               ConflictDoubleBooking,
			Severity:           SeverityHigh,
			Message:            fmt.Sprintf("overlaps shift %s by %.1f hours", other.ID, overlap),
			ShiftID:            shift.ID,
			EmployeeID:         shift.EmployeeID,
			ConflictingShiftID: &other.ID,
			OverlapHours:       overlap,
		})
	}

	// Approved leave covering the shift
	dates := shift.CoveredDates(s.cal.Location())
	if len(dates) > 0 {
		leaves, err := s.store.Leaves().ListIntersecting(ctx, LeaveFilter{
			EmployeeID: &shift.EmployeeID,
			Start:      dates[0].Time(time.UTC),
			End:        dates[len(dates)-1].Time(time.UTC),
			Statuses:   []domain.LeaveStatus{domain.LeaveApproved},
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(leaves, func(i, j int) bool { return leaves[i].ID < leaves[j].ID })
		for i := range leaves {
			leave := leaves[i]
			sev := SeverityMedium
			if leave.LeaveType.IsUrgent() {
				sev = SeverityHigh
			}
			conflicts = append(conflicts, Conflict{
				Kind:       ConflictLeave,
				Severity:   sev,
				Message:    fmt.Sprintf("assignee on approved %s leave %s..%s", leave.LeaveType, leave.StartCivil(), leave.EndCivil()),
				ShiftID:    shift.ID,
				EmployeeID: shift.EmployeeID,
				LeaveID:    &leave.ID,
			})
		}
	}

	// Weekly hour cap over the ISO week containing the shift start
	weekStart := calendar.DateOf(shift.Start, s.cal.Location()).MondayOfWeek()
	weekHours, err := s.store.Shifts().HoursInRange(ctx, shift.EmployeeID,
		weekStart.Time(s.cal.Location()), weekStart.AddDays(7).Time(s.cal.Location()))
	if err != nil {
		return nil, err
	}
	if weekHours > s.cfg.MaxWeeklyHours {
		conflicts = append(conflicts, Conflict{
			Kind:       ConflictOverWeek,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("%.1f hours scheduled in week of %s exceeds %.0f", weekHours, weekStart, s.cfg.MaxWeeklyHours),
			ShiftID:    shift.ID,
			EmployeeID: shift.EmployeeID,
			Hours:      weekHours,
			Limit:      s.cfg.MaxWeeklyHours,
		})
	}

	// Monthly hour cap over the calendar month containing the shift start
	local := shift.Start.In(s.cal.Location())
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.cal.Location())
	monthHours, err := s.store.Shifts().HoursInRange(ctx, shift.EmployeeID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	if monthHours > s.cfg.MaxMonthlyHours {
		conflicts = append(conflicts, Conflict{
			Kind:       ConflictOverMonth,
			Severity:   SeverityLow,
			Message:    fmt.Sprintf("%.1f hours scheduled in %s exceeds %.0f", monthHours, monthStart.Format("2006-01"), s.cfg.MaxMonthlyHours),
			ShiftID:    shift.ID,
			EmployeeID: shift.EmployeeID,
			Hours:      monthHours,
			Limit:      s.cfg.MaxMonthlyHours,
		})
	}

	// Skill mismatch against the template's required skills
	emp, err := s.cachedEmployee(ctx, shift.EmployeeID, employees)
	if err != nil {
		return nil, err
	}
	tpl, err := s.cachedTemplate(ctx, shift.TemplateID, templates)
	if err != nil {
		return nil, err
	}
	if tpl != nil && len(tpl.RequiredSkills) > 0 && !emp.HasSkills(tpl.RequiredSkills) {
		conflicts = append(conflicts, Conflict{
			Kind:       ConflictSkillMismatch,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("assignee lacks required skills for template %s", tpl.Name),
			ShiftID:    shift.ID,
			EmployeeID: shift.EmployeeID,
		})
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflictKindOrder[conflicts[i].Kind] < conflictKindOrder[conflicts[j].Kind]
	})
	return conflicts, nil
}

// HasBlockingConflict reports whether the shift has any HIGH severity
// conflict (double booking or urgent leave overlap).
func (s *ConflictService) HasBlockingConflict(ctx context.Context, shift *domain.Shift) (bool, error) {
	conflicts, err := s.ConflictsForShift(ctx, shift)
	if err != nil {
		return false, err
	}
	for _, c := range conflicts {
		if c.Severity == SeverityHigh {
			return true, nil
		}
	}
	return false, nil
}

// CheckLeaveConflicts evaluates a prospective leave range for the
// employee, both ends inclusive.
func (s *ConflictService) CheckLeaveConflicts(ctx context.Context, employeeID string, start, end calendar.Date, teamID *string) (*LeaveConflictReport, error) {
	report := &LeaveConflictReport{
		PersonalOverlaps:   []domain.LeaveRequest{},
		ShiftConflicts:     []domain.Shift{},
		TeamConflictsByDay: []TeamDayConflict{},
		StaffingAnalysis:   []DayStaffing{},
	}

	// Personal overlaps: other non-rejected leave of the same employee
	personal, err := s.store.Leaves().ListIntersecting(ctx, LeaveFilter{
		EmployeeID: &employeeID,
		Start:      start.Time(time.UTC),
		End:        end.Time(time.UTC),
		Statuses:   []domain.LeaveStatus{domain.LeavePending, domain.LeaveApproved},
	})
	if err != nil {
		return nil, err
	}
	report.PersonalOverlaps = personal

	// Shift conflicts: scheduled or confirmed shifts touching the range
	shifts, err := s.store.Shifts().ListRange(ctx, ShiftFilter{
		EmployeeID: &employeeID,
		From:       start.Time(s.cal.Location()),
		To:         end.AddDays(1).Time(s.cal.Location()),
		Statuses:   []domain.ShiftStatus{domain.ShiftScheduled, domain.ShiftConfirmed},
	})
	if err != nil {
		return nil, err
	}
	report.ShiftConflicts = shifts

	if teamID == nil {
		return report, nil
	}

	members, err := s.store.Employees().ListByTeam(ctx, *teamID)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	teamLeaves, err := s.store.Leaves().ListIntersecting(ctx, LeaveFilter{
		TeamID:   teamID,
		Start:    start.Time(time.UTC),
		End:      end.Time(time.UTC),
		Statuses: []domain.LeaveStatus{domain.LeaveApproved},
	})
	if err != nil {
		return nil, err
	}

	teamShifts, err := s.store.Shifts().ListRange(ctx, ShiftFilter{
		TeamID:   teamID,
		From:     start.Time(s.cal.Location()),
		To:       end.AddDays(1).Time(s.cal.Location()),
		Statuses: countedStatuses,
	})
	if err != nil {
		return nil, err
	}

	for _, day := range calendar.DatesBetween(start, end) {
		onLeave := map[string]bool{}
		var others []string
		for i := range teamLeaves {
			l := &teamLeaves[i]
			if !l.Covers(day) {
				continue
			}
			onLeave[l.EmployeeID] = true
			if l.EmployeeID != employeeID {
				others = append(others, l.EmployeeID)
			}
		}
		sort.Strings(others)
		if len(others) > 0 {
			report.TeamConflictsByDay = append(report.TeamConflictsByDay, TeamDayConflict{
				Date:        day.String(),
				Count:       len(others),
				EmployeeIDs: others,
			})
		}

		onShift := map[string]bool{}
		for i := range teamShifts {
			sh := &teamShifts[i]
			for _, d := range sh.CoveredDates(s.cal.Location()) {
				if d == day {
					onShift[sh.EmployeeID] = true
				}
			}
		}

		available := 0
		for i := range members {
			m := &members[i]
			if !m.Active || onLeave[m.ID] || onShift[m.ID] {
				continue
			}
			available++
		}
		report.StaffingAnalysis = append(report.StaffingAnalysis, DayStaffing{
			Date:           day.String(),
			AvailableStaff: available,
			Understaffed:   available < s.cfg.MinRequiredStaff,
			Warning:        available == s.cfg.MinRequiredStaff,
		})
	}

	return report, nil
}

// SuggestAlternativeLeaveDates proposes up to five alternative start dates
// for a leave of daysRequested length around originalStart. Candidates
// with personal or shift overlaps are discarded; the rest are scored by
// (personal overlaps x 1000) + team conflict days + (understaffed days x 10)
// and ordered ascending, ties broken by distance from the original, then
// by date.
func (s *ConflictService) SuggestAlternativeLeaveDates(ctx context.Context, employeeID string, originalStart calendar.Date, daysRequested int, teamID *string, windowDays int) ([]LeaveSuggestion, error) {
	if daysRequested < 1 {
		daysRequested = 1
	}
	if windowDays <= 0 {
		windowDays = s.cfg.AlternativeSearchWindowDays
	}

	type scored struct {
		start calendar.Date
		score int
	}
	var candidates []scored

	for offset := -windowDays; offset <= windowDays; offset++ {
		if offset == 0 {
			continue
		}
		start := originalStart.AddDays(offset)
		end := start.AddDays(daysRequested - 1)

		report, err := s.CheckLeaveConflicts(ctx, employeeID, start, end, teamID)
		if err != nil {
			return nil, err
		}
		if len(report.PersonalOverlaps) > 0 || len(report.ShiftConflicts) > 0 {
			continue
		}

		understaffed := 0
		for _, d := range report.StaffingAnalysis {
			if d.Understaffed {
				understaffed++
			}
		}
		score := len(report.PersonalOverlaps)*1000 + len(report.TeamConflictsByDay) + understaffed*10
		candidates = append(candidates, scored{start: start, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		di := abs(originalStart.DaysUntil(candidates[i].start))
		dj := abs(originalStart.DaysUntil(candidates[j].start))
		if di != dj {
			return di < dj
		}
		return candidates[i].start.Before(candidates[j].start)
	})

	var out []LeaveSuggestion
	for _, c := range candidates {
		if len(out) == 5 {
			break
		}
		out = append(out, LeaveSuggestion{
			StartDate:  c.start.String(),
			EndDate:    c.start.AddDays(daysRequested - 1).String(),
			Score:      c.score,
			DaysOffset: originalStart.DaysUntil(c.start),
		})
	}
	return out, nil
}

// AvailabilityMatrix classifies each (employee, date) in the window as
// available, partial, or unavailable. A date is unavailable when the
// employee is on approved leave, sits at the daily hour cap, or has a
// high severity conflict on a shift covering that date.
func (s *ConflictService) AvailabilityMatrix(ctx context.Context, start, end calendar.Date, employeeIDs []string) (map[string]map[string]DayAvailability, error) {
	loc := s.cal.Location()
	matrix := make(map[string]map[string]DayAvailability, len(employeeIDs))

	sorted := append([]string(nil), employeeIDs...)
	sort.Strings(sorted)

	partialDaily := s.cfg.MaxDailyHours * s.cfg.PartialAvailabilityThreshold
	partialWeekly := s.cfg.MaxWeeklyHours * s.cfg.PartialAvailabilityThreshold

	for _, empID := range sorted {
		empID := empID
		leaves, err := s.store.Leaves().ListIntersecting(ctx, LeaveFilter{
			EmployeeID: &empID,
			Start:      start.Time(time.UTC),
			End:        end.Time(time.UTC),
			Statuses:   []domain.LeaveStatus{domain.LeavePending, domain.LeaveApproved},
		})
		if err != nil {
			return nil, err
		}

		blocked, err := s.blockedDates(ctx, empID, start, end)
		if err != nil {
			return nil, err
		}

		row := make(map[string]DayAvailability)
		for _, day := range calendar.DatesBetween(start, end) {
			state := Available

			dayHours, err := s.store.Shifts().HoursInRange(ctx, empID, day.Time(loc), day.AddDays(1).Time(loc))
			if err != nil {
				return nil, err
			}
			weekStart := day.MondayOfWeek()
			weekHours, err := s.store.Shifts().HoursInRange(ctx, empID, weekStart.Time(loc), weekStart.AddDays(7).Time(loc))
			if err != nil {
				return nil, err
			}

			onApprovedLeave := false
			pendingLeave := false
			for i := range leaves {
				if !leaves[i].Covers(day) {
					continue
				}
				switch leaves[i].Status {
				case domain.LeaveApproved:
					onApprovedLeave = true
				case domain.LeavePending:
					pendingLeave = true
				}
			}

			switch {
			case onApprovedLeave || blocked[day] || dayHours >= s.cfg.MaxDailyHours:
				state = Unavailable
			case dayHours >= partialDaily || weekHours >= partialWeekly || pendingLeave:
				state = Partial
			}
			row[day.String()] = state
		}
		matrix[empID] = row
	}
	return matrix, nil
}

// blockedDates returns the civil dates covered by the employee's shifts
// that carry a high severity conflict inside [start, end].
func (s *ConflictService) blockedDates(ctx context.Context, employeeID string, start, end calendar.Date) (map[calendar.Date]bool, error) {
	loc := s.cal.Location()
	conflictsByShift, err := s.DetectShiftConflicts(ctx, start.Time(loc), end.AddDays(1).Time(loc), &employeeID)
	if err != nil {
		return nil, err
	}
	blocked := map[calendar.Date]bool{}
	if len(conflictsByShift) == 0 {
		return blocked, nil
	}

	shifts, err := s.store.Shifts().ListRange(ctx, ShiftFilter{
		EmployeeID: &employeeID,
		From:       start.Time(loc),
		To:         end.AddDays(1).Time(loc),
		Statuses:   countedStatuses,
	})
	if err != nil {
		return nil, err
	}
	for i := range shifts {
		sh := &shifts[i]
		high := false
		for _, c := range conflictsByShift[sh.ID] {
			if c.Severity == SeverityHigh {
				high = true
				break
			}
		}
		if !high {
			continue
		}
		for _, d := range sh.CoveredDates(loc) {
			blocked[d] = true
		}
	}
	return blocked, nil
}

func (s *ConflictService) cachedEmployee(ctx context.Context, id string, cache map[string]*domain.Employee) (*domain.Employee, error) {
	if e, ok := cache[id]; ok {
		return e, nil
	}
	e, err := s.store.Employees().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = e
	return e, nil
}

func (s *ConflictService) cachedTemplate(ctx context.Context, id string, cache map[string]*domain.ShiftTemplate) (*domain.ShiftTemplate, error) {
	if id == "" {
		return nil, nil
	}
	if t, ok := cache[id]; ok {
		return t, nil
	}
	t, err := s.store.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = t
	return t, nil
}

func overlapHours(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
