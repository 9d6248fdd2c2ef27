package service

import (
	"context"
	"fmt"
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

// CreatePatternRequest is the input to pattern creation.
type CreatePatternRequest struct {
	TemplateID string                `json:"template_id" validate:"required,uuid"`
	Kind       domain.RecurrenceKind `json:"kind" validate:"required,oneof=daily weekly biweekly monthly"`
	StartTime  string                `json:"start_time" validate:"required"`
	EndTime    string                `json:"end_time" validate:"required"`
	Weekdays   []int                 `json:"weekdays,omitempty"`
	DayOfMonth *int                  `json:"day_of_month,omitempty"`
	Start      string                `json:"pattern_start" validate:"required"`
	End        *string               `json:"pattern_end,omitempty"`
	EmployeeID *string               `json:"employee_id,omitempty"`
	TeamID     *string               `json:"team_id,omitempty"`
}

// PatternReport is the outcome of generating (or previewing) a pattern
// against a horizon.
type PatternReport struct {
	PatternID string     `json:"pattern_id"`
	Horizon   string     `json:"horizon"`
	Created   []ShiftRef `json:"created"`
	Skipped   int        `json:"skipped"`
	Applied   bool       `json:"applied"`
}

// PatternService creates recurring shift patterns and expands them into
// shifts. Generation is idempotent: dates already covered by a matching
// non-cancelled shift are skipped.
type PatternService struct {
	store  Store
	clock  calendar.Clock
	cal    *calendar.Calendar
	cfg    *config.SchedulingConfig
	perms  permissions.Checker
	events EventPublisher
	log    *logger.Logger
}

// NewPatternService creates a pattern service.
func NewPatternService(store Store, clock calendar.Clock, cal *calendar.Calendar, cfg *config.SchedulingConfig, perms permissions.Checker, events EventPublisher, log *logger.Logger) *PatternService {
	return &PatternService{store: store, clock: clock, cal: cal, cfg: cfg, perms: perms, events: events, log: log}
}

// Create persists a new pattern owned by the acting user.
func (s *PatternService) Create(ctx context.Context, a *actor.Actor, req *CreatePatternRequest) (*domain.RecurringShiftPattern, error) {
	if !s.perms.Has(a, permissions.ManagePatterns) {
		return nil, errors.PermissionDenied(permissions.ManagePatterns)
	}

	if _, err := s.store.Templates().GetByID(ctx, req.TemplateID); err != nil {
		return nil, err
	}
	start, err := calendar.ParseDate(req.Start)
	if err != nil {
		return nil, errors.BadRequest("invalid pattern_start")
	}

	p := &domain.RecurringShiftPattern{
		ID:           uuid.New().String(),
		TemplateID:   req.TemplateID,
		Kind:         req.Kind,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		DayOfMonth:   req.DayOfMonth,
		PatternStart: start.Time(time.UTC),
		EmployeeID:   req.EmployeeID,
		TeamID:       req.TeamID,
		Active:       true,
		CreatedBy:    a.ID,
	}
	for _, wd := range req.Weekdays {
		if wd < 0 || wd > 6 {
			return nil, errors.BadRequest(fmt.Sprintf("invalid weekday %d", wd))
		}
		p.Weekdays = append(p.Weekdays, int64(wd))
	}
	if req.End != nil {
		end, err := calendar.ParseDate(*req.End)
		if err != nil {
			return nil, errors.BadRequest("invalid pattern_end")
		}
		if end.Before(start) {
			return nil, errors.BadRequest("pattern_end must not precede pattern_start")
		}
		t := end.Time(time.UTC)
		p.PatternEnd = &t
	}

	switch req.Kind {
	case domain.RecurWeekly, domain.RecurBiweekly:
		if len(p.Weekdays) == 0 {
			return nil, errors.BadRequest("weekly patterns require a weekday set")
		}
	case domain.RecurMonthly:
		if p.DayOfMonth == nil || *p.DayOfMonth < 1 || *p.DayOfMonth > 31 {
			return nil, errors.BadRequest("monthly patterns require day_of_month in 1..31")
		}
	}
	if p.EmployeeID == nil && p.TeamID == nil {
		return nil, errors.BadRequest("pattern requires an employee or a team")
	}
	if p.EmployeeID != nil {
		if _, err := s.store.Employees().GetByID(ctx, *p.EmployeeID); err != nil {
			return nil, err
		}
	}

	if err := s.store.Patterns().Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("pattern_id", p.ID).Str("kind", string(p.Kind)).Msg("recurring pattern created")
	return p, nil
}

// Preview expands the pattern to the horizon without writing.
func (s *PatternService) Preview(ctx context.Context, a *actor.Actor, patternID string, horizon calendar.Date) (*PatternReport, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	p, err := s.store.Patterns().GetByID(ctx, patternID)
	if err != nil {
		return nil, err
	}
	report, _, err := s.plan(ctx, s.store, p, horizon)
	return report, err
}

// Generate expands the pattern to the horizon and persists the missing
// shifts atomically, then advances last_generated_through.
func (s *PatternService) Generate(ctx context.Context, a *actor.Actor, patternID string, horizon calendar.Date) (*PatternReport, error) {
	if !s.perms.Has(a, permissions.GeneratePatterns) {
		return nil, errors.PermissionDenied(permissions.GeneratePatterns)
	}

	var report *PatternReport
	err := s.store.Atomically(ctx, func(tx Store) error {
		p, err := tx.Patterns().GetByID(ctx, patternID)
		if err != nil {
			return err
		}
		if !p.Active {
			return errors.BadRequest("pattern is inactive")
		}

		var planned []domain.Shift
		report, planned, err = s.plan(ctx, tx, p, horizon)
		if err != nil {
			return err
		}
		for i := range planned {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tx.Shifts().Create(ctx, &planned[i]); err != nil {
				return err
			}
			report.Created[i].ID = planned[i].ID
		}
		if len(planned) > 0 {
			if err := tx.Templates().IncrementUsage(ctx, p.TemplateID, len(planned)); err != nil {
				return err
			}
		}

		through := horizon.Time(time.UTC)
		if p.LastGeneratedThrough == nil || p.LastGeneratedThrough.Before(through) {
			p.LastGeneratedThrough = &through
			if err := tx.Patterns().Update(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.Applied = true

	for _, ref := range report.Created {
		if err := s.events.Publish(ctx, messaging.EventShiftAssigned, messaging.ShiftAssignedEvent{
			ShiftID:    ref.ID,
			EmployeeID: ref.EmployeeID,
			Class:      string(ref.Class),
			Start:      ref.Start,
			End:        ref.End,
			Auto:       true,
		}); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish shift assigned event")
		}
	}
	return report, nil
}

// BulkGenerate runs Generate for every active pattern against the same
// horizon. Patterns fail independently; a per-pattern error is reported,
// not fatal to the batch.
func (s *PatternService) BulkGenerate(ctx context.Context, a *actor.Actor, horizon calendar.Date) ([]PatternReport, error) {
	if !s.perms.Has(a, permissions.GeneratePatterns) {
		return nil, errors.PermissionDenied(permissions.GeneratePatterns)
	}
	patterns, err := s.store.Patterns().ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var reports []PatternReport
	for i := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, err := s.Generate(ctx, a, patterns[i].ID, horizon)
		if err != nil {
			s.log.Error().Err(err).Str("pattern_id", patterns[i].ID).Msg("pattern generation failed")
			continue
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// plan computes the shifts the pattern would add up to the horizon.
func (s *PatternService) plan(ctx context.Context, st Store, p *domain.RecurringShiftPattern, horizon calendar.Date) (*PatternReport, []domain.Shift, error) {
	if horizon.IsZero() {
		return nil, nil, errors.BadRequest("horizon is required")
	}
	tpl, err := st.Templates().GetByID(ctx, p.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	report := &PatternReport{PatternID: p.ID, Horizon: horizon.String(), Created: []ShiftRef{}}
	loc := s.cal.Location()

	end := horizon
	if p.PatternEnd != nil {
		pe := calendar.DateOf(*p.PatternEnd, time.UTC)
		if pe.Before(end) {
			end = pe
		}
	}
	start := calendar.DateOf(p.PatternStart, time.UTC)
	if end.Before(start) {
		return report, nil, nil
	}

	sh, sm := parseTimeOfDay(p.StartTime, 8, 0)
	eh, em := parseTimeOfDay(p.EndTime, 17, 0)

	var planned []domain.Shift
	for _, day := range s.emitDates(p, start, end) {
		ivStart := day.At(sh, sm, loc)
		ivEnd := day.At(eh, em, loc)
		if !ivEnd.After(ivStart) {
			ivEnd = day.AddDays(1).At(eh, em, loc) // overnight
		}

		employeeID, err := s.assigneeFor(ctx, st, p, day, ivStart, ivEnd, tpl)
		if err != nil {
			return nil, nil, err
		}
		if employeeID == "" {
			report.Skipped++
			continue
		}

		covered, err := s.alreadyCovered(ctx, st, p, employeeID, ivStart, ivEnd, planned)
		if err != nil {
			return nil, nil, err
		}
		if covered {
			report.Skipped++
			continue
		}

		reason := fmt.Sprintf("recurring pattern %s", p.ID)
		shift := domain.Shift{
			ID:           uuid.New().String(),
			TemplateID:   p.TemplateID,
			EmployeeID:   employeeID,
			TeamID:       p.TeamID,
			Class:        tpl.Class,
			Start:        ivStart,
			End:          ivEnd,
			Status:       domain.ShiftScheduled,
			AutoAssigned: true,
			Reason:       &reason,
			Version:      1,
		}
		planned = append(planned, shift)
		report.Created = append(report.Created, ShiftRef{
			TemplateID:    p.TemplateID,
			EmployeeID:    employeeID,
			Class:         tpl.Class,
			Start:         ivStart,
			End:           ivEnd,
			DurationHours: shift.DurationHours(),
			Reason:        reason,
		})
	}
	return report, planned, nil
}

// emitDates enumerates the pattern's dates in [start, end] inclusive.
func (s *PatternService) emitDates(p *domain.RecurringShiftPattern, start, end calendar.Date) []calendar.Date {
	var out []calendar.Date
	switch p.Kind {
	case domain.RecurDaily:
		out = calendar.DatesBetween(start, end)

	case domain.RecurWeekly:
		for _, d := range calendar.DatesBetween(start, end) {
			if p.OnWeekday(d.Weekday()) {
				out = append(out, d)
			}
		}

	case domain.RecurBiweekly:
		anchor := start.MondayOfWeek()
		for _, d := range calendar.DatesBetween(start, end) {
			if !p.OnWeekday(d.Weekday()) {
				continue
			}
			weeks := anchor.DaysUntil(d.MondayOfWeek()) / 7
			if weeks%2 == 0 {
				out = append(out, d)
			}
		}

	case domain.RecurMonthly:
		dom := *p.DayOfMonth
		for y, m := start.Year, start.Month; ; {
			// Months lacking the day (e.g. Feb 31) are skipped.
			if validDayOfMonth(y, m, dom) {
				candidate := calendar.Date{Year: y, Month: m, Day: dom}
				if !candidate.Before(start) && !candidate.After(end) {
					out = append(out, candidate)
				}
			}
			m++
			if m > 12 {
				m = 1
				y++
			}
			if (calendar.Date{Year: y, Month: m, Day: 1}).After(end) {
				break
			}
		}
	}
	return out
}

func validDayOfMonth(year int, month time.Month, day int) bool {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Month() == month && t.Day() == day
}

// assigneeFor resolves the employee for one emitted date: the pattern's
// fixed employee, or a fairness pick from the pattern's team.
func (s *PatternService) assigneeFor(ctx context.Context, st Store, p *domain.RecurringShiftPattern, day calendar.Date, ivStart, ivEnd time.Time, tpl *domain.ShiftTemplate) (string, error) {
	if p.EmployeeID != nil {
		return *p.EmployeeID, nil
	}

	fairness := NewFairnessEngine(st, s.cal, s.cfg, s.log)
	fairStart, fairEnd := fairness.WindowFor(day)
	ledger, err := fairness.Ledger(ctx, tpl.Class, fairStart, fairEnd, p.TeamID)
	if err != nil {
		return "", err
	}

	members, err := st.Employees().ListByTeam(ctx, *p.TeamID)
	if err != nil {
		return "", err
	}
	var candidates []domain.Employee
	for i := range members {
		e := members[i]
		if !e.Active || !e.AvailableFor(tpl.Class) {
			continue
		}
		overlapping, err := st.Shifts().FindOverlapping(ctx, e.ID, ivStart, ivEnd, nil)
		if err != nil {
			return "", err
		}
		if len(overlapping) == 0 {
			candidates = append(candidates, e)
		}
	}
	pick := ledger.Select(candidates, 1)
	if pick == nil {
		return "", nil
	}
	return pick.ID, nil
}

// alreadyCovered reports whether a non-cancelled shift for the pattern's
// template and assignee already occupies the interval, in the store or
// earlier in this run.
func (s *PatternService) alreadyCovered(ctx context.Context, st Store, p *domain.RecurringShiftPattern, employeeID string, ivStart, ivEnd time.Time, planned []domain.Shift) (bool, error) {
	existing, err := st.Shifts().ListRange(ctx, ShiftFilter{
		EmployeeID: &employeeID,
		TemplateID: &p.TemplateID,
		From:       ivStart,
		To:         ivEnd,
		Statuses:   countedStatuses,
	})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return true, nil
	}
	for i := range planned {
		if planned[i].EmployeeID == employeeID && planned[i].TemplateID == p.TemplateID &&
			planned[i].OverlapsInterval(ivStart, ivEnd) {
			return true, nil
		}
	}
	return false, nil
}
