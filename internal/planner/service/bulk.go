package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

// BulkCreateRequest creates one shift per date from a template.
type BulkCreateRequest struct {
	TemplateID string   `json:"template_id" validate:"required,uuid"`
	EmployeeID string   `json:"employee_id" validate:"required,uuid"`
	Dates      []string `json:"dates" validate:"required,min=1"`
	StartTime  *string  `json:"start_time,omitempty"` // HH:MM override
	EndTime    *string  `json:"end_time,omitempty"`
	DryRun     bool     `json:"dry_run"`
}

// BulkAssignRequest reassigns a set of shifts to one employee.
type BulkAssignRequest struct {
	ShiftIDs   []string `json:"shift_ids" validate:"required,min=1"`
	EmployeeID string   `json:"employee_id" validate:"required,uuid"`
	DryRun     bool     `json:"dry_run"`
}

// BulkModifyTimesRequest rewrites shift times, either setting a new
// time-of-day or offsetting by minutes.
type BulkModifyTimesRequest struct {
	ShiftIDs      []string `json:"shift_ids" validate:"required,min=1"`
	Mode          string   `json:"mode" validate:"required,oneof=set offset"`
	StartTime     *string  `json:"start_time,omitempty"` // HH:MM, mode=set
	EndTime       *string  `json:"end_time,omitempty"`
	OffsetMinutes int      `json:"offset_minutes,omitempty"` // mode=offset
	DryRun        bool     `json:"dry_run"`
}

// BulkDeleteRequest cancels a set of shifts. Force bypasses the
// double-booking and status checks, except completed shifts, which are
// always refused.
type BulkDeleteRequest struct {
	ShiftIDs []string `json:"shift_ids" validate:"required,min=1"`
	Force    bool     `json:"force"`
	DryRun   bool     `json:"dry_run"`
}

// BulkReport is the prospective or applied effect of a bulk operation.
type BulkReport struct {
	Affected  []ShiftRef `json:"affected"`
	Conflicts []Conflict `json:"conflicts"`
	DryRun    bool       `json:"dry_run"`
}

// BulkService applies multi-shift mutations. Every operation supports
// dry_run, returning the prospective effect and conflict set without
// writing; applied runs are atomic.
type BulkService struct {
	store     Store
	clock     calendar.Clock
	cal       *calendar.Calendar
	conflicts *ConflictService
	perms     permissions.Checker
	events    EventPublisher
	log       *logger.Logger
}

// NewBulkService creates a bulk service.
func NewBulkService(store Store, clock calendar.Clock, cal *calendar.Calendar, conflicts *ConflictService, perms permissions.Checker, events EventPublisher, log *logger.Logger) *BulkService {
	return &BulkService{store: store, clock: clock, cal: cal, conflicts: conflicts, perms: perms, events: events, log: log}
}

// CreateFromTemplate creates one shift per requested date.
func (s *BulkService) CreateFromTemplate(ctx context.Context, a *actor.Actor, req *BulkCreateRequest) (*BulkReport, error) {
	if !s.perms.Has(a, permissions.BulkEditShifts) {
		return nil, errors.PermissionDenied(permissions.BulkEditShifts)
	}

	report := &BulkReport{Affected: []ShiftRef{}, Conflicts: []Conflict{}, DryRun: req.DryRun}
	err := s.run(ctx, req.DryRun, func(tx Store) error {
		tpl, err := tx.Templates().GetByID(ctx, req.TemplateID)
		if err != nil {
			return err
		}
		if !tpl.Active {
			return errors.BadRequest("template is inactive")
		}
		employee, err := tx.Employees().GetByID(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !employee.Active {
			return errors.BadRequest("employee is inactive")
		}

		startStr, endStr := tpl.StartTime, tpl.EndTime
		if req.StartTime != nil {
			startStr = *req.StartTime
		}
		if req.EndTime != nil {
			endStr = *req.EndTime
		}
		sh, sm := parseTimeOfDay(startStr, 8, 0)
		eh, em := parseTimeOfDay(endStr, 17, 0)
		loc := s.cal.Location()

		conflictSvc := NewConflictService(tx, s.clock, s.cal, s.conflicts.cfg, s.log)
		for _, ds := range req.Dates {
			day, err := calendar.ParseDate(ds)
			if err != nil {
				return errors.BadRequest(fmt.Sprintf("invalid date %q", ds))
			}
			start := day.At(sh, sm, loc)
			end := day.At(eh, em, loc)
			if !end.After(start) {
				end = day.AddDays(1).At(eh, em, loc)
			}

			teamID := employee.TeamID
			shift := domain.Shift{
				ID:         uuid.New().String(),
				TemplateID: tpl.ID,
				EmployeeID: employee.ID,
				TeamID:     teamID,
				Class:      tpl.Class,
				Start:      start,
				End:        end,
				Status:     domain.ShiftScheduled,
				Version:    1,
			}

			found, err := conflictSvc.ConflictsForShift(ctx, &shift)
			if err != nil {
				return err
			}
			report.Conflicts = append(report.Conflicts, found...)
			for _, c := range found {
				if c.Severity == SeverityHigh {
					return errors.ConflictBlocking(fmt.Sprintf("shift on %s: %s", ds, c.Message))
				}
			}

			if !req.DryRun {
				if err := tx.Shifts().Create(ctx, &shift); err != nil {
					return err
				}
			}
			report.Affected = append(report.Affected, ShiftRef{
				ID:            shift.ID,
				TemplateID:    tpl.ID,
				EmployeeID:    employee.ID,
				Class:         tpl.Class,
				Start:         start,
				End:           end,
				DurationHours: shift.DurationHours(),
			})
		}
		if !req.DryRun && len(report.Affected) > 0 {
			return tx.Templates().IncrementUsage(ctx, tpl.ID, len(report.Affected))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		s.publishAssigned(ctx, report.Affected)
	}
	return report, nil
}

// AssignEmployee moves the listed shifts to one employee.
func (s *BulkService) AssignEmployee(ctx context.Context, a *actor.Actor, req *BulkAssignRequest) (*BulkReport, error) {
	if !s.perms.Has(a, permissions.BulkEditShifts) {
		return nil, errors.PermissionDenied(permissions.BulkEditShifts)
	}

	report := &BulkReport{Affected: []ShiftRef{}, Conflicts: []Conflict{}, DryRun: req.DryRun}
	err := s.run(ctx, req.DryRun, func(tx Store) error {
		employee, err := tx.Employees().GetByID(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !employee.Active {
			return errors.BadRequest("employee is inactive")
		}

		conflictSvc := NewConflictService(tx, s.clock, s.cal, s.conflicts.cfg, s.log)
		for _, id := range req.ShiftIDs {
			shift, err := tx.Shifts().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if shift.Status == domain.ShiftCompleted || shift.Status == domain.ShiftCancelled {
				return errors.ConflictBlocking(fmt.Sprintf("shift %s is %s and cannot be reassigned", id, shift.Status))
			}

			prospective := *shift
			prospective.EmployeeID = employee.ID
			found, err := conflictSvc.ConflictsForShift(ctx, &prospective)
			if err != nil {
				return err
			}
			report.Conflicts = append(report.Conflicts, found...)
			for _, c := range found {
				if c.Kind == ConflictDoubleBooking {
					return errors.ConflictBlocking(fmt.Sprintf("shift %s: %s", id, c.Message))
				}
			}

			if !req.DryRun {
				if err := tx.Shifts().Reassign(ctx, shift.ID, employee.ID, shift.Version); err != nil {
					return err
				}
			}
			report.Affected = append(report.Affected, ShiftRef{
				ID:         shift.ID,
				TemplateID: shift.TemplateID,
				EmployeeID: employee.ID,
				Class:      shift.Class,
				Start:      shift.Start,
				End:        shift.End,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		s.publishAssigned(ctx, report.Affected)
	}
	return report, nil
}

// ModifyTimes sets or offsets the times of the listed shifts.
func (s *BulkService) ModifyTimes(ctx context.Context, a *actor.Actor, req *BulkModifyTimesRequest) (*BulkReport, error) {
	if !s.perms.Has(a, permissions.BulkEditShifts) {
		return nil, errors.PermissionDenied(permissions.BulkEditShifts)
	}
	if req.Mode == "set" && req.StartTime == nil && req.EndTime == nil {
		return nil, errors.BadRequest("mode=set requires start_time or end_time")
	}
	if req.Mode == "offset" && req.OffsetMinutes == 0 {
		return nil, errors.BadRequest("mode=offset requires a non-zero offset_minutes")
	}

	report := &BulkReport{Affected: []ShiftRef{}, Conflicts: []Conflict{}, DryRun: req.DryRun}
	err := s.run(ctx, req.DryRun, func(tx Store) error {
		conflictSvc := NewConflictService(tx, s.clock, s.cal, s.conflicts.cfg, s.log)
		loc := s.cal.Location()

		for _, id := range req.ShiftIDs {
			shift, err := tx.Shifts().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if shift.Status == domain.ShiftCompleted || shift.Status == domain.ShiftCancelled {
				return errors.ConflictBlocking(fmt.Sprintf("shift %s is %s and cannot be modified", id, shift.Status))
			}

			newStart, newEnd := shift.Start, shift.End
			switch req.Mode {
			case "set":
				day := calendar.DateOf(shift.Start, loc)
				if req.StartTime != nil {
					h, m := parseTimeOfDay(*req.StartTime, 0, 0)
					newStart = day.At(h, m, loc)
				}
				if req.EndTime != nil {
					h, m := parseTimeOfDay(*req.EndTime, 0, 0)
					newEnd = day.At(h, m, loc)
					if !newEnd.After(newStart) {
						newEnd = day.AddDays(1).At(h, m, loc)
					}
				}
			case "offset":
				d := time.Duration(req.OffsetMinutes) * time.Minute
				newStart = shift.Start.Add(d)
				newEnd = shift.End.Add(d)
			}
			if !newEnd.After(newStart) {
				return errors.BadRequest(fmt.Sprintf("shift %s: end must be after start", id))
			}

			prospective := *shift
			prospective.Start = newStart
			prospective.End = newEnd
			found, err := conflictSvc.ConflictsForShift(ctx, &prospective)
			if err != nil {
				return err
			}
			report.Conflicts = append(report.Conflicts, found...)
			for _, c := range found {
				if c.Kind == ConflictDoubleBooking {
					return errors.ConflictBlocking(fmt.Sprintf("shift %s: %s", id, c.Message))
				}
			}

			if !req.DryRun {
				shift.Start = newStart
				shift.End = newEnd
				if err := tx.Shifts().Update(ctx, shift); err != nil {
					return err
				}
			}
			report.Affected = append(report.Affected, ShiftRef{
				ID:         shift.ID,
				TemplateID: shift.TemplateID,
				EmployeeID: shift.EmployeeID,
				Class:      shift.Class,
				Start:      newStart,
				End:        newEnd,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Delete cancels the listed shifts. Completed shifts are refused even
// under force.
func (s *BulkService) Delete(ctx context.Context, a *actor.Actor, req *BulkDeleteRequest) (*BulkReport, error) {
	if !s.perms.Has(a, permissions.DeleteShift) {
		return nil, errors.PermissionDenied(permissions.DeleteShift)
	}

	report := &BulkReport{Affected: []ShiftRef{}, Conflicts: []Conflict{}, DryRun: req.DryRun}
	err := s.run(ctx, req.DryRun, func(tx Store) error {
		for _, id := range req.ShiftIDs {
			shift, err := tx.Shifts().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if shift.Status == domain.ShiftCompleted {
				return errors.ConflictBlocking(fmt.Sprintf("shift %s is completed and cannot be deleted", id))
			}
			if !req.Force && shift.Status == domain.ShiftInProgress {
				return errors.ConflictBlocking(fmt.Sprintf("shift %s is in progress; use force to delete", id))
			}

			if !req.DryRun {
				if err := tx.Shifts().Delete(ctx, id); err != nil {
					return err
				}
			}
			report.Affected = append(report.Affected, ShiftRef{
				ID:         shift.ID,
				TemplateID: shift.TemplateID,
				EmployeeID: shift.EmployeeID,
				Class:      shift.Class,
				Start:      shift.Start,
				End:        shift.End,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		for _, ref := range report.Affected {
			if err := s.events.Publish(ctx, messaging.EventShiftDeleted, messaging.ShiftDeletedEvent{
				ShiftID:    ref.ID,
				EmployeeID: ref.EmployeeID,
			}); err != nil {
				s.log.Warn().Err(err).Msg("failed to publish shift deleted event")
			}
		}
	}
	return report, nil
}

// run executes fn inside a transaction for applied runs, or against the
// plain store for dry runs (fn performs no writes then).
func (s *BulkService) run(ctx context.Context, dryRun bool, fn func(Store) error) error {
	if dryRun {
		return fn(s.store)
	}
	return s.store.Atomically(ctx, fn)
}

func (s *BulkService) publishAssigned(ctx context.Context, refs []ShiftRef) {
	for _, ref := range refs {
		if err := s.events.Publish(ctx, messaging.EventShiftAssigned, messaging.ShiftAssignedEvent{
			ShiftID:    ref.ID,
			EmployeeID: ref.EmployeeID,
			Class:      string(ref.Class),
			Start:      ref.Start,
			End:        ref.End,
		}); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish shift assigned event")
		}
	}
}
