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

// CreateShiftRequest creates a single manually planned shift.
type CreateShiftRequest struct {
	TemplateID string    `json:"template_id" validate:"required,uuid"`
	EmployeeID string    `json:"employee_id" validate:"required,uuid"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	Notes      *string   `json:"notes,omitempty"`
	Force      bool      `json:"force"`
}

// UpdateShiftRequest mutates an existing shift. Version must match the
// stored row or the update is rejected as stale.
type UpdateShiftRequest struct {
	Start   *time.Time          `json:"start,omitempty"`
	End     *time.Time          `json:"end,omitempty"`
	Status  *domain.ShiftStatus `json:"status,omitempty"`
	Notes   *string             `json:"notes,omitempty"`
	Version int                 `json:"version" validate:"required,min=1"`
}

// ShiftService covers manual shift CRUD. Orchestrated planning lives in
// Orchestrator; this service is the hand-editing path.
type ShiftService struct {
	store     Store
	clock     calendar.Clock
	cal       *calendar.Calendar
	conflicts *ConflictService
	perms     permissions.Checker
	events    EventPublisher
	notifier  *Notifier
	log       *logger.Logger
}

// NewShiftService creates a shift service.
func NewShiftService(store Store, clock calendar.Clock, cal *calendar.Calendar, conflicts *ConflictService, perms permissions.Checker, events EventPublisher, notifier *Notifier, log *logger.Logger) *ShiftService {
	return &ShiftService{store: store, clock: clock, cal: cal, conflicts: conflicts, perms: perms, events: events, notifier: notifier, log: log}
}

// Get returns one shift.
func (s *ShiftService) Get(ctx context.Context, a *actor.Actor, id string) (*domain.Shift, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Shifts().GetByID(ctx, id)
}

// List returns shifts matching the filter.
func (s *ShiftService) List(ctx context.Context, a *actor.Actor, filter ShiftFilter) ([]domain.Shift, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Shifts().ListRange(ctx, filter)
}

// Create plans one shift by hand. Double-booking blocks unless Force;
// other conflicts are logged and stored in the shift reason.
func (s *ShiftService) Create(ctx context.Context, a *actor.Actor, req *CreateShiftRequest) (*domain.Shift, error) {
	if !s.perms.Has(a, permissions.CreateShift) {
		return nil, errors.PermissionDenied(permissions.CreateShift)
	}
	if !req.End.After(req.Start) {
		return nil, errors.BadRequest("end must be after start")
	}

	var created *domain.Shift
	err := s.store.Atomically(ctx, func(tx Store) error {
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

		shift := &domain.Shift{
			ID:         uuid.New().String(),
			TemplateID: tpl.ID,
			EmployeeID: employee.ID,
			TeamID:     employee.TeamID,
			Class:      tpl.Class,
			Start:      req.Start,
			End:        req.End,
			Status:     domain.ShiftScheduled,
			Notes:      req.Notes,
			Version:    1,
		}

		conflictSvc := NewConflictService(tx, s.clock, s.cal, s.conflicts.cfg, s.log)
		found, err := conflictSvc.ConflictsForShift(ctx, shift)
		if err != nil {
			return err
		}
		for _, c := range found {
			if c.Kind == ConflictDoubleBooking && !req.Force {
				return errors.ConflictBlocking(c.Message)
			}
		}
		if req.Force && len(found) > 0 {
			reason := fmt.Sprintf("created with %d conflict(s) overridden", len(found))
			shift.Reason = &reason
		}

		if err := tx.Shifts().Create(ctx, shift); err != nil {
			return err
		}
		if err := tx.Templates().IncrementUsage(ctx, tpl.ID, 1); err != nil {
			return err
		}
		created = shift

		s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
			RecipientID: employee.ID,
			Class:       domain.NotifyShiftAssigned,
			Title:       "New shift assigned",
			Body:        fmt.Sprintf("You have been assigned a %s shift starting %s.", tpl.Class, shift.Start.In(s.cal.Location()).Format("Mon 2 Jan 15:04")),
			ShiftID:     &shift.ID,
		}, employee.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, messaging.EventShiftAssigned, messaging.ShiftAssignedEvent{
		ShiftID:    created.ID,
		EmployeeID: created.EmployeeID,
		Class:      string(created.Class),
		Start:      created.Start,
		End:        created.End,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish shift assigned event")
	}
	return created, nil
}

// Update mutates time, status, or notes of one shift.
func (s *ShiftService) Update(ctx context.Context, a *actor.Actor, id string, req *UpdateShiftRequest) (*domain.Shift, error) {
	if !s.perms.Has(a, permissions.EditShift) {
		return nil, errors.PermissionDenied(permissions.EditShift)
	}

	var updated *domain.Shift
	err := s.store.Atomically(ctx, func(tx Store) error {
		shift, err := tx.Shifts().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if shift.Version != req.Version {
			return errors.StaleState("shift")
		}
		if shift.Status == domain.ShiftCompleted {
			return errors.ConflictBlocking("completed shifts cannot be modified")
		}

		timesChanged := false
		if req.Start != nil {
			shift.Start = *req.Start
			timesChanged = true
		}
		if req.End != nil {
			shift.End = *req.End
			timesChanged = true
		}
		if !shift.End.After(shift.Start) {
			return errors.BadRequest("end must be after start")
		}
		if req.Status != nil {
			if !req.Status.IsValid() {
				return errors.BadRequest("unknown shift status")
			}
			shift.Status = *req.Status
		}
		if req.Notes != nil {
			shift.Notes = req.Notes
		}

		if timesChanged && shift.IsCounted() {
			conflictSvc := NewConflictService(tx, s.clock, s.cal, s.conflicts.cfg, s.log)
			found, err := conflictSvc.ConflictsForShift(ctx, shift)
			if err != nil {
				return err
			}
			for _, c := range found {
				if c.Kind == ConflictDoubleBooking {
					return errors.ConflictBlocking(c.Message)
				}
			}
		}

		if err := tx.Shifts().Update(ctx, shift); err != nil {
			return err
		}
		updated = shift

		s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
			RecipientID: shift.EmployeeID,
			Class:       domain.NotifyShiftUpdated,
			Title:       "Shift updated",
			Body:        fmt.Sprintf("Your shift starting %s was updated.", shift.Start.In(s.cal.Location()).Format("Mon 2 Jan 15:04")),
			ShiftID:     &shift.ID,
		}, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, messaging.EventShiftUpdated, messaging.ShiftUpdatedEvent{
		ShiftID:    updated.ID,
		EmployeeID: updated.EmployeeID,
		Start:      updated.Start,
		End:        updated.End,
		Status:     string(updated.Status),
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish shift updated event")
	}
	return updated, nil
}

// Delete cancels one shift. Completed shifts are refused.
func (s *ShiftService) Delete(ctx context.Context, a *actor.Actor, id string) error {
	if !s.perms.Has(a, permissions.DeleteShift) {
		return errors.PermissionDenied(permissions.DeleteShift)
	}

	var employeeID string
	err := s.store.Atomically(ctx, func(tx Store) error {
		shift, err := tx.Shifts().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if shift.Status == domain.ShiftCompleted {
			return errors.ConflictBlocking("completed shifts cannot be deleted")
		}
		employeeID = shift.EmployeeID
		if err := tx.Shifts().Delete(ctx, id); err != nil {
			return err
		}

		s.notifier.Emit(ctx, tx, &domain.NotificationEvent{
			RecipientID: shift.EmployeeID,
			Class:       domain.NotifyShiftCancelled,
			Title:       "Shift cancelled",
			Body:        fmt.Sprintf("Your shift starting %s was cancelled.", shift.Start.In(s.cal.Location()).Format("Mon 2 Jan 15:04")),
			ShiftID:     &shift.ID,
		}, "")
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.events.Publish(ctx, messaging.EventShiftDeleted, messaging.ShiftDeletedEvent{
		ShiftID:    id,
		EmployeeID: employeeID,
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish shift deleted event")
	}
	return nil
}

// CreateTemplateRequest creates a shift template.
type CreateTemplateRequest struct {
	Name              string            `json:"name" validate:"required,min=2,max=120"`
	Class             domain.ShiftClass `json:"class" validate:"required"`
	StartTime         string            `json:"start_time" validate:"required"`
	EndTime           string            `json:"end_time" validate:"required"`
	RequiredHeadcount int               `json:"required_headcount" validate:"min=0"`
	RequiredSkills    []string          `json:"required_skills,omitempty"`
	Category          *string           `json:"category,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
}

// UpdateTemplateRequest mutates a template; nil fields are unchanged.
type UpdateTemplateRequest struct {
	Name              *string  `json:"name,omitempty"`
	StartTime         *string  `json:"start_time,omitempty"`
	EndTime           *string  `json:"end_time,omitempty"`
	RequiredHeadcount *int     `json:"required_headcount,omitempty"`
	RequiredSkills    []string `json:"required_skills,omitempty"`
	Category          *string  `json:"category,omitempty"`
	Tags              []string `json:"tags,omitempty"`
}

// TemplateService covers shift template management.
type TemplateService struct {
	store Store
	perms permissions.Checker
	log   *logger.Logger
}

// NewTemplateService creates a template service.
func NewTemplateService(store Store, perms permissions.Checker, log *logger.Logger) *TemplateService {
	return &TemplateService{store: store, perms: perms, log: log}
}

// Get returns one template.
func (s *TemplateService) Get(ctx context.Context, a *actor.Actor, id string) (*domain.ShiftTemplate, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Templates().GetByID(ctx, id)
}

// List returns templates; inactive ones only for managers.
func (s *TemplateService) List(ctx context.Context, a *actor.Actor, includeInactive bool) ([]domain.ShiftTemplate, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	if includeInactive && !s.perms.Has(a, permissions.ManageTemplates) {
		includeInactive = false
	}
	return s.store.Templates().List(ctx, includeInactive)
}

// Create adds a template. Names are unique among active templates.
func (s *TemplateService) Create(ctx context.Context, a *actor.Actor, req *CreateTemplateRequest) (*domain.ShiftTemplate, error) {
	if !s.perms.Has(a, permissions.ManageTemplates) {
		return nil, errors.PermissionDenied(permissions.ManageTemplates)
	}
	if !req.Class.IsValid() {
		return nil, errors.BadRequest("unknown shift class")
	}
	if _, err := s.store.Templates().GetByName(ctx, req.Name); err == nil {
		return nil, errors.ConflictBlocking(fmt.Sprintf("template %q already exists", req.Name))
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	tpl := &domain.ShiftTemplate{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Class:             req.Class,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		RequiredHeadcount: req.RequiredHeadcount,
		RequiredSkills:    req.RequiredSkills,
		Category:          req.Category,
		Tags:              req.Tags,
		Active:            true,
	}
	if err := s.store.Templates().Create(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Update mutates a template in place. Usage count and favorite flag are
// managed by their own operations.
func (s *TemplateService) Update(ctx context.Context, a *actor.Actor, id string, req *UpdateTemplateRequest) (*domain.ShiftTemplate, error) {
	if !s.perms.Has(a, permissions.ManageTemplates) {
		return nil, errors.PermissionDenied(permissions.ManageTemplates)
	}
	tpl, err := s.store.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.StartTime != nil {
		tpl.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		tpl.EndTime = *req.EndTime
	}
	if req.RequiredHeadcount != nil {
		tpl.RequiredHeadcount = *req.RequiredHeadcount
	}
	if req.RequiredSkills != nil {
		tpl.RequiredSkills = req.RequiredSkills
	}
	if req.Category != nil {
		tpl.Category = req.Category
	}
	if req.Tags != nil {
		tpl.Tags = req.Tags
	}
	if err := s.store.Templates().Update(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Clone copies a template under a new name with usage reset.
func (s *TemplateService) Clone(ctx context.Context, a *actor.Actor, id, newName string) (*domain.ShiftTemplate, error) {
	if !s.perms.Has(a, permissions.ManageTemplates) {
		return nil, errors.PermissionDenied(permissions.ManageTemplates)
	}
	src, err := s.store.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = src.Name + " (copy)"
	}
	if _, err := s.store.Templates().GetByName(ctx, newName); err == nil {
		return nil, errors.ConflictBlocking(fmt.Sprintf("template %q already exists", newName))
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	clone := *src
	clone.ID = uuid.New().String()
	clone.Name = newName
	clone.Favorite = false
	clone.UsageCount = 0
	clone.Active = true
	if err := s.store.Templates().Create(ctx, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

// SetFavorite toggles the favorite flag.
func (s *TemplateService) SetFavorite(ctx context.Context, a *actor.Actor, id string, favorite bool) error {
	if !s.perms.Has(a, permissions.ManageTemplates) {
		return errors.PermissionDenied(permissions.ManageTemplates)
	}
	return s.store.Templates().SetFavorite(ctx, id, favorite)
}

// Deactivate retires a template. Existing shifts keep referencing it;
// new generation skips inactive templates.
func (s *TemplateService) Deactivate(ctx context.Context, a *actor.Actor, id string) error {
	if !s.perms.Has(a, permissions.ManageTemplates) {
		return errors.PermissionDenied(permissions.ManageTemplates)
	}
	return s.store.Templates().Deactivate(ctx, id)
}

// DirectoryService covers the employee and team records the planner
// owns. Identity and role storage live elsewhere.
type DirectoryService struct {
	store Store
	perms permissions.Checker
	log   *logger.Logger
}

// NewDirectoryService creates a directory service.
func NewDirectoryService(store Store, perms permissions.Checker, log *logger.Logger) *DirectoryService {
	return &DirectoryService{store: store, perms: perms, log: log}
}

// GetEmployee returns one employee.
func (s *DirectoryService) GetEmployee(ctx context.Context, a *actor.Actor, id string) (*domain.Employee, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Employees().GetByID(ctx, id)
}

// ListEmployees returns active employees, optionally for one team.
func (s *DirectoryService) ListEmployees(ctx context.Context, a *actor.Actor, teamID *string) ([]domain.Employee, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	if teamID != nil {
		return s.store.Employees().ListByTeam(ctx, *teamID)
	}
	return s.store.Employees().ListActive(ctx)
}

// CreateEmployee adds an employee record.
func (s *DirectoryService) CreateEmployee(ctx context.Context, a *actor.Actor, e *domain.Employee) (*domain.Employee, error) {
	if !s.perms.Has(a, permissions.ManageUsers) {
		return nil, errors.PermissionDenied(permissions.ManageUsers)
	}
	if e.Name == "" || e.Email == "" {
		return nil, errors.BadRequest("name and email are required")
	}
	if e.FTE <= 0 || e.FTE > 1 {
		return nil, errors.BadRequest("fte must be in (0, 1]")
	}
	e.ID = uuid.New().String()
	e.Active = true
	if err := s.store.Employees().Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEmployee mutates an employee record.
func (s *DirectoryService) UpdateEmployee(ctx context.Context, a *actor.Actor, e *domain.Employee) error {
	if !s.perms.Has(a, permissions.ManageUsers) {
		return errors.PermissionDenied(permissions.ManageUsers)
	}
	if e.FTE <= 0 || e.FTE > 1 {
		return errors.BadRequest("fte must be in (0, 1]")
	}
	return s.store.Employees().Update(ctx, e)
}

// DeactivateEmployee soft-deletes an employee. Their history stays; the
// fairness ledger and generators stop considering them.
func (s *DirectoryService) DeactivateEmployee(ctx context.Context, a *actor.Actor, id string) error {
	if !s.perms.Has(a, permissions.ManageUsers) {
		return errors.PermissionDenied(permissions.ManageUsers)
	}
	return s.store.Employees().Deactivate(ctx, id)
}

// GetTeam returns one team.
func (s *DirectoryService) GetTeam(ctx context.Context, a *actor.Actor, id string) (*domain.Team, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Teams().GetByID(ctx, id)
}

// ListTeams returns all teams.
func (s *DirectoryService) ListTeams(ctx context.Context, a *actor.Actor) ([]domain.Team, error) {
	if !s.perms.Has(a, permissions.ViewSchedule) {
		return nil, errors.PermissionDenied(permissions.ViewSchedule)
	}
	return s.store.Teams().List(ctx)
}

// CreateTeam adds a team.
func (s *DirectoryService) CreateTeam(ctx context.Context, a *actor.Actor, t *domain.Team) (*domain.Team, error) {
	if !s.perms.Has(a, permissions.ManageTeam) {
		return nil, errors.PermissionDenied(permissions.ManageTeam)
	}
	if t.Name == "" {
		return nil, errors.BadRequest("name is required")
	}
	t.ID = uuid.New().String()
	if err := s.store.Teams().Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTeam mutates a team.
func (s *DirectoryService) UpdateTeam(ctx context.Context, a *actor.Actor, t *domain.Team) error {
	if !s.perms.Has(a, permissions.ManageTeam) {
		return errors.PermissionDenied(permissions.ManageTeam)
	}
	return s.store.Teams().Update(ctx, t)
}
