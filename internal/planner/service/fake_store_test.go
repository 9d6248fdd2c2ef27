package service

import (
	"context"
	"sort"
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

// fakeStore is an in-memory Store for service tests. Atomically snapshots
// the state and restores it when fn fails, matching the rollback
// semantics of the SQL store.
type fakeStore struct {
	data *fakeData
	inTx bool
}

type fakeData struct {
	employees     map[string]domain.Employee
	teams         map[string]domain.Team
	templates     map[string]domain.ShiftTemplate
	shifts        map[string]domain.Shift
	patterns      map[string]domain.RecurringShiftPattern
	leaves        map[string]domain.LeaveRequest
	swaps         map[string]domain.SwapRequest
	rules         map[string]domain.SwapApprovalRule
	steps         map[string]domain.SwapApprovalChainStep
	delegations   map[string]domain.ApprovalDelegation
	audits        []domain.SwapApprovalAudit
	notifications map[string]domain.NotificationEvent
	prefs         map[string]domain.NotificationPreference // employeeID + "|" + class
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: &fakeData{
		employees:     map[string]domain.Employee{},
		teams:         map[string]domain.Team{},
		templates:     map[string]domain.ShiftTemplate{},
		shifts:        map[string]domain.Shift{},
		patterns:      map[string]domain.RecurringShiftPattern{},
		leaves:        map[string]domain.LeaveRequest{},
		swaps:         map[string]domain.SwapRequest{},
		rules:         map[string]domain.SwapApprovalRule{},
		steps:         map[string]domain.SwapApprovalChainStep{},
		delegations:   map[string]domain.ApprovalDelegation{},
		notifications: map[string]domain.NotificationEvent{},
		prefs:         map[string]domain.NotificationPreference{},
	}}
}

// stamp returns a strictly increasing timestamp so ordering by created_at
// is deterministic.
func (d *fakeData) stamp() time.Time {
	d.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(d.seq) * time.Second)
}

func (d *fakeData) clone() *fakeData {
	c := &fakeData{
		employees:     make(map[string]domain.Employee, len(d.employees)),
		teams:         make(map[string]domain.Team, len(d.teams)),
		templates:     make(map[string]domain.ShiftTemplate, len(d.templates)),
		shifts:        make(map[string]domain.Shift, len(d.shifts)),
		patterns:      make(map[string]domain.RecurringShiftPattern, len(d.patterns)),
		leaves:        make(map[string]domain.LeaveRequest, len(d.leaves)),
		swaps:         make(map[string]domain.SwapRequest, len(d.swaps)),
		rules:         make(map[string]domain.SwapApprovalRule, len(d.rules)),
		steps:         make(map[string]domain.SwapApprovalChainStep, len(d.steps)),
		delegations:   make(map[string]domain.ApprovalDelegation, len(d.delegations)),
		audits:        append([]domain.SwapApprovalAudit(nil), d.audits...),
		notifications: make(map[string]domain.NotificationEvent, len(d.notifications)),
		prefs:         make(map[string]domain.NotificationPreference, len(d.prefs)),
		seq:           d.seq,
	}
	for k, v := range d.employees {
		c.employees[k] = v
	}
	for k, v := range d.teams {
		c.teams[k] = v
	}
	for k, v := range d.templates {
		c.templates[k] = v
	}
	for k, v := range d.shifts {
		c.shifts[k] = v
	}
	for k, v := range d.patterns {
		c.patterns[k] = v
	}
	for k, v := range d.leaves {
		c.leaves[k] = v
	}
	for k, v := range d.swaps {
		c.swaps[k] = v
	}
	for k, v := range d.rules {
		c.rules[k] = v
	}
	for k, v := range d.steps {
		c.steps[k] = v
	}
	for k, v := range d.delegations {
		c.delegations[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	for k, v := range d.prefs {
		c.prefs[k] = v
	}
	return c
}

func (f *fakeStore) Employees() EmployeeRepository         { return &fakeEmployees{f.data} }
func (f *fakeStore) Teams() TeamRepository                 { return &fakeTeams{f.data} }
func (f *fakeStore) Templates() TemplateRepository         { return &fakeTemplates{f.data} }
func (f *fakeStore) Shifts() ShiftRepository               { return &fakeShifts{f.data} }
func (f *fakeStore) Patterns() PatternRepository           { return &fakePatterns{f.data} }
func (f *fakeStore) Leaves() LeaveRepository               { return &fakeLeaves{f.data} }
func (f *fakeStore) Swaps() SwapRepository                 { return &fakeSwaps{f.data} }
func (f *fakeStore) Approvals() ApprovalRepository         { return &fakeApprovals{f.data} }
func (f *fakeStore) Notifications() NotificationRepository { return &fakeNotifications{f.data} }

func (f *fakeStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if f.inTx {
		return fn(f)
	}
	snapshot := f.data.clone()
	if err := fn(&fakeStore{data: f.data, inTx: true}); err != nil {
		*f.data = *snapshot
		return err
	}
	return nil
}

// Employees

type fakeEmployees struct{ d *fakeData }

func (r *fakeEmployees) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	e, ok := r.d.employees[id]
	if !ok || e.DeletedAt != nil {
		return nil, errors.NotFound("employee")
	}
	return &e, nil
}

func (r *fakeEmployees) ListActive(ctx context.Context) ([]domain.Employee, error) {
	var out []domain.Employee
	for _, e := range r.d.employees {
		if e.Active && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeEmployees) ListByTeam(ctx context.Context, teamID string) ([]domain.Employee, error) {
	var out []domain.Employee
	for _, e := range r.d.employees {
		if e.Active && e.DeletedAt == nil && e.TeamID != nil && *e.TeamID == teamID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeEmployees) Create(ctx context.Context, e *domain.Employee) error {
	e.CreatedAt = r.d.stamp()
	e.UpdatedAt = e.CreatedAt
	r.d.employees[e.ID] = *e
	return nil
}

func (r *fakeEmployees) Update(ctx context.Context, e *domain.Employee) error {
	cur, ok := r.d.employees[e.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("employee")
	}
	e.UpdatedAt = r.d.stamp()
	r.d.employees[e.ID] = *e
	return nil
}

func (r *fakeEmployees) Deactivate(ctx context.Context, id string) error {
	e, ok := r.d.employees[id]
	if !ok || e.DeletedAt != nil {
		return errors.NotFound("employee")
	}
	e.Active = false
	e.UpdatedAt = r.d.stamp()
	r.d.employees[id] = e
	return nil
}

// Teams

type fakeTeams struct{ d *fakeData }

func (r *fakeTeams) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	t, ok := r.d.teams[id]
	if !ok || t.DeletedAt != nil {
		return nil, errors.NotFound("team")
	}
	return &t, nil
}

func (r *fakeTeams) List(ctx context.Context) ([]domain.Team, error) {
	var out []domain.Team
	for _, t := range r.d.teams {
		if t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeTeams) Create(ctx context.Context, t *domain.Team) error {
	t.CreatedAt = r.d.stamp()
	t.UpdatedAt = t.CreatedAt
	r.d.teams[t.ID] = *t
	return nil
}

func (r *fakeTeams) Update(ctx context.Context, t *domain.Team) error {
	cur, ok := r.d.teams[t.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("team")
	}
	t.UpdatedAt = r.d.stamp()
	r.d.teams[t.ID] = *t
	return nil
}

// Templates

type fakeTemplates struct{ d *fakeData }

func (r *fakeTemplates) GetByID(ctx context.Context, id string) (*domain.ShiftTemplate, error) {
	t, ok := r.d.templates[id]
	if !ok || t.DeletedAt != nil {
		return nil, errors.NotFound("template")
	}
	return &t, nil
}

func (r *fakeTemplates) GetByName(ctx context.Context, name string) (*domain.ShiftTemplate, error) {
	for _, t := range r.d.templates {
		if t.Name == name && t.Active && t.DeletedAt == nil {
			return &t, nil
		}
	}
	return nil, errors.NotFound("template")
}

func (r *fakeTemplates) List(ctx context.Context, includeInactive bool) ([]domain.ShiftTemplate, error) {
	var out []domain.ShiftTemplate
	for _, t := range r.d.templates {
		if t.DeletedAt != nil {
			continue
		}
		if !includeInactive && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeTemplates) Create(ctx context.Context, t *domain.ShiftTemplate) error {
	t.CreatedAt = r.d.stamp()
	t.UpdatedAt = t.CreatedAt
	r.d.templates[t.ID] = *t
	return nil
}

func (r *fakeTemplates) Update(ctx context.Context, t *domain.ShiftTemplate) error {
	cur, ok := r.d.templates[t.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("template")
	}
	// favorite, usage_count, and active are managed by their own operations
	t.Favorite = cur.Favorite
	t.UsageCount = cur.UsageCount
	t.Active = cur.Active
	t.UpdatedAt = r.d.stamp()
	r.d.templates[t.ID] = *t
	return nil
}

func (r *fakeTemplates) Deactivate(ctx context.Context, id string) error {
	t, ok := r.d.templates[id]
	if !ok || t.DeletedAt != nil {
		return errors.NotFound("template")
	}
	t.Active = false
	t.UpdatedAt = r.d.stamp()
	r.d.templates[id] = t
	return nil
}

func (r *fakeTemplates) IncrementUsage(ctx context.Context, id string, by int) error {
	t, ok := r.d.templates[id]
	if !ok || t.DeletedAt != nil {
		return errors.NotFound("template")
	}
	t.UsageCount += by
	r.d.templates[id] = t
	return nil
}

func (r *fakeTemplates) SetFavorite(ctx context.Context, id string, favorite bool) error {
	t, ok := r.d.templates[id]
	if !ok || t.DeletedAt != nil {
		return errors.NotFound("template")
	}
	t.Favorite = favorite
	r.d.templates[id] = t
	return nil
}

// Shifts

type fakeShifts struct{ d *fakeData }

func (r *fakeShifts) GetByID(ctx context.Context, id string) (*domain.Shift, error) {
	s, ok := r.d.shifts[id]
	if !ok || s.DeletedAt != nil {
		return nil, errors.NotFound("shift")
	}
	return &s, nil
}

func (r *fakeShifts) ListRange(ctx context.Context, f ShiftFilter) ([]domain.Shift, error) {
	var out []domain.Shift
	for _, s := range r.d.shifts {
		if s.DeletedAt != nil {
			continue
		}
		if f.EmployeeID != nil && s.EmployeeID != *f.EmployeeID {
			continue
		}
		if f.TeamID != nil && (s.TeamID == nil || *s.TeamID != *f.TeamID) {
			continue
		}
		if f.TemplateID != nil && s.TemplateID != *f.TemplateID {
			continue
		}
		if f.Class != nil && s.Class != *f.Class {
			continue
		}
		if !f.From.IsZero() && s.Start.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.Start.Before(f.To) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeShifts) FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID *string) ([]domain.Shift, error) {
	var out []domain.Shift
	for _, s := range r.d.shifts {
		if s.DeletedAt != nil || s.EmployeeID != employeeID || s.Status == domain.ShiftCancelled {
			continue
		}
		if excludeID != nil && s.ID == *excludeID {
			continue
		}
		if s.Start.Before(end) && start.Before(s.End) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeShifts) HoursInRange(ctx context.Context, employeeID string, from, to time.Time) (float64, error) {
	var total float64
	for _, s := range r.d.shifts {
		if s.DeletedAt != nil || s.EmployeeID != employeeID || s.Status == domain.ShiftCancelled {
			continue
		}
		if s.Start.Before(from) || !s.Start.Before(to) {
			continue
		}
		total += s.End.Sub(s.Start).Hours()
	}
	return total, nil
}

func (r *fakeShifts) Create(ctx context.Context, s *domain.Shift) error {
	if s.Version == 0 {
		s.Version = 1
	}
	s.CreatedAt = r.d.stamp()
	s.UpdatedAt = s.CreatedAt
	r.d.shifts[s.ID] = *s
	return nil
}

func (r *fakeShifts) Update(ctx context.Context, s *domain.Shift) error {
	cur, ok := r.d.shifts[s.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("shift")
	}
	if cur.Version != s.Version {
		return errors.StaleState("shift")
	}
	s.Version++
	s.UpdatedAt = r.d.stamp()
	r.d.shifts[s.ID] = *s
	return nil
}

func (r *fakeShifts) Reassign(ctx context.Context, shiftID, employeeID string, version int) error {
	cur, ok := r.d.shifts[shiftID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("shift")
	}
	if cur.Version != version {
		return errors.StaleState("shift")
	}
	cur.EmployeeID = employeeID
	cur.Version++
	cur.UpdatedAt = r.d.stamp()
	r.d.shifts[shiftID] = cur
	return nil
}

func (r *fakeShifts) Delete(ctx context.Context, id string) error {
	cur, ok := r.d.shifts[id]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("shift")
	}
	now := r.d.stamp()
	cur.Status = domain.ShiftCancelled
	cur.Version++
	cur.DeletedAt = &now
	r.d.shifts[id] = cur
	return nil
}

func containsStatus(statuses []domain.ShiftStatus, s domain.ShiftStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Patterns

type fakePatterns struct{ d *fakeData }

func (r *fakePatterns) GetByID(ctx context.Context, id string) (*domain.RecurringShiftPattern, error) {
	p, ok := r.d.patterns[id]
	if !ok || p.DeletedAt != nil {
		return nil, errors.NotFound("pattern")
	}
	return &p, nil
}

func (r *fakePatterns) ListActive(ctx context.Context) ([]domain.RecurringShiftPattern, error) {
	var out []domain.RecurringShiftPattern
	for _, p := range r.d.patterns {
		if p.Active && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePatterns) Create(ctx context.Context, p *domain.RecurringShiftPattern) error {
	p.CreatedAt = r.d.stamp()
	p.UpdatedAt = p.CreatedAt
	r.d.patterns[p.ID] = *p
	return nil
}

func (r *fakePatterns) Update(ctx context.Context, p *domain.RecurringShiftPattern) error {
	cur, ok := r.d.patterns[p.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("pattern")
	}
	p.UpdatedAt = r.d.stamp()
	r.d.patterns[p.ID] = *p
	return nil
}

func (r *fakePatterns) Deactivate(ctx context.Context, id string) error {
	p, ok := r.d.patterns[id]
	if !ok || p.DeletedAt != nil {
		return errors.NotFound("pattern")
	}
	p.Active = false
	r.d.patterns[id] = p
	return nil
}

// Leaves

type fakeLeaves struct{ d *fakeData }

func (r *fakeLeaves) GetByID(ctx context.Context, id string) (*domain.LeaveRequest, error) {
	l, ok := r.d.leaves[id]
	if !ok {
		return nil, errors.NotFound("leave request")
	}
	return &l, nil
}

func (r *fakeLeaves) ListIntersecting(ctx context.Context, f LeaveFilter) ([]domain.LeaveRequest, error) {
	var out []domain.LeaveRequest
	for _, l := range r.d.leaves {
		if f.EmployeeID != nil && l.EmployeeID != *f.EmployeeID {
			continue
		}
		if f.TeamID != nil {
			e, ok := r.d.employees[l.EmployeeID]
			if !ok || e.TeamID == nil || *e.TeamID != *f.TeamID {
				continue
			}
		}
		if !f.Start.IsZero() && l.EndDate.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && l.StartDate.After(f.End) {
			continue
		}
		if len(f.Statuses) > 0 && !containsLeaveStatus(f.Statuses, l.Status) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeLeaves) Create(ctx context.Context, l *domain.LeaveRequest) error {
	if l.Version == 0 {
		l.Version = 1
	}
	l.CreatedAt = r.d.stamp()
	l.UpdatedAt = l.CreatedAt
	r.d.leaves[l.ID] = *l
	return nil
}

func (r *fakeLeaves) UpdateStatus(ctx context.Context, l *domain.LeaveRequest) error {
	cur, ok := r.d.leaves[l.ID]
	if !ok {
		return errors.NotFound("leave request")
	}
	if cur.Version != l.Version {
		return errors.StaleState("leave request")
	}
	l.Version++
	l.UpdatedAt = r.d.stamp()
	r.d.leaves[l.ID] = *l
	return nil
}

func (r *fakeLeaves) DaysUsedInYear(ctx context.Context, employeeID string, year int) (float64, error) {
	var total float64
	for _, l := range r.d.leaves {
		if l.EmployeeID != employeeID || l.Status != domain.LeaveApproved {
			continue
		}
		if l.StartDate.Year() != year {
			continue
		}
		total += l.DaysRequested
	}
	return total, nil
}

func containsLeaveStatus(statuses []domain.LeaveStatus, s domain.LeaveStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Swaps

type fakeSwaps struct{ d *fakeData }

func (r *fakeSwaps) GetByID(ctx context.Context, id string) (*domain.SwapRequest, error) {
	s, ok := r.d.swaps[id]
	if !ok {
		return nil, errors.NotFound("swap request")
	}
	return &s, nil
}

func (r *fakeSwaps) GetByIDLocked(ctx context.Context, id string) (*domain.SwapRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeSwaps) ListByStatus(ctx context.Context, status domain.SwapStatus) ([]domain.SwapRequest, error) {
	var out []domain.SwapRequest
	for _, s := range r.d.swaps {
		if s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeSwaps) ListForEmployee(ctx context.Context, employeeID string) ([]domain.SwapRequest, error) {
	var out []domain.SwapRequest
	for _, s := range r.d.swaps {
		if s.RequesterID == employeeID || s.TargetID == employeeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeSwaps) Create(ctx context.Context, s *domain.SwapRequest) error {
	if s.Version == 0 {
		s.Version = 1
	}
	s.CreatedAt = r.d.stamp()
	s.UpdatedAt = s.CreatedAt
	r.d.swaps[s.ID] = *s
	return nil
}

func (r *fakeSwaps) UpdateStatus(ctx context.Context, s *domain.SwapRequest) error {
	cur, ok := r.d.swaps[s.ID]
	if !ok {
		return errors.NotFound("swap request")
	}
	if cur.Version != s.Version {
		return errors.StaleState("swap request")
	}
	s.Version++
	s.UpdatedAt = r.d.stamp()
	r.d.swaps[s.ID] = *s
	return nil
}

func (r *fakeSwaps) CountApprovedInMonth(ctx context.Context, employeeID string, ref time.Time) (int, error) {
	count := 0
	for _, s := range r.d.swaps {
		if s.RequesterID != employeeID || s.Status != domain.SwapApproved || s.DecidedAt == nil {
			continue
		}
		d := s.DecidedAt.In(ref.Location())
		if d.Year() == ref.Year() && d.Month() == ref.Month() {
			count++
		}
	}
	return count, nil
}

// Approvals

type fakeApprovals struct{ d *fakeData }

func (r *fakeApprovals) GetRule(ctx context.Context, id string) (*domain.SwapApprovalRule, error) {
	rule, ok := r.d.rules[id]
	if !ok || rule.DeletedAt != nil {
		return nil, errors.NotFound("approval rule")
	}
	return &rule, nil
}

func (r *fakeApprovals) ListActiveRules(ctx context.Context) ([]domain.SwapApprovalRule, error) {
	var out []domain.SwapApprovalRule
	for _, rule := range r.d.rules {
		if rule.Active && rule.DeletedAt == nil {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeApprovals) CreateRule(ctx context.Context, rule *domain.SwapApprovalRule) error {
	rule.CreatedAt = r.d.stamp()
	rule.UpdatedAt = rule.CreatedAt
	r.d.rules[rule.ID] = *rule
	return nil
}

func (r *fakeApprovals) UpdateRule(ctx context.Context, rule *domain.SwapApprovalRule) error {
	cur, ok := r.d.rules[rule.ID]
	if !ok || cur.DeletedAt != nil {
		return errors.NotFound("approval rule")
	}
	rule.UpdatedAt = r.d.stamp()
	r.d.rules[rule.ID] = *rule
	return nil
}

func (r *fakeApprovals) GetStep(ctx context.Context, id string) (*domain.SwapApprovalChainStep, error) {
	s, ok := r.d.steps[id]
	if !ok {
		return nil, errors.NotFound("approval step")
	}
	return &s, nil
}

func (r *fakeApprovals) ListSteps(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalChainStep, error) {
	var out []domain.SwapApprovalChainStep
	for _, s := range r.d.steps {
		if s.SwapRequestID == swapRequestID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeApprovals) ListPendingStepsFor(ctx context.Context, approverID string) ([]domain.SwapApprovalChainStep, error) {
	var out []domain.SwapApprovalChainStep
	for _, s := range r.d.steps {
		if s.ApproverID == approverID && s.Status == domain.StepPending {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeApprovals) CreateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error {
	s.CreatedAt = r.d.stamp()
	r.d.steps[s.ID] = *s
	return nil
}

func (r *fakeApprovals) UpdateStep(ctx context.Context, s *domain.SwapApprovalChainStep) error {
	if _, ok := r.d.steps[s.ID]; !ok {
		return errors.NotFound("approval step")
	}
	r.d.steps[s.ID] = *s
	return nil
}

func (r *fakeApprovals) GetDelegation(ctx context.Context, id string) (*domain.ApprovalDelegation, error) {
	d, ok := r.d.delegations[id]
	if !ok {
		return nil, errors.NotFound("delegation")
	}
	return &d, nil
}

func (r *fakeApprovals) ListActiveDelegations(ctx context.Context) ([]domain.ApprovalDelegation, error) {
	var out []domain.ApprovalDelegation
	for _, d := range r.d.delegations {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeApprovals) ListDelegationsBy(ctx context.Context, delegatorID string) ([]domain.ApprovalDelegation, error) {
	var out []domain.ApprovalDelegation
	for _, d := range r.d.delegations {
		if d.DelegatorID == delegatorID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeApprovals) CreateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error {
	d.CreatedAt = r.d.stamp()
	d.UpdatedAt = d.CreatedAt
	r.d.delegations[d.ID] = *d
	return nil
}

func (r *fakeApprovals) UpdateDelegation(ctx context.Context, d *domain.ApprovalDelegation) error {
	if _, ok := r.d.delegations[d.ID]; !ok {
		return errors.NotFound("delegation")
	}
	d.UpdatedAt = r.d.stamp()
	r.d.delegations[d.ID] = *d
	return nil
}

func (r *fakeApprovals) AppendAudit(ctx context.Context, a *domain.SwapApprovalAudit) error {
	a.CreatedAt = r.d.stamp()
	r.d.audits = append(r.d.audits, *a)
	return nil
}

func (r *fakeApprovals) ListAudit(ctx context.Context, swapRequestID string) ([]domain.SwapApprovalAudit, error) {
	var out []domain.SwapApprovalAudit
	for _, a := range r.d.audits {
		if a.SwapRequestID == swapRequestID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Notifications

type fakeNotifications struct{ d *fakeData }

func (r *fakeNotifications) Create(ctx context.Context, n *domain.NotificationEvent) error {
	n.CreatedAt = r.d.stamp()
	r.d.notifications[n.ID] = *n
	return nil
}

func (r *fakeNotifications) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.NotificationEvent, error) {
	var out []domain.NotificationEvent
	for _, n := range r.d.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotifications) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	n, ok := r.d.notifications[notificationID]
	if !ok || n.RecipientID != recipientID {
		return errors.NotFound("notification")
	}
	n.IsRead = true
	r.d.notifications[notificationID] = n
	return nil
}

func (r *fakeNotifications) MarkAllRead(ctx context.Context, recipientID string) error {
	for id, n := range r.d.notifications {
		if n.RecipientID == recipientID {
			n.IsRead = true
			r.d.notifications[id] = n
		}
	}
	return nil
}

func (r *fakeNotifications) GetPreference(ctx context.Context, employeeID string, class domain.NotificationClass) (*domain.NotificationPreference, error) {
	p, ok := r.d.prefs[employeeID+"|"+string(class)]
	if !ok {
		return nil, errors.NotFound("notification preference")
	}
	return &p, nil
}

func (r *fakeNotifications) ListPreferences(ctx context.Context, employeeID string) ([]domain.NotificationPreference, error) {
	var out []domain.NotificationPreference
	for _, p := range r.d.prefs {
		if p.EmployeeID == employeeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out, nil
}

func (r *fakeNotifications) UpsertPreference(ctx context.Context, p *domain.NotificationPreference) error {
	key := p.EmployeeID + "|" + string(p.Class)
	if cur, ok := r.d.prefs[key]; ok {
		p.ID = cur.ID
	}
	p.UpdatedAt = r.d.stamp()
	r.d.prefs[key] = *p
	return nil
}
