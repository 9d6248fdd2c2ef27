package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const templateColumns = `
	id, name, class, start_time, end_time, required_headcount, required_skills,
	category, tags, favorite, usage_count, active, created_at, updated_at, deleted_at`

// TemplateRepo persists shift templates.
type TemplateRepo struct {
	q queryer
}

func (r *TemplateRepo) GetByID(ctx context.Context, id string) (*domain.ShiftTemplate, error) {
	var t domain.ShiftTemplate
	query := `SELECT` + templateColumns + ` FROM shift_templates WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &t, query, id); err != nil {
		return nil, wrapErr(err, "template")
	}
	return &t, nil
}

func (r *TemplateRepo) GetByName(ctx context.Context, name string) (*domain.ShiftTemplate, error) {
	var t domain.ShiftTemplate
	query := `SELECT` + templateColumns + ` FROM shift_templates
		WHERE name = $1 AND active = true AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &t, query, name); err != nil {
		return nil, wrapErr(err, "template")
	}
	return &t, nil
}

func (r *TemplateRepo) List(ctx context.Context, includeInactive bool) ([]domain.ShiftTemplate, error) {
	templates := []domain.ShiftTemplate{}
	query := `SELECT` + templateColumns + ` FROM shift_templates WHERE deleted_at IS NULL`
	if !includeInactive {
		query += ` AND active = true`
	}
	query += ` ORDER BY favorite DESC, name, id`
	if err := r.q.SelectContext(ctx, &templates, query); err != nil {
		return nil, wrapErr(err, "template")
	}
	return templates, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.ShiftTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	query := `
		INSERT INTO shift_templates (
			id, name, class, start_time, end_time, required_headcount,
			required_skills, category, tags, favorite, usage_count, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		t.ID, t.Name, t.Class, t.StartTime, t.EndTime, t.RequiredHeadcount,
		t.RequiredSkills, t.Category, t.Tags, t.Favorite, t.UsageCount, t.Active,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return wrapErr(err, "template")
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.ShiftTemplate) error {
	query := `
		UPDATE shift_templates SET
			name = $2, class = $3, start_time = $4, end_time = $5,
			required_headcount = $6, required_skills = $7, category = $8,
			tags = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		t.ID, t.Name, t.Class, t.StartTime, t.EndTime,
		t.RequiredHeadcount, t.RequiredSkills, t.Category, t.Tags,
	).Scan(&t.UpdatedAt)
	return wrapErr(err, "template")
}

func (r *TemplateRepo) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE shift_templates SET active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(err, "template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("template")
	}
	return nil
}

func (r *TemplateRepo) IncrementUsage(ctx context.Context, id string, by int) error {
	query := `UPDATE shift_templates SET usage_count = usage_count + $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id, by)
	if err != nil {
		return wrapErr(err, "template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("template")
	}
	return nil
}

func (r *TemplateRepo) SetFavorite(ctx context.Context, id string, favorite bool) error {
	query := `UPDATE shift_templates SET favorite = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id, favorite)
	if err != nil {
		return wrapErr(err, "template")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("template")
	}
	return nil
}

const shiftColumns = `
	id, template_id, employee_id, team_id, class, start_time, end_time,
	status, notes, auto_assigned, reason, version, created_at, updated_at, deleted_at`

// ShiftRepo persists shifts.
type ShiftRepo struct {
	q queryer
}

func (r *ShiftRepo) GetByID(ctx context.Context, id string) (*domain.Shift, error) {
	var s domain.Shift
	query := `SELECT` + shiftColumns + ` FROM shifts WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &s, query, id); err != nil {
		return nil, wrapErr(err, "shift")
	}
	return &s, nil
}

func (r *ShiftRepo) ListRange(ctx context.Context, f service.ShiftFilter) ([]domain.Shift, error) {
	var (
		clauses = []string{"deleted_at IS NULL"}
		args    []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployeeID != nil {
		clauses = append(clauses, "employee_id = "+arg(*f.EmployeeID))
	}
	if f.TeamID != nil {
		clauses = append(clauses, "team_id = "+arg(*f.TeamID))
	}
	if f.TemplateID != nil {
		clauses = append(clauses, "template_id = "+arg(*f.TemplateID))
	}
	if f.Class != nil {
		clauses = append(clauses, "class = "+arg(*f.Class))
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "start_time >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "start_time < "+arg(f.To))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, "status = ANY("+arg(pq.StringArray(statuses))+")")
	}

	query := `SELECT` + shiftColumns + ` FROM shifts WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY start_time, id`
	shifts := []domain.Shift{}
	if err := r.q.SelectContext(ctx, &shifts, query, args...); err != nil {
		return nil, wrapErr(err, "shift")
	}
	return shifts, nil
}

func (r *ShiftRepo) FindOverlapping(ctx context.Context, employeeID string, start, end time.Time, excludeID *string) ([]domain.Shift, error) {
	query := `SELECT` + shiftColumns + ` FROM shifts
		WHERE employee_id = $1 AND status != 'cancelled' AND deleted_at IS NULL
		  AND start_time < $3 AND end_time > $2`
	args := []interface{}{employeeID, start, end}
	if excludeID != nil {
		query += ` AND id != $4`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY start_time, id`
	shifts := []domain.Shift{}
	if err := r.q.SelectContext(ctx, &shifts, query, args...); err != nil {
		return nil, wrapErr(err, "shift")
	}
	return shifts, nil
}

func (r *ShiftRepo) HoursInRange(ctx context.Context, employeeID string, from, to time.Time) (float64, error) {
	var hours float64
	query := `
		SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 3600.0), 0)
		FROM shifts
		WHERE employee_id = $1 AND status != 'cancelled' AND deleted_at IS NULL
		  AND start_time >= $2 AND start_time < $3`
	if err := r.q.GetContext(ctx, &hours, query, employeeID, from, to); err != nil {
		return 0, wrapErr(err, "shift")
	}
	return hours, nil
}

func (r *ShiftRepo) Create(ctx context.Context, s *domain.Shift) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	query := `
		INSERT INTO shifts (
			id, template_id, employee_id, team_id, class, start_time, end_time,
			status, notes, auto_assigned, reason, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		s.ID, s.TemplateID, s.EmployeeID, s.TeamID, s.Class, s.Start, s.End,
		s.Status, s.Notes, s.AutoAssigned, s.Reason, s.Version,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return wrapErr(err, "shift")
}

func (r *ShiftRepo) Update(ctx context.Context, s *domain.Shift) error {
	query := `
		UPDATE shifts SET
			employee_id = $3, start_time = $4, end_time = $5, status = $6,
			notes = $7, reason = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		s.ID, s.Version, s.EmployeeID, s.Start, s.End, s.Status, s.Notes, s.Reason,
	).Scan(&s.Version, &s.UpdatedAt)
	return r.staleOrMissing(ctx, s.ID, err)
}

func (r *ShiftRepo) Reassign(ctx context.Context, shiftID, employeeID string, version int) error {
	query := `
		UPDATE shifts SET employee_id = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, shiftID, version, employeeID)
	if err != nil {
		return wrapErr(err, "shift")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.staleOrMissing(ctx, shiftID, errStale)
	}
	return nil
}

// Delete cancels a shift and soft-deletes the row.
func (r *ShiftRepo) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE shifts SET status = 'cancelled', version = version + 1,
			updated_at = NOW(), deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(err, "shift")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("shift")
	}
	return nil
}

var errStale = fmt.Errorf("stale row")

// staleOrMissing distinguishes a version conflict from a missing row
// after a zero-row version-checked update.
func (r *ShiftRepo) staleOrMissing(ctx context.Context, id string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, errStale) {
		return wrapErr(err, "shift")
	}
	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1 AND deleted_at IS NULL)`
	if probeErr := r.q.GetContext(ctx, &exists, probe, id); probeErr != nil {
		return wrapErr(probeErr, "shift")
	}
	if !exists {
		return errors.NotFound("shift")
	}
	return errors.StaleState("shift")
}

const patternColumns = `
	id, template_id, kind, start_time, end_time, weekdays, day_of_month,
	pattern_start, pattern_end, employee_id, team_id, active,
	last_generated_through, created_by, created_at, updated_at, deleted_at`

// PatternRepo persists recurring shift patterns.
type PatternRepo struct {
	q queryer
}

func (r *PatternRepo) GetByID(ctx context.Context, id string) (*domain.RecurringShiftPattern, error) {
	var p domain.RecurringShiftPattern
	query := `SELECT` + patternColumns + ` FROM recurring_shift_patterns
		WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &p, query, id); err != nil {
		return nil, wrapErr(err, "pattern")
	}
	return &p, nil
}

func (r *PatternRepo) ListActive(ctx context.Context) ([]domain.RecurringShiftPattern, error) {
	patterns := []domain.RecurringShiftPattern{}
	query := `SELECT` + patternColumns + ` FROM recurring_shift_patterns
		WHERE active = true AND deleted_at IS NULL
		ORDER BY id`
	if err := r.q.SelectContext(ctx, &patterns, query); err != nil {
		return nil, wrapErr(err, "pattern")
	}
	return patterns, nil
}

func (r *PatternRepo) Create(ctx context.Context, p *domain.RecurringShiftPattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO recurring_shift_patterns (
			id, template_id, kind, start_time, end_time, weekdays, day_of_month,
			pattern_start, pattern_end, employee_id, team_id, active, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		p.ID, p.TemplateID, p.Kind, p.StartTime, p.EndTime, p.Weekdays, p.DayOfMonth,
		p.PatternStart, p.PatternEnd, p.EmployeeID, p.TeamID, p.Active, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return wrapErr(err, "pattern")
}

func (r *PatternRepo) Update(ctx context.Context, p *domain.RecurringShiftPattern) error {
	query := `
		UPDATE recurring_shift_patterns SET
			kind = $2, start_time = $3, end_time = $4, weekdays = $5,
			day_of_month = $6, pattern_start = $7, pattern_end = $8,
			employee_id = $9, team_id = $10, active = $11,
			last_generated_through = $12, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		p.ID, p.Kind, p.StartTime, p.EndTime, p.Weekdays, p.DayOfMonth,
		p.PatternStart, p.PatternEnd, p.EmployeeID, p.TeamID, p.Active,
		p.LastGeneratedThrough,
	).Scan(&p.UpdatedAt)
	return wrapErr(err, "pattern")
}

func (r *PatternRepo) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE recurring_shift_patterns SET active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(err, "pattern")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("pattern")
	}
	return nil
}
