package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const employeeColumns = `
	id, name, email, team_id, skills, fte, hire_date, active,
	available_for_incidents, available_for_waakdienst,
	created_at, updated_at, deleted_at`

// EmployeeRepo persists employees.
type EmployeeRepo struct {
	q queryer
}

func (r *EmployeeRepo) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	var e domain.Employee
	query := `SELECT` + employeeColumns + ` FROM employees WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &e, query, id); err != nil {
		return nil, wrapErr(err, "employee")
	}
	return &e, nil
}

func (r *EmployeeRepo) ListActive(ctx context.Context) ([]domain.Employee, error) {
	employees := []domain.Employee{}
	query := `SELECT` + employeeColumns + ` FROM employees
		WHERE active = true AND deleted_at IS NULL
		ORDER BY id`
	if err := r.q.SelectContext(ctx, &employees, query); err != nil {
		return nil, wrapErr(err, "employee")
	}
	return employees, nil
}

func (r *EmployeeRepo) ListByTeam(ctx context.Context, teamID string) ([]domain.Employee, error) {
	employees := []domain.Employee{}
	query := `SELECT` + employeeColumns + ` FROM employees
		WHERE team_id = $1 AND active = true AND deleted_at IS NULL
		ORDER BY id`
	if err := r.q.SelectContext(ctx, &employees, query, teamID); err != nil {
		return nil, wrapErr(err, "employee")
	}
	return employees, nil
}

func (r *EmployeeRepo) Create(ctx context.Context, e *domain.Employee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query := `
		INSERT INTO employees (
			id, name, email, team_id, skills, fte, hire_date, active,
			available_for_incidents, available_for_waakdienst
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		e.ID, e.Name, e.Email, e.TeamID, e.Skills, e.FTE, e.HireDate, e.Active,
		e.AvailableForIncidents, e.AvailableForWaakdienst,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return wrapErr(err, "employee")
}

func (r *EmployeeRepo) Update(ctx context.Context, e *domain.Employee) error {
	query := `
		UPDATE employees SET
			name = $2, email = $3, team_id = $4, skills = $5, fte = $6,
			hire_date = $7, active = $8,
			available_for_incidents = $9, available_for_waakdienst = $10,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		e.ID, e.Name, e.Email, e.TeamID, e.Skills, e.FTE, e.HireDate, e.Active,
		e.AvailableForIncidents, e.AvailableForWaakdienst,
	).Scan(&e.UpdatedAt)
	return wrapErr(err, "employee")
}

func (r *EmployeeRepo) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE employees SET active = false, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(err, "employee")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

const teamColumns = `id, name, department_id, manager_id, created_at, updated_at, deleted_at`

// TeamRepo persists teams.
type TeamRepo struct {
	q queryer
}

func (r *TeamRepo) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	var t domain.Team
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1 AND deleted_at IS NULL`
	if err := r.q.GetContext(ctx, &t, query, id); err != nil {
		return nil, wrapErr(err, "team")
	}
	return &t, nil
}

func (r *TeamRepo) List(ctx context.Context) ([]domain.Team, error) {
	teams := []domain.Team{}
	query := `SELECT ` + teamColumns + ` FROM teams WHERE deleted_at IS NULL ORDER BY name, id`
	if err := r.q.SelectContext(ctx, &teams, query); err != nil {
		return nil, wrapErr(err, "team")
	}
	return teams, nil
}

func (r *TeamRepo) Create(ctx context.Context, t *domain.Team) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	query := `
		INSERT INTO teams (id, name, department_id, manager_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query, t.ID, t.Name, t.DepartmentID, t.ManagerID).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	return wrapErr(err, "team")
}

func (r *TeamRepo) Update(ctx context.Context, t *domain.Team) error {
	query := `
		UPDATE teams SET name = $2, department_id = $3, manager_id = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`
	err := r.q.QueryRowxContext(ctx, query, t.ID, t.Name, t.DepartmentID, t.ManagerID).
		Scan(&t.UpdatedAt)
	return wrapErr(err, "team")
}
