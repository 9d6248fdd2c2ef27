package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const leaveColumns = `
	id, employee_id, leave_type, start_date, end_date, days_requested,
	status, reason, decided_by, decided_at, decision_note, version,
	created_at, updated_at`

// LeaveRepo persists leave requests.
type LeaveRepo struct {
	q queryer
}

func (r *LeaveRepo) GetByID(ctx context.Context, id string) (*domain.LeaveRequest, error) {
	var l domain.LeaveRequest
	query := `SELECT` + leaveColumns + ` FROM leave_requests WHERE id = $1`
	if err := r.q.GetContext(ctx, &l, query, id); err != nil {
		return nil, wrapErr(err, "leave request")
	}
	return &l, nil
}

func (r *LeaveRepo) ListIntersecting(ctx context.Context, f service.LeaveFilter) ([]domain.LeaveRequest, error) {
	var (
		clauses = []string{"1 = 1"}
		args    []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployeeID != nil {
		clauses = append(clauses, "l.employee_id = "+arg(*f.EmployeeID))
	}
	if f.TeamID != nil {
		clauses = append(clauses, "e.team_id = "+arg(*f.TeamID))
	}
	if !f.Start.IsZero() {
		clauses = append(clauses, "l.end_date >= "+arg(f.Start))
	}
	if !f.End.IsZero() {
		clauses = append(clauses, "l.start_date <= "+arg(f.End))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, "l.status = ANY("+arg(pq.StringArray(statuses))+")")
	}

	query := `SELECT
		l.id, l.employee_id, l.leave_type, l.start_date, l.end_date,
		l.days_requested, l.status, l.reason, l.decided_by, l.decided_at,
		l.decision_note, l.version, l.created_at, l.updated_at
		FROM leave_requests l
		JOIN employees e ON e.id = l.employee_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY l.start_date, l.id`
	leaves := []domain.LeaveRequest{}
	if err := r.q.SelectContext(ctx, &leaves, query, args...); err != nil {
		return nil, wrapErr(err, "leave request")
	}
	return leaves, nil
}

func (r *LeaveRepo) Create(ctx context.Context, l *domain.LeaveRequest) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	query := `
		INSERT INTO leave_requests (
			id, employee_id, leave_type, start_date, end_date,
			days_requested, status, reason, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		l.ID, l.EmployeeID, l.LeaveType, l.StartDate, l.EndDate,
		l.DaysRequested, l.Status, l.Reason, l.Version,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	return wrapErr(err, "leave request")
}

func (r *LeaveRepo) UpdateStatus(ctx context.Context, l *domain.LeaveRequest) error {
	query := `
		UPDATE leave_requests SET
			status = $3, decided_by = $4, decided_at = $5, decision_note = $6,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		l.ID, l.Version, l.Status, l.DecidedBy, l.DecidedAt, l.DecisionNote,
	).Scan(&l.Version, &l.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapErr(err, "leave request")
	}
	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM leave_requests WHERE id = $1)`
	if probeErr := r.q.GetContext(ctx, &exists, probe, l.ID); probeErr != nil {
		return wrapErr(probeErr, "leave request")
	}
	if !exists {
		return errors.NotFound("leave request")
	}
	return errors.StaleState("leave request")
}

func (r *LeaveRepo) DaysUsedInYear(ctx context.Context, employeeID string, year int) (float64, error) {
	var days float64
	query := `
		SELECT COALESCE(SUM(days_requested), 0)
		FROM leave_requests
		WHERE employee_id = $1 AND status = 'approved'
		  AND EXTRACT(YEAR FROM start_date) = $2`
	if err := r.q.GetContext(ctx, &days, query, employeeID, year); err != nil {
		return 0, wrapErr(err, "leave request")
	}
	return days, nil
}
