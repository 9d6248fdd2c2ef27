package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const swapColumns = `
	id, requester_id, target_id, requesting_shift_id, target_shift_id,
	reason, status, rule_id, version, decided_at, created_at, updated_at`

// SwapRepo persists swap requests.
type SwapRepo struct {
	q queryer
}

func (r *SwapRepo) GetByID(ctx context.Context, id string) (*domain.SwapRequest, error) {
	var s domain.SwapRequest
	query := `SELECT` + swapColumns + ` FROM swap_requests WHERE id = $1`
	if err := r.q.GetContext(ctx, &s, query, id); err != nil {
		return nil, wrapErr(err, "swap request")
	}
	return &s, nil
}

// GetByIDLocked acquires a row lock held until the enclosing transaction
// ends, serializing concurrent decisions on one request.
func (r *SwapRepo) GetByIDLocked(ctx context.Context, id string) (*domain.SwapRequest, error) {
	var s domain.SwapRequest
	query := `SELECT` + swapColumns + ` FROM swap_requests WHERE id = $1 FOR UPDATE`
	if err := r.q.GetContext(ctx, &s, query, id); err != nil {
		return nil, wrapErr(err, "swap request")
	}
	return &s, nil
}

func (r *SwapRepo) ListByStatus(ctx context.Context, status domain.SwapStatus) ([]domain.SwapRequest, error) {
	swaps := []domain.SwapRequest{}
	query := `SELECT` + swapColumns + ` FROM swap_requests
		WHERE status = $1 ORDER BY created_at, id`
	if err := r.q.SelectContext(ctx, &swaps, query, status); err != nil {
		return nil, wrapErr(err, "swap request")
	}
	return swaps, nil
}

func (r *SwapRepo) ListForEmployee(ctx context.Context, employeeID string) ([]domain.SwapRequest, error) {
	swaps := []domain.SwapRequest{}
	query := `SELECT` + swapColumns + ` FROM swap_requests
		WHERE requester_id = $1 OR target_id = $1
		ORDER BY created_at DESC, id`
	if err := r.q.SelectContext(ctx, &swaps, query, employeeID); err != nil {
		return nil, wrapErr(err, "swap request")
	}
	return swaps, nil
}

func (r *SwapRepo) Create(ctx context.Context, s *domain.SwapRequest) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	query := `
		INSERT INTO swap_requests (
			id, requester_id, target_id, requesting_shift_id, target_shift_id,
			reason, status, rule_id, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		s.ID, s.RequesterID, s.TargetID, s.RequestingShiftID, s.TargetShiftID,
		s.Reason, s.Status, s.RuleID, s.Version,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return wrapErr(err, "swap request")
}

func (r *SwapRepo) UpdateStatus(ctx context.Context, s *domain.SwapRequest) error {
	query := `
		UPDATE swap_requests SET
			status = $3, rule_id = $4, decided_at = $5,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		s.ID, s.Version, s.Status, s.RuleID, s.DecidedAt,
	).Scan(&s.Version, &s.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapErr(err, "swap request")
	}
	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM swap_requests WHERE id = $1)`
	if probeErr := r.q.GetContext(ctx, &exists, probe, s.ID); probeErr != nil {
		return wrapErr(probeErr, "swap request")
	}
	if !exists {
		return errors.NotFound("swap request")
	}
	return errors.StaleState("swap request")
}

func (r *SwapRepo) CountApprovedInMonth(ctx context.Context, employeeID string, ref time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM swap_requests
		WHERE requester_id = $1 AND status = 'approved'
		  AND decided_at >= date_trunc('month', $2::timestamptz)
		  AND decided_at < date_trunc('month', $2::timestamptz) + interval '1 month'`
	if err := r.q.GetContext(ctx, &count, query, employeeID, ref); err != nil {
		return 0, wrapErr(err, "swap request")
	}
	return count, nil
}
