package database

import (
	"github.com/lib/pq"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful
// messages. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505). The chain-level and leave-window
	// constraints surface here as blocking conflicts.
	case "23505":
		return errors.ConflictBlocking(constraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation (23514)
	case "23514":
		return errors.BadRequest(constraintMessage(pqErr))

	default:
		return nil
	}
}

func constraintMessage(pqErr *pq.Error) string {
	switch pqErr.Constraint {
	case "uq_chain_step_level":
		return "a chain step already exists at this level"
	case "uq_leave_employee_day":
		return "an overlapping leave request already exists"
	case "ck_shift_interval":
		return "shift end must be after shift start"
	default:
		if pqErr.Constraint != "" {
			return "constraint violated: " + pqErr.Constraint
		}
		return "database constraint violated"
	}
}
