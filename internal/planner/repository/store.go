// Package repository implements the planner store on PostgreSQL via sqlx.
package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/database"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/logger"
)

// queryer is the sqlx surface shared by *sqlx.DB and *sqlx.Tx, so every
// repository works both directly and inside a transaction.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store is the sqlx-backed implementation of service.Store.
type Store struct {
	db   *database.DB
	q    queryer
	inTx bool
	log  *logger.Logger
}

// New creates a store over the given database handle.
func New(db *database.DB, log *logger.Logger) *Store {
	return &Store{db: db, q: db.DB, log: log}
}

// Atomically runs fn against a store bound to one transaction. Nested
// calls join the enclosing transaction.
func (s *Store) Atomically(ctx context.Context, fn func(service.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&Store{db: s.db, q: tx, inTx: true, log: s.log})
	})
}

func (s *Store) Employees() service.EmployeeRepository {
	return &EmployeeRepo{q: s.q}
}

func (s *Store) Teams() service.TeamRepository {
	return &TeamRepo{q: s.q}
}

func (s *Store) Templates() service.TemplateRepository {
	return &TemplateRepo{q: s.q}
}

func (s *Store) Shifts() service.ShiftRepository {
	return &ShiftRepo{q: s.q}
}

func (s *Store) Patterns() service.PatternRepository {
	return &PatternRepo{q: s.q}
}

func (s *Store) Leaves() service.LeaveRepository {
	return &LeaveRepo{q: s.q}
}

func (s *Store) Swaps() service.SwapRepository {
	return &SwapRepo{q: s.q}
}

func (s *Store) Approvals() service.ApprovalRepository {
	return &ApprovalRepo{q: s.q}
}

func (s *Store) Notifications() service.NotificationRepository {
	return &NotificationRepo{q: s.q}
}

// wrapErr maps driver errors to the application taxonomy. resource names
// the entity for not-found messages.
func wrapErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource)
	}
	if app := database.MapPQError(err); app != nil {
		return app
	}
	return err
}
