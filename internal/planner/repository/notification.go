package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/teamplanner/planner-backend/internal/planner/domain"
	"github.com/teamplanner/planner-backend/pkg/errors"
)

const notificationColumns = `
	id, recipient_id, class, title, body, action_url, shift_id, leave_id,
	swap_id, email_enabled, in_app_enabled, is_read, created_at`

const preferenceColumns = `
	id, employee_id, class, email_enabled, in_app_enabled,
	quiet_hours_start, quiet_hours_end, updated_at`

// NotificationRepo persists in-app notifications and preferences.
type NotificationRepo struct {
	q queryer
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.NotificationEvent) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notifications (
			id, recipient_id, class, title, body, action_url, shift_id,
			leave_id, swap_id, email_enabled, in_app_enabled, is_read
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`
	err := r.q.QueryRowxContext(ctx, query,
		n.ID, n.RecipientID, n.Class, n.Title, n.Body, n.ActionURL, n.ShiftID,
		n.LeaveID, n.SwapID, n.EmailEnabled, n.InAppEnabled, n.IsRead,
	).Scan(&n.CreatedAt)
	return wrapErr(err, "notification")
}

func (r *NotificationRepo) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.NotificationEvent, error) {
	notifications := []domain.NotificationEvent{}
	query := `SELECT` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2`
	if err := r.q.SelectContext(ctx, &notifications, query, recipientID, limit); err != nil {
		return nil, wrapErr(err, "notification")
	}
	return notifications, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	query := `UPDATE notifications SET is_read = true
		WHERE id = $1 AND recipient_id = $2`
	res, err := r.q.ExecContext(ctx, query, notificationID, recipientID)
	if err != nil {
		return wrapErr(err, "notification")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("notification")
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string) error {
	query := `UPDATE notifications SET is_read = true
		WHERE recipient_id = $1 AND is_read = false`
	_, err := r.q.ExecContext(ctx, query, recipientID)
	return wrapErr(err, "notification")
}

func (r *NotificationRepo) GetPreference(ctx context.Context, employeeID string, class domain.NotificationClass) (*domain.NotificationPreference, error) {
	var p domain.NotificationPreference
	query := `SELECT` + preferenceColumns + ` FROM notification_preferences
		WHERE employee_id = $1 AND class = $2`
	if err := r.q.GetContext(ctx, &p, query, employeeID, class); err != nil {
		return nil, wrapErr(err, "notification preference")
	}
	return &p, nil
}

func (r *NotificationRepo) ListPreferences(ctx context.Context, employeeID string) ([]domain.NotificationPreference, error) {
	preferences := []domain.NotificationPreference{}
	query := `SELECT` + preferenceColumns + ` FROM notification_preferences
		WHERE employee_id = $1
		ORDER BY class`
	if err := r.q.SelectContext(ctx, &preferences, query, employeeID); err != nil {
		return nil, wrapErr(err, "notification preference")
	}
	return preferences, nil
}

func (r *NotificationRepo) UpsertPreference(ctx context.Context, p *domain.NotificationPreference) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO notification_preferences (
			id, employee_id, class, email_enabled, in_app_enabled,
			quiet_hours_start, quiet_hours_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id, class) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			in_app_enabled = EXCLUDED.in_app_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			updated_at = NOW()
		RETURNING id, updated_at`
	err := r.q.QueryRowxContext(ctx, query,
		p.ID, p.EmployeeID, p.Class, p.EmailEnabled, p.InAppEnabled,
		p.QuietHoursStart, p.QuietHoursEnd,
	).Scan(&p.ID, &p.UpdatedAt)
	return wrapErr(err, "notification preference")
}
