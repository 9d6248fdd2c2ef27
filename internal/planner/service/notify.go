package service

import (
	"context"
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

// Notifier is the event sink: it writes in-app notification rows and
// enqueues email payloads per recipient preference. Delivery failures
// are logged and never escalate to the originating operation.
type Notifier struct {
	clock  calendar.Clock
	cal    *calendar.Calendar
	events EventPublisher
	log    *logger.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(clock calendar.Clock, cal *calendar.Calendar, events EventPublisher, log *logger.Logger) *Notifier {
	return &Notifier{clock: clock, cal: cal, events: events, log: log}
}

// Emit delivers one notification through the store binding of the
// caller's transaction. In-app creation and email gating are
// independent: a disabled email preference or quiet hours never
// suppress the in-app row, and quiet hours delay email rather than
// drop it.
func (n *Notifier) Emit(ctx context.Context, st Store, event *domain.NotificationEvent, recipientEmail string) {
	pref, err := st.Notifications().GetPreference(ctx, event.RecipientID, event.Class)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			n.log.Warn().Err(err).Str("recipient_id", event.RecipientID).Msg("failed to load notification preference")
		}
		pref = domain.DefaultPreference(event.RecipientID, event.Class)
	}

	if pref.InAppEnabled {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		event.InAppEnabled = true
		event.EmailEnabled = pref.EmailEnabled
		if err := st.Notifications().Create(ctx, event); err != nil {
			n.log.Warn().Err(err).Str("recipient_id", event.RecipientID).Msg("failed to write in-app notification")
		}
	}

	if !pref.EmailEnabled || recipientEmail == "" {
		return
	}
	payload := messaging.EmailPayload{
		RecipientID: event.RecipientID,
		To:          recipientEmail,
		Subject:     event.Title,
		Body:        event.Body,
	}
	if event.ActionURL != nil {
		payload.ActionURL = *event.ActionURL
	}
	if after := n.quietHoursEnd(pref); after != nil {
		payload.DeliverAfter = after
	}
	if err := n.events.Publish(ctx, messaging.EventEmailEnqueued, payload); err != nil {
		n.log.Warn().Err(err).Str("recipient_id", event.RecipientID).Msg("failed to enqueue email")
	}
}

// quietHoursEnd returns the instant quiet hours end if now falls inside
// the recipient's quiet interval, nil otherwise. Intervals may wrap
// midnight (22:00..07:00).
func (n *Notifier) quietHoursEnd(pref *domain.NotificationPreference) *time.Time {
	if pref.QuietHoursStart == nil || pref.QuietHoursEnd == nil {
		return nil
	}
	loc := n.cal.Location()
	now := n.clock.Now().In(loc)
	today := calendar.DateOf(now, loc)

	sh, sm := parseTimeOfDay(*pref.QuietHoursStart, 22, 0)
	eh, em := parseTimeOfDay(*pref.QuietHoursEnd, 7, 0)

	start := today.At(sh, sm, loc)
	end := today.At(eh, em, loc)

	if end.After(start) {
		// Same-day interval
		if !now.Before(start) && now.Before(end) {
			return &end
		}
		return nil
	}
	// Wrapping interval: inside if after start today or before end today
	if !now.Before(start) {
		e := today.AddDays(1).At(eh, em, loc)
		return &e
	}
	if now.Before(end) {
		return &end
	}
	return nil
}

// NotificationService exposes the notification inbox and preferences.
type NotificationService struct {
	store Store
	perms permissions.Checker
	log   *logger.Logger
}

// NewNotificationService creates a notification service.
func NewNotificationService(store Store, perms permissions.Checker, log *logger.Logger) *NotificationService {
	return &NotificationService{store: store, perms: perms, log: log}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, a *actor.Actor, unreadOnly bool, limit int) ([]domain.NotificationEvent, error) {
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Notifications().List(ctx, a.EmployeeID, unreadOnly, limit)
}

// MarkRead marks one notification of the actor as read.
func (s *NotificationService) MarkRead(ctx context.Context, a *actor.Actor, notificationID string) error {
	if a.EmployeeID == "" {
		return errors.BadRequest("actor has no employee identity")
	}
	return s.store.Notifications().MarkRead(ctx, a.EmployeeID, notificationID)
}

// MarkAllRead marks every notification of the actor as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, a *actor.Actor) error {
	if a.EmployeeID == "" {
		return errors.BadRequest("actor has no employee identity")
	}
	return s.store.Notifications().MarkAllRead(ctx, a.EmployeeID)
}

// Preferences returns the actor's stored preferences.
func (s *NotificationService) Preferences(ctx context.Context, a *actor.Actor) ([]domain.NotificationPreference, error) {
	if a.EmployeeID == "" {
		return nil, errors.BadRequest("actor has no employee identity")
	}
	return s.store.Notifications().ListPreferences(ctx, a.EmployeeID)
}

// UpdatePreference upserts one per-class preference of the actor.
func (s *NotificationService) UpdatePreference(ctx context.Context, a *actor.Actor, p *domain.NotificationPreference) error {
	if a.EmployeeID == "" {
		return errors.BadRequest("actor has no employee identity")
	}
	if !p.Class.IsValid() {
		return errors.BadRequest("unknown notification class")
	}
	p.EmployeeID = a.EmployeeID
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return s.store.Notifications().UpsertPreference(ctx, p)
}
