// Package handler exposes the planner services over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/teamplanner/planner-backend/pkg/actor"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/database"
	"github.com/teamplanner/planner-backend/pkg/errors"
	"github.com/teamplanner/planner-backend/pkg/httputil"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/messaging"
)

// Handlers bundles every route group of the planner service.
type Handlers struct {
	Schedule     *ScheduleHandler
	Shift        *ShiftHandler
	Template     *TemplateHandler
	Pattern      *PatternHandler
	Swap         *SwapHandler
	Leave        *LeaveHandler
	Notification *NotificationHandler
	Directory    *DirectoryHandler
}

// NewRouter assembles the chi router with the standard middleware stack.
func NewRouter(cfg *config.Config, h *Handlers, db *database.DB, mq *messaging.RabbitMQ, log *logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.ActorMiddleware(&cfg.Auth))

	r.Get("/health", healthHandler(db, mq))

	r.Route("/api/v1/planner", func(r chi.Router) {
		r.Route("/schedule", func(r chi.Router) {
			r.Post("/preview", h.Schedule.Preview)
			r.Post("/apply", h.Schedule.Apply)
			r.Get("/fairness", h.Schedule.Fairness)
			r.Get("/conflicts", h.Schedule.Conflicts)
			r.Get("/availability", h.Schedule.Availability)
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.Shift.List)
			r.Post("/", h.Shift.Create)
			r.Get("/export", h.Shift.Export)
			r.Post("/import", h.Shift.Import)
			r.Route("/bulk", func(r chi.Router) {
				r.Post("/create-from-template", h.Shift.BulkCreate)
				r.Post("/assign", h.Shift.BulkAssign)
				r.Post("/times", h.Shift.BulkModifyTimes)
				r.Post("/delete", h.Shift.BulkDelete)
			})
			r.Get("/{id}", h.Shift.Get)
			r.Patch("/{id}", h.Shift.Update)
			r.Delete("/{id}", h.Shift.Delete)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.Template.List)
			r.Post("/", h.Template.Create)
			r.Get("/{id}", h.Template.Get)
			r.Patch("/{id}", h.Template.Update)
			r.Post("/{id}/clone", h.Template.Clone)
			r.Put("/{id}/favorite", h.Template.SetFavorite)
			r.Delete("/{id}", h.Template.Deactivate)
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Post("/", h.Pattern.Create)
			r.Post("/generate", h.Pattern.BulkGenerate)
			r.Get("/{id}/preview", h.Pattern.Preview)
			r.Post("/{id}/generate", h.Pattern.Generate)
		})

		r.Route("/swaps", func(r chi.Router) {
			r.Post("/", h.Swap.Submit)
			r.Get("/pending", h.Swap.ListPending)
			r.Get("/mine", h.Swap.ListMine)
			r.Post("/steps/{stepID}/decide", h.Swap.Decide)
			r.Post("/{id}/cancel", h.Swap.Cancel)
			r.Get("/{id}/audit", h.Swap.Audit)
			r.Route("/rules", func(r chi.Router) {
				r.Get("/", h.Swap.ListRules)
				r.Post("/", h.Swap.CreateRule)
				r.Put("/{id}", h.Swap.UpdateRule)
			})
			r.Post("/delegations", h.Swap.CreateDelegation)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.Leave.Submit)
			r.Get("/", h.Leave.List)
			r.Post("/recommend", h.Leave.Recommend)
			r.Get("/suggestions", h.Leave.Suggestions)
			r.Get("/{id}/conflicts", h.Leave.Conflicts)
			r.Post("/{id}/decide", h.Leave.Decide)
			r.Post("/{id}/cancel", h.Leave.Cancel)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.Notification.List)
			r.Post("/read-all", h.Notification.MarkAllRead)
			r.Post("/{id}/read", h.Notification.MarkRead)
			r.Get("/preferences", h.Notification.Preferences)
			r.Put("/preferences", h.Notification.UpdatePreference)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.Directory.ListEmployees)
			r.Post("/", h.Directory.CreateEmployee)
			r.Get("/{id}", h.Directory.GetEmployee)
			r.Put("/{id}", h.Directory.UpdateEmployee)
			r.Delete("/{id}", h.Directory.DeactivateEmployee)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Get("/", h.Directory.ListTeams)
			r.Post("/", h.Directory.CreateTeam)
			r.Get("/{id}", h.Directory.GetTeam)
			r.Put("/{id}", h.Directory.UpdateTeam)
		})
	})

	return r
}

func healthHandler(db *database.DB, mq *messaging.RabbitMQ) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]interface{}{
			"database": db.Health(r.Context()),
		}
		if mq != nil {
			checks["rabbitmq"] = mq.Health()
		}
		httputil.JSON(w, http.StatusOK, checks)
	}
}

// requireActor returns the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) *actor.Actor {
	a := actor.FromContext(r.Context())
	if a == nil {
		httputil.Error(w, errors.Unauthorized("authentication required"))
		return nil
	}
	return a
}
