package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teamplanner/planner-backend/internal/planner/calendar"
	"github.com/teamplanner/planner-backend/internal/planner/handler"
	"github.com/teamplanner/planner-backend/internal/planner/repository"
	"github.com/teamplanner/planner-backend/internal/planner/service"
	"github.com/teamplanner/planner-backend/pkg/config"
	"github.com/teamplanner/planner-backend/pkg/database"
	"github.com/teamplanner/planner-backend/pkg/logger"
	"github.com/teamplanner/planner-backend/pkg/messaging"
	"github.com/teamplanner/planner-backend/pkg/permissions"
)

func main() {
	cfg, err := config.LoadWithValidation("planner-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("planner-service", cfg.Server.Environment)
	log.Info().Msg("starting Planner Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareExchange(messaging.ExchangePlannerEvents); err != nil {
		log.Fatal().Err(err).Msg("failed to declare planner exchange")
	}
	if _, err := rmq.DeclareQueue(messaging.QueueEmailDelivery, messaging.ExchangePlannerEvents, messaging.EventEmailEnqueued); err != nil {
		log.Fatal().Err(err).Msg("failed to declare email queue")
	}
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePlannerEvents, "planner-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create publisher")
	}

	cal, err := calendar.New(cfg.Scheduling.OrganizationTimezone, cfg.Scheduling.Holidays)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load organization calendar")
	}
	clock := calendar.NewSystemClock(cal.Location())
	perms := permissions.ClaimsChecker{}

	store := repository.New(db, log)

	schedCfg := &cfg.Scheduling
	conflicts := service.NewConflictService(store, clock, cal, schedCfg, log)
	fairness := service.NewFairnessEngine(store, cal, schedCfg, log)
	notifier := service.NewNotifier(clock, cal, publisher, log)

	orchestrator := service.NewOrchestrator(store, clock, cal, schedCfg, perms, publisher, log)
	patterns := service.NewPatternService(store, clock, cal, schedCfg, perms, publisher, log)
	approvals := service.NewApprovalService(store, clock, cal, schedCfg, perms, publisher, notifier, log)
	leaves := service.NewLeaveService(store, clock, cal, schedCfg, conflicts, perms, publisher, notifier, log)
	shifts := service.NewShiftService(store, clock, cal, conflicts, perms, publisher, notifier, log)
	bulk := service.NewBulkService(store, clock, cal, conflicts, perms, publisher, log)
	csvio := service.NewCSVService(store, clock, cal, perms, log)
	templates := service.NewTemplateService(store, perms, log)
	notifications := service.NewNotificationService(store, perms, log)
	directory := service.NewDirectoryService(store, perms, log)

	handlers := &handler.Handlers{
		Schedule:     handler.NewScheduleHandler(orchestrator, conflicts, fairness, perms, log),
		Shift:        handler.NewShiftHandler(shifts, bulk, csvio, log),
		Template:     handler.NewTemplateHandler(templates, log),
		Pattern:      handler.NewPatternHandler(patterns, log),
		Swap:         handler.NewSwapHandler(approvals, log),
		Leave:        handler.NewLeaveHandler(leaves, conflicts, log),
		Notification: handler.NewNotificationHandler(notifications, log),
		Directory:    handler.NewDirectoryHandler(directory, log),
	}

	r := handler.NewRouter(cfg, handlers, db, rmq, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
