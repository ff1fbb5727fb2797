package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/infrastructure/persistence"
	"github.com/iota-uz/taskflow/modules/tasks/presentation/controllers"
	"github.com/iota-uz/taskflow/modules/tasks/services"
	"github.com/iota-uz/taskflow/pkg/configuration"
	"github.com/iota-uz/taskflow/pkg/eventbus"
	"github.com/iota-uz/taskflow/pkg/metrics"
	"github.com/iota-uz/taskflow/pkg/middleware"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		logger.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	publisher := eventbus.NewEventPublisher(logger)
	registerEventLogging(publisher, logger)

	identityResolver := persistence.NewIdentityResolver()
	store := persistence.NewResourceStore()
	areas := persistence.NewAreaRepository()
	perms := persistence.NewPermissionRepository()
	actions := persistence.NewActionRepository()

	resolver := services.NewAccessResolver(identityResolver, store, areas, perms)
	visibility := services.NewVisibilityService(identityResolver, store, areas, perms)
	calculator := services.NewCascadeCalculator(store, areas)
	executor := services.NewActionExecutor(identityResolver, store, areas, perms, actions, calculator, publisher)
	membership := services.NewAreaMembershipService(identityResolver, areas, executor, publisher)

	router := mux.NewRouter()
	router.Use(
		middleware.Traced("server"),
		middleware.WithLogger(logger),
		middleware.ProvideDB(pool),
		middleware.WithRequestParams(),
	)

	api := router.NewRoute().Subrouter()
	api.Use(middleware.WithTenant())
	controllers.NewPermissionsController(resolver, visibility, executor, actions).Register(api)
	controllers.NewAreasController(membership).Register(api)

	if conf.Prometheus.Enabled {
		metrics.NewPrometheusController(conf.Prometheus.Path).Register(router)
	}
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         conf.SocketAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", conf.SocketAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
	conf.Unload()
}

// registerEventLogging is the default notification subscriber: every
// committed permission change and roster change leaves a structured log line.
func registerEventLogging(publisher eventbus.EventBus, logger *logrus.Logger) {
	publisher.Subscribe(func(e *action.ExecutedEvent) {
		logger.WithFields(logrus.Fields{
			"action_id":     e.Action.ID,
			"verb":          e.Action.Verb,
			"resource_type": e.Action.ResourceType,
			"resource_uid":  e.Action.ResourceUID,
			"upserts":       e.RowsUpserted,
			"deletes":       e.RowsDeleted,
		}).Info("action executed")
	})
	publisher.Subscribe(func(e *area.MemberAddedEvent) {
		logger.WithFields(logrus.Fields{
			"area_uid": e.Area.UID,
			"user_uid": e.Member.UserUID,
			"role":     e.Member.Role,
		}).Info("area member added")
	})
	publisher.Subscribe(func(e *area.MemberRemovedEvent) {
		logger.WithFields(logrus.Fields{
			"area_uid": e.Area.UID,
			"user_uid": e.UserUID,
		}).Info("area member removed")
	})
}
