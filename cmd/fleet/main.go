package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mbyo2/vehicle-log-sys/internal/app"
	"github.com/mbyo2/vehicle-log-sys/internal/audit"
	audithttp "github.com/mbyo2/vehicle-log-sys/internal/audit/http"
	"github.com/mbyo2/vehicle-log-sys/internal/auth"
	"github.com/mbyo2/vehicle-log-sys/internal/directory"
	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/workflow"
	workflowhttp "github.com/mbyo2/vehicle-log-sys/internal/workflow/http"
	"github.com/mbyo2/vehicle-log-sys/jobs"
)

// transitionSink forwards committed transitions to the audit queue and fans
// them out to operator notifications.
type transitionSink struct {
	audit  *audit.QueueSink
	client *jobs.Client
	logger *slog.Logger
}

func (s transitionSink) Append(ctx context.Context, ev workflow.Event) error {
	if err := s.audit.Append(ctx, ev); err != nil {
		return err
	}
	task, err := jobs.NewNotifyTransitionTask(jobs.NotifyTransitionPayload{
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Action:      ev.Action,
		ToState:     ev.ToState,
		PrincipalID: ev.PrincipalID,
	})
	if err != nil {
		return err
	}
	if _, err := s.client.Enqueue(ctx, task); err != nil {
		s.logger.Warn("enqueue transition notification", slog.Any("error", err))
	}
	return nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := rbac.DefaultRegistry()
	catalog := rbac.DefaultCatalog()
	if err := catalog.Validate(registry); err != nil {
		logger.Error("validate capability catalog", slog.Any("error", err))
		os.Exit(1)
	}

	overrideStore := rbac.NewCachedOverrideStore(
		rbac.NewPGOverrideStore(dbpool), redisClient, cfg.OverrideCacheTTL)
	resolver := rbac.NewResolver(catalog, overrideStore, logger)

	table, err := workflow.DefaultTable(registry)
	if err != nil {
		logger.Error("load transition rule table", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sink := transitionSink{
		audit:  audit.NewQueueSink(jobClient, logger),
		client: jobClient,
		logger: logger,
	}

	store := workflow.NewPGStore(dbpool)
	machine := workflow.NewMachine(table, resolver, store, sink, logger)

	directoryService := directory.NewService(directory.NewRepository(dbpool))
	tokenStore := auth.NewTokenStore(redisClient, cfg.AuthTokenTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), directoryService, tokenStore)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Tokens: tokenStore, Directory: directoryService, Logger: logger}

	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}
	permissionsHandler := rbac.NewPermissionsHandler(resolver, logger)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService)

	workflowHandler := workflowhttp.NewHandler(logger, machine)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		AuthMiddleware:     authMiddleware,
		RBACMiddleware:     rbacMiddleware,
		WorkflowHandler:    workflowHandler,
		PermissionsHandler: permissionsHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
