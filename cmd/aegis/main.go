package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-auth/aegis/internal/app"
	"github.com/aegis-auth/aegis/internal/auth"
	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/observability"
	"github.com/aegis-auth/aegis/internal/platform/cache"
	"github.com/aegis-auth/aegis/internal/platform/db"
	"github.com/aegis-auth/aegis/internal/rbac"
	"github.com/aegis-auth/aegis/internal/users"
	"github.com/aegis-auth/aegis/jobs"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var backend cache.Backend
	if cfg.CacheStore == "memory" {
		backend = cache.NewMemoryBackend()
	} else {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		backend = cache.NewRedisBackend(redisClient)
	}

	rbacRepo := rbac.NewRepository(dbpool)
	slugCache := rbac.NewSlugCache(cfg.CacheEnabled, cfg.CacheTTL, backend, rbac.NewMemoryCounters(), logger)
	invalidator := rbac.NewInvalidator(slugCache, rbacRepo)
	rbacResolver := rbac.NewResolver(rbacRepo, slugCache)
	authorizer := rbac.Authorizer{Resolver: rbacResolver, Logger: logger}
	rbacService := rbac.NewService(rbacRepo, invalidator, cfg.ProtectedRoleSlugs, logger)
	rbacHandler := rbac.NewHandler(logger, rbacService, authorizer)

	authRepo := auth.NewRepository(dbpool)
	factory := auth.NewFactory(cfg.AuthConfig(), cfg.GuardConfig(), auth.Deps{
		Credentials: authRepo,
		Tokens:      authRepo,
		OAuthTokens: authRepo,
		Denylist:    auth.NewBackendDenylist(backend),
		Roles:       rbacRepo,
		Logger:      logger,
	})
	guardResolver := guard.NewResolver(cfg.GuardConfig(), factory.GuardProbe())

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, logger)
	verification := users.NewVerificationService(usersRepo, jobsClient, cfg.VerifyTokenTTL, cfg.VerifyRedirect)
	passwordReset := users.NewPasswordResetService(usersRepo, jobsClient, cfg.ResetTokenTTL, cfg.ResetRedirect, logger)
	usersHandler := users.NewHandler(logger, usersService, cfg.GuardConfig())

	metrics := observability.NewMetrics()
	authHandler := auth.NewHandler(logger, factory, guardResolver, usersService, verification, passwordReset, rbacService, metrics, auth.HandlerConfig{
		Throttle:        cfg.LoginThrottle,
		DefaultRoleSlug: cfg.DefaultRoleSlug,
		CheckVerified:   cfg.CheckVerified,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		GuardResolver:  guardResolver,
		AuthHandler:    authHandler,
		AuthMiddleware: auth.Middleware{Factory: factory, Logger: logger},
		Authorizer:     authorizer,
		RBACHandler:    rbacHandler,
		UsersHandler:   usersHandler,
		JobsHandler:    jobsHandler,
		Pool:           dbpool,
		Metrics:        metrics,
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
