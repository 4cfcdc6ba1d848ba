package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cragline/service-booking/internal/config"
	bookingEvents "github.com/cragline/service-booking/internal/events"
	"github.com/cragline/service-booking/internal/handler"
	"github.com/cragline/service-booking/internal/platform/auth"
	"github.com/cragline/service-booking/internal/platform/database"
	"github.com/cragline/service-booking/internal/platform/health"
	"github.com/cragline/service-booking/internal/platform/logger"
	"github.com/cragline/service-booking/internal/platform/middleware"
)

const serviceName = "service-booking"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Booking and capacity engine for climbing sessions",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newReconcileCmd())
	return root
}

// bootstrap loads configuration and the logger shared by every subcommand.
func bootstrap() (*config.ServiceConfig, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session event consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return database.RunMigrations(cfg.DBConfig.DatabaseURL(), log)
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute a session's active booking counter from booking rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("invalid --session: %w", err)
			}
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.ReconcileSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d -> %d\n", result.SessionID, result.Before, result.After)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to reconcile")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func serve(parent context.Context, cfg *config.ServiceConfig, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
		zap.String("broker", cfg.EventBroker),
	)

	if cfg.StorageDriver == config.StorageDriverPostgres {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, 15*time.Minute, 7*24*time.Hour)
	if cfg.JWTConfig.Issuer != "" {
		jwtManager = jwtManager.WithIssuer(cfg.JWTConfig.Issuer)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.EventBroker == config.EventBrokerKafka {
		groupID := cfg.KafkaConfig.GroupPrefix + serviceName
		sessionConsumer := bookingEvents.NewSessionEventConsumer(cfg.KafkaConfig.Brokers, groupID, a.service, log)
		defer func() { _ = sessionConsumer.Close() }()

		go func() {
			log.Info("starting session event consumer")
			if err := sessionConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("session event consumer error", zap.Error(err))
			}
		}()
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.NewRateLimiter(cfg.RateLimit, a.redis, log).Middleware())

	health.NewHandler(a.db, serviceName).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewBookingHandler(a.service).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewSessionHandler(a.service).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(a.service).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("shutting down service-booking...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-booking stopped")
	return nil
}
