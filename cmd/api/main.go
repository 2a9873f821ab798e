// Entry point for the attendance API: HTTP surface, phase scheduler and
// stores all live in this process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"attendance.service/internal/api"
	"attendance.service/internal/api/handler"
	"attendance.service/internal/config"
	"attendance.service/internal/core/clock"
	"attendance.service/internal/core/engine"
	"attendance.service/internal/core/grace"
	"attendance.service/internal/core/registry"
	"attendance.service/internal/core/schedule"
	"attendance.service/internal/core/sweep"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
	"attendance.service/pkg/aws"
	"attendance.service/pkg/database"
	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	// Configure structured logging
	logger.Setup("attendance-api", cfg.IsLocalDev)

	// Configure OpenTelemetry Tracing
	shutdownTracer, err := telemetry.InitTracer("attendance-api", cfg.OTLPEndpoint, cfg.IsLocalDev)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	// DB connection
	db, err := database.NewInstrumentedConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	// Stores
	sessionStore := repository.NewSessionRepository(db)
	attendanceStore := repository.NewAttendanceRepository(db)
	members := repository.NewMemberRepository(db)

	// Exit grace state: in-memory by default, Redis when configured so
	// open exit windows survive a restart.
	var graceStore grace.Store = grace.NewMemoryStore()
	if cfg.RedisAddr != "" {
		graceStore = grace.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis-backed exit grace store")
	}

	// Engine wiring: scheduler publishes phase events to SQS; the late
	// phase also runs the absence sweep.
	sqsClient := sqs.NewFromConfig(awsCfg)
	notifier := messaging.NewSQSProducer(sqsClient, cfg.NotifySQSQueueURL)
	sweeper := sweep.New(attendanceStore, members)
	clk := clock.System()
	scheduler := schedule.New(clk, notifier, sweeper)
	defer scheduler.Close()

	sessionRegistry := registry.New(sessionStore, attendanceStore, scheduler, clk)
	if err := sessionRegistry.Restore(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore sessions")
	}

	evaluator := engine.New(sessionRegistry, attendanceStore, members, grace.NewTracker(graceStore))

	// Setup router and server
	router := api.NewRouter(&handler.Handler{
		Registry:  sessionRegistry,
		Evaluator: evaluator,
		Roles:     members,
		Clock:     clk,
	})

	// Middleware to inject logger with trace ID
	loggerMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.EnrichContextWithLogger(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	// Wrap the router with OpenTelemetry middleware to create spans for each request
	httpHandler := otelhttp.NewHandler(loggerMiddleware(router), "api")

	serverAddr := ":" + cfg.ServerPort
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: httpHandler,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Attendance API starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Give in-flight requests 5 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
