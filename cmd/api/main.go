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

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medvault-api/internal/config"
	"github.com/jwalitptl/medvault-api/internal/handler/appointment"
	"github.com/jwalitptl/medvault-api/internal/handler/doctor"
	"github.com/jwalitptl/medvault-api/internal/handler/feedback"
	"github.com/jwalitptl/medvault-api/internal/handler/health"
	"github.com/jwalitptl/medvault-api/internal/middleware"
	"github.com/jwalitptl/medvault-api/internal/repository/postgres"
	"github.com/jwalitptl/medvault-api/internal/router"
	appointmentService "github.com/jwalitptl/medvault-api/internal/service/appointment"
	directoryService "github.com/jwalitptl/medvault-api/internal/service/directory"
	eventService "github.com/jwalitptl/medvault-api/internal/service/event"
	feedbackService "github.com/jwalitptl/medvault-api/internal/service/feedback"
	"github.com/jwalitptl/medvault-api/pkg/auth"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/metrics"
	"github.com/jwalitptl/medvault-api/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(baseRepo)
	appointmentRepo := postgres.NewAppointmentRepository(baseRepo)
	feedbackRepo := postgres.NewFeedbackRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	transactor := postgres.NewTransactor(baseRepo)

	m := metrics.NewMetrics("medvault", nil)

	// Initialize services
	directorySvc := directoryService.NewService(userRepo, security.NewBcryptHasher(bcrypt.DefaultCost), cfg.Directory.CacheTTL, appLogger)
	eventSvc := eventService.NewService(outboxRepo, appLogger)
	appointmentSvc := appointmentService.NewService(appointmentRepo, transactor, directorySvc, eventSvc, cfg.Schedule.Slots, m, appLogger)
	feedbackSvc := feedbackService.NewService(feedbackRepo, transactor, appointmentRepo, directorySvc, eventSvc, m, appLogger)

	if _, err := directorySvc.EnsureAdmin(context.Background(), cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to create bootstrap admin")
	}

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 0))

	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORS:           middleware.CORSConfig{AllowOrigins: cfg.Server.CORSOrigins, MaxAge: 12 * time.Hour},
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		}
	}

	// Setup router
	r := router.NewRouter(routerConfig, m,
		health.NewHandler(db),
		doctor.NewHandler(directorySvc, authMiddleware),
		appointment.NewHandler(appointmentSvc, authMiddleware, cfg.Schedule.Location()),
		feedback.NewHandler(feedbackSvc, authMiddleware),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
