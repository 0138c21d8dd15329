package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/haulways/be-driver-payroll/internal/client"
	"github.com/haulways/be-driver-payroll/internal/config"
	"github.com/haulways/be-driver-payroll/internal/database"
	"github.com/haulways/be-driver-payroll/internal/handler"
	"github.com/haulways/be-driver-payroll/internal/logger"
	"github.com/haulways/be-driver-payroll/internal/repository"
	"github.com/haulways/be-driver-payroll/internal/service"
)

func main() {
	// Load configuration
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded; relying on process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Driver Payroll Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	snapshotRepo := repository.NewSnapshotRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Identity provider client (access gate)
	identityClient, err := client.NewIdentityClient(cfg.Identity.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create identity client")
	}

	// Optional notifications publisher; the service runs fine without NATS.
	var publisher *client.NotificationPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unreachable; notifications disabled")
		} else {
			defer nc.Close()
			publisher, err = client.NewNotificationPublisher(nc, log)
			if err != nil {
				log.Warn().Err(err).Msg("JetStream unavailable; notifications disabled")
				publisher = nil
			}
		}
	}

	// Initialize services
	payrollService := service.NewPayrollService(snapshotRepo, archiveRepo, auditRepo, publisher, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(payrollService, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Token", "X-Act-As-Account"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := handler.AuthMiddleware(identityClient, cfg.Auth.AdminEmailSet())
	handler.SetupRoutes(r, httpHandler, auth)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
