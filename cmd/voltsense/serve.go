package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RMahshie/voltsense/internal/advisor"
	"github.com/RMahshie/voltsense/internal/api"
	"github.com/RMahshie/voltsense/internal/api/handlers"
	"github.com/RMahshie/voltsense/internal/config"
	"github.com/RMahshie/voltsense/internal/repository"
	"github.com/RMahshie/voltsense/internal/repository/postgres"
	"github.com/RMahshie/voltsense/internal/storage"
	"github.com/RMahshie/voltsense/internal/telemetry"
	"github.com/RMahshie/voltsense/internal/transport"
	"github.com/RMahshie/voltsense/pkg/models"
)

const (
	apiVersion           = "1.0.0"
	conversationLoadSize = 50
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("http-port", "8080", "HTTP listen port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Optional persistence
	var (
		db        *sql.DB
		recorder  telemetry.Recorder
		readings  repository.ReadingRepository
		chatStore repository.ConversationRepository
	)
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		readings = postgres.NewPostgresReadingRepository(db)
		recorder = readings
		chatStore = postgres.NewPostgresConversationRepository(db)
		log.Info().Msg("Reading persistence enabled")
	}

	serialTransport := transport.NewSerial()
	manager, err := telemetry.NewManager(telemetry.Options{
		Opener:      serialTransport,
		Recorder:    recorder,
		HistorySize: cfg.Serial.HistorySize,
		ErrorHold:   cfg.Serial.ErrorHold,
		Calibration: startupCalibration(cfg.Serial),
	})
	if err != nil {
		return fmt.Errorf("invalid calibration: %w", err)
	}

	archiver, err := newArchiver(ctx, cfg.Archive, manager)
	if err != nil {
		return err
	}

	client := advisor.NewClient(advisor.ClientConfig{
		BaseURL: cfg.Advisor.URL,
		APIKey:  cfg.Advisor.APIKey,
		Model:   cfg.Advisor.Model,
	})
	if cfg.Advisor.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, advisor answers will fall back")
	}
	conversation := advisor.NewConversation(client, manager, chatStore)
	if err := conversation.Load(ctx, conversationLoadSize); err != nil {
		log.Warn().Err(err).Msg("Failed to restore conversation")
	}

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create Huma API
	humaConfig := huma.DefaultConfig("VoltSense API", apiVersion)
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = apiVersion
		resp.Body.Time = time.Now()
		return resp, nil
	})

	api.RegisterRoutes(humaAPI, api.Handlers{
		Telemetry: handlers.NewTelemetryHandler(manager, serialTransport, readings),
		Advice:    handlers.NewAdviceHandler(conversation),
		Archive:   handlers.NewArchiveHandler(archiver),
	})

	// Long-lived handlers such as the event stream end when baseCtx does
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Server.Env).Msg("Starting VoltSense API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Serial session did not close cleanly")
	}
	cancelBase()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}

// newArchiver returns nil when no archive backend is configured
func newArchiver(ctx context.Context, cfg config.ArchiveConfig, source storage.HistorySource) (handlers.Archiver, error) {
	var (
		store storage.ArchiveStore
		err   error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case "s3":
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKeyID,
			SecretKey: cfg.SecretAccessKey,
		})
	case "minio":
		store, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKeyID,
			SecretKey: cfg.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s archive store: %w", cfg.Backend, err)
	}

	log.Info().Str("backend", cfg.Backend).Str("bucket", cfg.Bucket).Msg("History archive enabled")
	return storage.NewHistoryArchiver(store, source), nil
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
