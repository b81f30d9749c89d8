package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/platform/config"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/platform/database"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/platform/logger"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/platform/messagebroker"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/app"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/media"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/registry"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/repository/postgres"
	httptransport "github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/transport/http"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/ws"
)

const (
	serviceName     = "chat_service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger = appLogger.With("service", serviceName)
	appLogger.Info("Starting service...")

	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"nats_url", cfg.NATSURL,
		"postgres_dsn_present", cfg.PostgresDSN != "",
		"http_port", cfg.ChatServiceHTTPPort,
		"metrics_port", cfg.ChatServiceMetricsPort,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("NATS connection initialized")

	mediaStore, err := media.NewStore(cfg.UploadsDir, cfg.UploadsBaseURL, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize media store", "error", err)
		os.Exit(1)
	}

	messageRepo := postgres.NewPgMessageRepository(dbPool, appLogger)
	presenceRepo := postgres.NewPgPresenceRepository(dbPool, appLogger)
	connRegistry := registry.New()
	reconciler := app.NewReconciler()

	hub := app.NewHub(connRegistry, messageRepo, presenceRepo, mediaStore, reconciler, natsClient, appLogger)
	wsHandler := ws.NewHandler(hub, cfg.AllowedOrigin, appLogger)
	chatHandler := httptransport.NewChatHandler(messageRepo, mediaStore, hub, appLogger)
	userHandler := httptransport.NewUserHandler(messageRepo, reconciler, appLogger)

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		chatHandler.RegisterRoutes(r)
		userHandler.RegisterRoutes(r)
	})
	router.Handle("/ws", wsHandler)
	router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir))))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ChatServiceHTTPPort),
		Handler: router,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ChatServiceMetricsPort),
		Handler: promhttp.Handler(),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP/websocket server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, stopping servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service stopped")
}
