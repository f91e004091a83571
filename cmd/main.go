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
	_ "github.com/lib/pq"

	"github.com/snakearena/tournament-engine/config"
	"github.com/snakearena/tournament-engine/db"
	"github.com/snakearena/tournament-engine/engine"
	"github.com/snakearena/tournament-engine/handlers"
	"github.com/snakearena/tournament-engine/realtime"
	"github.com/snakearena/tournament-engine/repositories"
	api "github.com/snakearena/tournament-engine/routes"
	"github.com/snakearena/tournament-engine/services"
	"github.com/snakearena/tournament-engine/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	wsHub := realtime.NewHub(logger)
	go wsHub.Run()

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	regRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	slotRepo := repositories.NewPostgresMatchParticipantRepository(dbConn)
	gameRepo := repositories.NewPostgresMatchGameRepository(dbConn)

	gameEngine := engine.NewHTTPGameEngine(cfg.EngineBaseURL, cfg.EngineTimeout)
	registry := engine.NewHTTPRegistry(cfg.RegistryBaseURL, 10*time.Second)

	bracketService := services.NewBracketService(tournamentRepo, matchRepo, slotRepo, gameRepo, logger)
	executor := services.NewMatchExecutor(
		dbConn, tournamentRepo, matchRepo, slotRepo, gameRepo,
		registry, gameEngine, wsHub,
		services.ExecutorConfig{
			MaxAttempts:  cfg.GameMaxAttempts,
			RetryBackoff: cfg.GameRetryBackoff,
		},
		logger,
	)
	tournamentService := services.NewTournamentService(
		dbConn, tournamentRepo, regRepo, matchRepo, slotRepo,
		bracketService, registry, wsHub, logger,
	)
	roundService := services.NewRoundService(dbConn, tournamentRepo, matchRepo, executor, wsHub, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ArchiveEnabled() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiveService := services.NewArchiveService(tournamentRepo, bracketService, uploader, logger)
		go archiveService.RunPeriodic(rootCtx, cfg.ArchiveInterval)
		logger.Info("replay archiver started", slog.Duration("interval", cfg.ArchiveInterval))
	} else {
		logger.Info("replay archiver disabled, R2 not configured")
	}

	tournamentHandler := handlers.NewTournamentHandler(tournamentService, bracketService, roundService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, tournamentService, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, tournamentHandler, webSocketHandler, cfg.JWTSecretKey)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // run_round blocks until the round finishes
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	}
}
