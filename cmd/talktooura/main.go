package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collinvine/talk-to-oura/internal/api"
	"github.com/collinvine/talk-to-oura/internal/cache"
	"github.com/collinvine/talk-to-oura/internal/config"
	"github.com/collinvine/talk-to-oura/internal/genai"
	"github.com/collinvine/talk-to-oura/internal/oura"
	"github.com/collinvine/talk-to-oura/internal/repository"
	"github.com/collinvine/talk-to-oura/internal/service"
	"github.com/collinvine/talk-to-oura/internal/timeframe"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database (sessions, Oura tokens, conversation history)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	sessionRepo := repository.NewSessionRepository(db)

	// External collaborators
	ouraClient := oura.NewClient(
		cfg.Oura.BaseURL,
		cfg.Oura.TokenURL,
		cfg.Oura.ClientID,
		cfg.Oura.ClientSecret,
		logger,
	)
	genClient := genai.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Models,
		cfg.LLM.MaxRetries,
		logger,
	)

	// Per-session response cache with background sweep
	cacheStore := cache.NewStore(cfg.Cache.TTL)
	cacheStore.StartSweep(cfg.Cache.SweepInterval)
	defer cacheStore.Stop()

	resolver := timeframe.NewResolver(genClient, logger)
	queryService := service.NewQueryService(
		ouraClient,
		genClient,
		cacheStore,
		sessionRepo,
		resolver,
		logger,
	)

	// Setup router
	router := api.SetupRouter(queryService, api.RouterConfig{
		AllowOrigins: []string{"*"},
	})

	// Create HTTP server. SSE responses outlive the usual write timeout,
	// so only the read side is bounded.
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting talk-to-oura server",
			zap.String("address", cfg.Address()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
