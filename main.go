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

	"go.uber.org/zap"

	"github.com/xiaot623/gigchat/internal/adapter/llm"
	"github.com/xiaot623/gigchat/internal/config"
	"github.com/xiaot623/gigchat/internal/hub"
	"github.com/xiaot623/gigchat/internal/logging"
	"github.com/xiaot623/gigchat/internal/policy"
	"github.com/xiaot623/gigchat/internal/service"
	"github.com/xiaot623/gigchat/internal/store"
	"github.com/xiaot623/gigchat/internal/support"
	internalhttp "github.com/xiaot623/gigchat/internal/transport/http"
	"github.com/xiaot623/gigchat/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gigchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting gigchat",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("internal_port", cfg.InternalPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("ai_provider", cfg.AIProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	if cfg.SeedDemo {
		if err := store.SeedDemo(ctx, db); err != nil {
			return err
		}
		logger.Info("demo data seeded")
	}

	// Initialize hub
	connectionHub := hub.NewHub(cfg.SendBufferSize, logger.Named("hub"))
	go connectionHub.Run(ctx)

	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		return err
	}

	llmClient, err := llm.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	relay := service.NewRelay(db, connectionHub, policyEngine, logger.Named("relay"), service.Options{
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageChars: cfg.MaxMessageChars,
	})
	responder := support.NewResponder(llmClient, db, cfg.AIModel, cfg.AITimeout, logger.Named("support"))
	supportService := support.NewService(responder, db, logger.Named("support"))

	wsServer := ws.NewServer(cfg, relay, supportService, logger.Named("ws"))
	publicServer := internalhttp.NewPublicServer(wsServer, supportService, logger.Named("http"))
	internalServer := internalhttp.NewInternalServer(relay, logger.Named("internal"))

	errCh := make(chan error, 2)
	go func() {
		if err := publicServer.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server: %w", err)
		}
	}()
	go func() {
		if err := internalServer.Start(fmt.Sprintf(":%d", cfg.InternalPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("internal server: %w", err)
		}
	}()

	logger.Info("servers started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		stop()
	}

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown public server gracefully", zap.Error(err))
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown internal server gracefully", zap.Error(err))
	}

	logger.Info("gigchat stopped")
	return nil
}
