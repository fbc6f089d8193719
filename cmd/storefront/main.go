// Package main запускает локальный HTTP API клиента витрины.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront-client/internal/apiclient"
	"github.com/mmeshcher/storefront-client/internal/config"
	"github.com/mmeshcher/storefront-client/internal/handler"
	"github.com/mmeshcher/storefront-client/internal/repository"
	"github.com/mmeshcher/storefront-client/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := repository.Open(ctx, repository.Backend(cfg.StorageBackend), cfg.StorageDSN)
	if err != nil {
		sugar.Fatalw("storage initialization error", "backend", cfg.StorageBackend, "error", err.Error())
	}

	api := apiclient.NewClient(cfg.APIBaseURL, storage,
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithLogger(logger.Named("api")),
	)

	engine := service.NewEngine(ctx, api, storage, logger, service.Options{
		AdminIdleTimeout:   cfg.AdminIdleTimeout,
		AdminCheckInterval: cfg.AdminCheckInterval,
	})
	defer engine.Close()

	h := handler.NewHandler(engine, logger.Named("http"))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Проверка сохранённой сессии и загрузка корзины
	g.Go(func() error {
		engine.Start(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting storefront client", "addr", cfg.RunAddress, "api", cfg.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
