// Package main запускает HTTP-сервер сервиса кампаний.
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

	"github.com/mmeshcher/campaign-ledger/internal/config"
	"github.com/mmeshcher/campaign-ledger/internal/handler"
	"github.com/mmeshcher/campaign-ledger/internal/middleware"
	"github.com/mmeshcher/campaign-ledger/internal/payment"
	"github.com/mmeshcher/campaign-ledger/internal/repository"
	"github.com/mmeshcher/campaign-ledger/internal/scheduler"
	"github.com/mmeshcher/campaign-ledger/internal/service"
	"github.com/mmeshcher/campaign-ledger/internal/textgen"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, cfg.StoreTimeout)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	notifier := service.NewNotifier(repo, logger.Named("notifier"), cfg.NotifyQueueSize)

	opts := []service.Option{
		service.WithNotifier(notifier),
		service.WithCoinPrice(cfg.CoinPriceCents),
	}
	if cfg.TextGenAddress != "" {
		opts = append(opts, service.WithTextGenerator(textgen.NewClient(cfg.TextGenAddress, cfg.TextGenAPIKey)))
	} else {
		sugar.Info("text generation is not configured, using templated descriptions")
	}
	if cfg.PaymentGatewayAddress != "" {
		opts = append(opts, service.WithPaymentGateway(payment.NewClient(cfg.PaymentGatewayAddress, cfg.PaymentAPIKey)))
	} else {
		sugar.Info("payment gateway is not configured, deposits are disabled")
	}

	svc := service.NewService(repo, logger.Named("service"), opts...)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT secret is not set, tokens from other services will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.PaymentWebhookSecret)

	r := h.SetupRouter()

	jobs, err := scheduler.NewManager(logger.Named("scheduler"),
		scheduler.NewRefundRetryJob(svc, cfg.RefundRetryInterval),
		scheduler.NewPaymentSettlementJob(svc, cfg.PaymentSettleInterval),
	)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Очередь уведомлений останавливается только после HTTP-сервера
	notifyCtx, stopNotifier := context.WithCancel(context.Background())
	defer stopNotifier()

	g.Go(func() error {
		return notifier.Run(notifyCtx)
	})

	// Повтор возвратов и сверка платежей
	g.Go(func() error {
		return jobs.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting campaign ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		stopNotifier()
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
