package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-service/internal/app"
	"inventory-service/internal/config"
	"inventory-service/internal/kafka"
	"inventory-service/internal/reconcile"
	"inventory-service/internal/telemetry"
	"inventory-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The listener reconciles partial commit failures: as they are announced on
// the audit topic, and on a periodic sweep of every open entry.
func main() {
	cfg := config.Load()

	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Reconciliation Listener",
		zap.String("environment", cfg.Environment),
		zap.Bool("kafka_enabled", cfg.KafkaEnabled),
		zap.String("topic_audit", cfg.KafkaTopicAudit),
		zap.Duration("sweep_interval", cfg.ReconcileInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("❌ Failed to initialize telemetry", zap.Error(err))
	}

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("❌ Failed to initialize services", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.KafkaEnabled {
		consumer, err := kafka.NewConsumer(cfg, application.Reconciler, appLogger)
		if err != nil {
			appLogger.Fatal("❌ Failed to create Kafka consumer", zap.Error(err))
		}
		g.Go(func() error {
			return consumer.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			return consumer.Close()
		})
	} else {
		appLogger.Warn("⚠️ Kafka disabled, relying on the periodic sweep only")
	}

	g.Go(func() error {
		sweepLoop(gctx, application.Reconciler, cfg.ReconcileInterval, appLogger)
		return nil
	})

	appLogger.Info("✅ Listener started successfully. Waiting for events...")

	if err := g.Wait(); err != nil {
		appLogger.Error("Listener stopped with error", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		appLogger.Warn("Failed to flush telemetry", zap.Error(err))
	}
	if err := application.Close(); err != nil {
		appLogger.Warn("Failed to close resources", zap.Error(err))
	}

	appLogger.Info("Listener stopped")
}

func sweepLoop(ctx context.Context, reconciler *reconcile.Reconciler, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := reconciler.Sweep(ctx)
			if err != nil {
				log.Error("Reconciliation sweep failed", zap.Error(err))
				continue
			}
			if result.Resolved+result.Failed+result.Manual > 0 {
				log.Info("Reconciliation sweep finished",
					zap.Int("resolved", result.Resolved),
					zap.Int("failed", result.Failed),
					zap.Int("manual", result.Manual),
				)
			}
		}
	}
}
