package app

import (
	"context"
	"errors"
	"fmt"

	"inventory-service/internal/auth"
	"inventory-service/internal/cache"
	"inventory-service/internal/catalog"
	"inventory-service/internal/config"
	"inventory-service/internal/coordinator"
	"inventory-service/internal/events"
	"inventory-service/internal/ledger"
	"inventory-service/internal/orders"
	"inventory-service/internal/projection"
	"inventory-service/internal/reconcile"
	"inventory-service/internal/store"
	"inventory-service/internal/users"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// App holds the wired services shared by the API and the listener.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store       store.Store
	Events      events.EventPublisher
	Coordinator *coordinator.Coordinator
	Ledger      *ledger.Ledger
	Catalog     *catalog.Service
	Orders      *orders.Service
	Users       *users.Service
	Views       *projection.Views
	Reconciler  *reconcile.Reconciler
	JWT         *auth.JWTManager

	// Redis is nil when disabled or unreachable.
	Redis *redis.Client

	closers []func() error
}

// New opens the store, the event publisher and Redis, then builds the
// services on top of them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)

	if cfg.KafkaEnabled {
		logger.Info("📡 Kafka Configuration",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic_orders", cfg.KafkaTopicOrders),
			zap.String("topic_stock", cfg.KafkaTopicStock),
			zap.String("topic_catalog", cfg.KafkaTopicCatalog),
			zap.String("topic_audit", cfg.KafkaTopicAudit),
			zap.String("acks", cfg.KafkaAcks),
		)
		publisher, err := events.NewKafkaEventPublisher(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Events = publisher
		a.closers = append(a.closers, publisher.Close)
	} else {
		logger.Info("Kafka disabled, events stay in process")
		a.Events = events.NewEventPublisher(logger)
	}

	if cfg.RedisEnabled {
		client, err := cache.NewRedisClient(ctx, cfg, logger)
		if err != nil {
			logger.Warn("⚠️ Redis unavailable, using in-memory idempotency and rate limiting", zap.Error(err))
		} else {
			a.Redis = client
			a.closers = append(a.closers, client.Close)
		}
	}

	coord, err := coordinator.New(coordinator.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		StoreTimeout: cfg.StoreTimeout,
	}, logger, otel.Meter(cfg.ServiceName))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	a.Coordinator = coord

	a.Ledger = ledger.New(s.Products(), coord, a.Events, logger)
	a.Catalog = catalog.NewService(s, a.Ledger, coord, a.Events, logger)
	a.Orders = orders.NewService(s, a.Ledger, coord, a.Events, logger)
	a.Users = users.NewService(s, coord, logger)
	a.Views = projection.New(s, cfg.LowStockThreshold)
	a.Reconciler = reconcile.New(s, a.Ledger, coord, logger, cfg.ReconcileMaxAttempts)
	a.JWT = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL, cfg.ServiceName, logger)

	return a, nil
}

// SeedAdmin makes sure the configured admin account exists.
func (a *App) SeedAdmin(ctx context.Context) error {
	if a.Config.AdminEmail == "" || a.Config.AdminPassword == "" {
		a.Logger.Info("No admin account configured, skipping seed")
		return nil
	}
	admin, err := a.Users.EnsureAdmin(ctx, a.Config.AdminEmail, a.Config.AdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	a.Logger.Info("✅ Admin account ready", zap.String("user_id", admin.ID.String()))
	return nil
}

// Close releases everything New opened, most recent first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory", "":
		logger.Info("💾 Using in-memory store")
		return store.NewMemoryStore(), nil
	case "sqlite":
		logger.Info("💾 Using SQLite store", zap.String("path", cfg.SQLitePath))
		return store.OpenSQLite(cfg.SQLitePath, logger)
	case "postgres":
		logger.Info("💾 Using PostgreSQL store")
		return store.OpenPostgres(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
