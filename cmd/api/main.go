package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-service/internal/app"
	"inventory-service/internal/config"
	"inventory-service/internal/telemetry"
	"inventory-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "inventory-service/docs" // Import docs for Swagger
)

// @title           Inventory Service API
// @version         1.0
// @description     Order lifecycle and inventory consistency engine: catalog, stock ledger, orders and reconciliation.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Example: "Bearer eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Inventory Service",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
	)

	appLogger.Info("🔐 JWT Configuration",
		zap.Int("secret_length", len(cfg.JWTSecret)),
		zap.Duration("token_ttl", cfg.TokenTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("❌ Failed to initialize telemetry", zap.Error(err))
	}

	appLogger.Info("🔧 Initializing services...")
	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("❌ Failed to initialize services", zap.Error(err))
	}
	if err := application.SeedAdmin(ctx); err != nil {
		appLogger.Fatal("❌ Failed to seed admin account", zap.Error(err))
	}
	appLogger.Info("✅ Services initialized successfully")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		appLogger.Warn("Failed to flush telemetry", zap.Error(err))
	}
	if err := application.Close(); err != nil {
		appLogger.Warn("Failed to close resources", zap.Error(err))
	}

	appLogger.Info("Server exited")
}
