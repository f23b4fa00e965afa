package app

import (
	"inventory-service/internal/auth"
	"inventory-service/internal/handlers"
	"inventory-service/pkg/logger"
	"inventory-service/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	cfg, log := a.Config, a.Logger

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// CORS middleware (must be first to handle preflight requests)
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RecoveryHandler(log))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(logger.GinMiddleware(log))

	// Request ID middleware (must be early in the chain)
	router.Use(middleware.RequestIDMiddleware(log))

	var (
		requestIDStore middleware.RequestIDStore
		rateCounter    middleware.RateCounter
	)
	if a.Redis != nil {
		requestIDStore = middleware.NewRedisRequestIDStore(a.Redis)
		rateCounter = middleware.NewRedisRateCounter(a.Redis)
	} else {
		requestIDStore = middleware.NewInMemoryRequestIDStore()
		rateCounter = middleware.NewInMemoryRateCounter()
	}
	log.Info("✅ Request ID store initialized", zap.Bool("redis", a.Redis != nil))

	router.Use(middleware.ErrorHandler(log))

	// Idempotency keys are scoped to the caller, so it runs after auth.
	idempotency := middleware.IdempotencyMiddleware(requestIDStore, log, cfg.IdempotencyTTL)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authHandler := auth.NewAuthHandler(a.Users, a.JWT, log)
	healthHandler := handlers.NewHealthHandler(log, cfg.ServiceName, a.Store)
	productHandler := handlers.NewProductHandler(log, a.Catalog, a.Ledger, a.Views)
	catalogHandler := handlers.NewCatalogHandler(log, a.Catalog, a.Views)
	orderHandler := handlers.NewOrderHandler(log, a.Orders, a.Views)
	userHandler := handlers.NewUserHandler(log, a.Users, a.Views)
	reportHandler := handlers.NewReportHandler(log, a.Views, a.Reconciler)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimiter(rateCounter, cfg.RateLimitPerMinute, log))
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/register", idempotency, authHandler.Register)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(a.JWT, log), idempotency)
		{
			products := protected.Group("/products")
			{
				products.GET("", productHandler.ListProducts)
				products.GET("/:id", productHandler.GetProduct)
			}
			categories := protected.Group("/categories")
			{
				categories.GET("", catalogHandler.ListCategories)
				categories.GET("/:id", catalogHandler.GetCategory)
			}

			// Completing is admin only; the service enforces it.
			ordersGroup := protected.Group("/orders")
			{
				ordersGroup.POST("", orderHandler.PlaceOrder)
				ordersGroup.GET("", orderHandler.ListOrders)
				ordersGroup.GET("/:id", orderHandler.GetOrder)
				ordersGroup.POST("/:id/complete", orderHandler.CompleteOrder)
				ordersGroup.POST("/:id/cancel", orderHandler.CancelOrder)
			}

			usersGroup := protected.Group("/users")
			{
				usersGroup.GET("/:id", userHandler.GetUser)
				usersGroup.PUT("/:id", userHandler.UpdateUser)
				usersGroup.DELETE("/:id", userHandler.DeleteUser)
			}

			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				adminProducts := admin.Group("/products")
				{
					adminProducts.POST("", productHandler.CreateProduct)
					adminProducts.POST("/bulk-delete", productHandler.BulkDeleteProducts)
					adminProducts.PUT("/:id", productHandler.UpdateProduct)
					adminProducts.DELETE("/:id", productHandler.DeleteProduct)
					adminProducts.POST("/:id/adjust", productHandler.AdjustStock)
					adminProducts.POST("/:id/reserve", productHandler.ReserveStock)
					adminProducts.POST("/:id/release", productHandler.ReleaseStock)
					adminProducts.POST("/:id/commit", productHandler.CommitStock)
				}

				adminCategories := admin.Group("/categories")
				{
					adminCategories.POST("", catalogHandler.CreateCategory)
					adminCategories.PUT("/:id", catalogHandler.UpdateCategory)
					adminCategories.DELETE("/:id", catalogHandler.DeleteCategory)
				}

				suppliers := admin.Group("/suppliers")
				{
					suppliers.POST("", catalogHandler.CreateSupplier)
					suppliers.GET("", catalogHandler.ListSuppliers)
					suppliers.GET("/:id", catalogHandler.GetSupplier)
					suppliers.PUT("/:id", catalogHandler.UpdateSupplier)
					suppliers.DELETE("/:id", catalogHandler.DeleteSupplier)
				}

				adminUsers := admin.Group("/users")
				{
					adminUsers.GET("", userHandler.ListUsers)
					adminUsers.POST("", userHandler.CreateUser)
				}

				reports := admin.Group("/reports")
				{
					reports.GET("/low-stock", reportHandler.LowStock)
					reports.GET("/out-of-stock", reportHandler.OutOfStock)
					reports.GET("/dashboard", reportHandler.Dashboard)
					reports.GET("/suppliers/map", reportHandler.SuppliersMap)
				}

				audit := admin.Group("/audit")
				{
					audit.GET("", reportHandler.ListAudit)
					audit.POST("/sweep", reportHandler.SweepAudit)
					audit.POST("/:id/reconcile", reportHandler.ReconcileAudit)
				}
			}
		}
	}

	return router
}
