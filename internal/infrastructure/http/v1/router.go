// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/app"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/idempotency"
	"hivepos/internal/infrastructure/gateway"
	"hivepos/internal/infrastructure/http/v1/handlers"
	"hivepos/internal/infrastructure/http/v1/middleware"
	"hivepos/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// IdempotencyStore enables X-Idempotency-Key replay when set.
	IdempotencyStore idempotency.Store

	// Verifier checks gateway callback signatures. Without it the webhook route is not registered.
	Verifier *gateway.Verifier

	// ReadinessChecks are run by /health/ready, keyed by dependency name.
	ReadinessChecks map[string]handlers.ReadinessCheck
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.ReadinessChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	svc := cfg.Services

	v1 := router.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(base, svc.Auth)
		protectedAuth := v1.Group("/auth")
		protectedAuth.Use(middleware.Auth(svc.JWT))
		authHandler.RegisterRoutes(v1.Group("/auth"), protectedAuth)

		if cfg.Verifier != nil {
			webhookHandler := handlers.NewWebhookHandler(base, cfg.Verifier, svc.Refunds)
			v1.POST("/webhooks/gateway/refunds", webhookHandler.RefundCallback)
		}

		protected := v1.Group("")
		protected.Use(middleware.Auth(svc.JWT))
		if cfg.IdempotencyStore != nil {
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore))
		}

		registerCatalogRoutes(protected, base, svc)
		registerStockRoutes(protected, base, svc)
		registerImportRoutes(protected, base, svc)
		registerOrderRoutes(protected, base, svc)
	}

	return router
}

func adminOnly() gin.HandlerFunc {
	return middleware.RequireRole(appctx.RoleAdmin)
}

// registerCatalogRoutes registers products, market events and SKU mappings.
func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	productHandler := handlers.NewProductHandler(base, svc.Products, svc.Stock)
	products := rg.Group("/products")
	{
		products.GET("", productHandler.List)
		products.POST("", adminOnly(), productHandler.Create)
		products.GET("/:id", productHandler.Get)
		products.POST("/:id/deactivate", adminOnly(), productHandler.Deactivate)
		products.POST("/:id/reactivate", adminOnly(), productHandler.Reactivate)
		products.GET("/:id/batches", productHandler.ListBatches)
		products.POST("/:id/batches", adminOnly(), productHandler.ReceiveBatch)
		products.GET("/:id/movements", productHandler.ListMovements)
		products.GET("/:id/consistency", productHandler.Consistency)
	}

	eventHandler := handlers.NewEventHandler(base, svc.Events)
	events := rg.Group("/events")
	{
		events.GET("", eventHandler.List)
		events.POST("", adminOnly(), eventHandler.Create)
	}

	mappingHandler := handlers.NewMappingHandler(base, svc.Matching)
	mappings := rg.Group("/mappings")
	{
		mappings.GET("", mappingHandler.List)
		mappings.PUT("", adminOnly(), mappingHandler.Save)
	}
}

// registerStockRoutes registers batch-level stock endpoints.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	batchHandler := handlers.NewBatchHandler(base, svc.Stock)
	batches := rg.Group("/batches")
	{
		batches.GET("/:id", batchHandler.Get)
		batches.PUT("/:id/count", adminOnly(), batchHandler.Count)
	}
}

// registerImportRoutes registers POS export import and rollback. Admin only.
func registerImportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	importHandler := handlers.NewImportHandler(base, svc.Imports)
	imports := rg.Group("/imports", adminOnly())
	{
		imports.POST("/parse", importHandler.Parse)
		imports.POST("", importHandler.Import)
		imports.GET("", importHandler.List)
		imports.GET("/:id", importHandler.Get)
		imports.POST("/:id/rollback", importHandler.Rollback)
	}
}

// registerOrderRoutes registers checkout, invoices and refunds.
func registerOrderRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc *app.Services) {
	orderHandler := handlers.NewOrderHandler(base, svc.Sales, svc.Refunds)
	orders := rg.Group("/orders")
	{
		orders.POST("", orderHandler.Checkout)
		orders.GET("/:id", orderHandler.Get)
		orders.POST("/:id/invoice", orderHandler.Invoice)
		orders.GET("/:id/refunds", orderHandler.ListRefunds)
		orders.POST("/:id/refunds", orderHandler.CreateRefund)
	}
	rg.GET("/refunds/:id", orderHandler.GetRefund)
}
