package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"stock-ledger-service/internal/config"
	"stock-ledger-service/internal/events"
	"stock-ledger-service/internal/handlers"
	"stock-ledger-service/internal/middleware"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.StockRecord{},
		&models.StockLedgerEntry{},
		&models.DeliveryChallan{},
		&models.ChallanItem{},
		&models.SalesInvoice{},
		&models.InvoiceItem{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis cache (optional - repositories degrade to DB-only reads)
	redisClient := config.InitRedis(cfg)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable: %v (continuing without cache)", err)
		} else {
			log.Println("✓ Connected to Redis")
		}
		cancel()
	}

	// Initialize NATS event publisher (optional - graceful degradation if NATS unavailable)
	var eventPublisher *events.StockEventPublisher
	if cfg.NATSURL != "" {
		eventPublisher, err = events.NewStockEventPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
			eventPublisher = nil
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			defer eventPublisher.Close()
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	// Initialize repositories
	stockRepo := repository.NewStockRepository(db, redisClient)
	challanRepo := repository.NewChallanRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	// Initialize reconciliation engine and services
	engine := reconcile.NewEngine(logger)
	stockService := services.NewStockService(stockRepo, eventPublisher, logger)
	challanService := services.NewChallanService(challanRepo, stockRepo, engine, eventPublisher, logger)
	invoiceService := services.NewInvoiceService(invoiceRepo, stockRepo, engine, eventPublisher, logger)

	// Initialize handlers
	stockHandler := handlers.NewStockHandler(stockService)
	challanHandler := handlers.NewChallanHandler(challanService)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService)
	importHandler := handlers.NewImportHandler(stockService)
	healthHandler := handlers.NewHealthHandler(stockRepo, eventPublisher)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)
	router.GET("/health/extended", healthHandler.ExtendedHealthCheck)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.DevelopmentAuthMiddleware())
	api.Use(middleware.TenantMiddleware())

	// Delivery challan routes
	challans := api.Group("/challans")
	{
		challans.POST("", challanHandler.CreateChallan)
		challans.GET("", challanHandler.ListChallans)
		challans.GET("/:id", challanHandler.GetChallan)
		challans.PUT("/:id", challanHandler.UpdateChallan)
		challans.PATCH("/:id/status", challanHandler.UpdateChallanStatus)
		challans.DELETE("/:id", challanHandler.DeleteChallan)
	}

	// Sales invoice routes
	invoices := api.Group("/invoices")
	{
		invoices.POST("", invoiceHandler.CreateInvoice)
		invoices.GET("", invoiceHandler.ListInvoices)
		invoices.GET("/:id", invoiceHandler.GetInvoice)
		invoices.PUT("/:id", invoiceHandler.UpdateInvoice)
		invoices.PATCH("/:id/status", invoiceHandler.UpdateInvoiceStatus)
		invoices.DELETE("/:id", invoiceHandler.DeleteInvoice)
	}

	// Stock routes
	stock := api.Group("/stock")
	{
		stock.GET("", stockHandler.ListStock)
		stock.GET("/level", stockHandler.GetStockLevel)
		stock.GET("/available", stockHandler.GetAvailable)
		stock.GET("/low", stockHandler.GetLowStock)

		// Import
		stock.GET("/import/template", importHandler.GetOpeningStockImportTemplate)
		stock.POST("/import", middleware.RequireRole("admin"), importHandler.ImportOpeningStock)
	}

	// Ledger routes
	ledger := api.Group("/ledger")
	{
		ledger.GET("", stockHandler.GetLedger)
		ledger.GET("/export", stockHandler.ExportLedger)
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Stock ledger service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down stock-ledger-service...")

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Stock ledger service stopped")
}
