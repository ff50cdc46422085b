package main

import (
	"context"   // Root context for background workers
	"log"       // log package is needed for logging
	"os/signal" // Graceful shutdown on interrupt
	"syscall"   // SIGTERM handling

	"github.com/vanityapp123/vanityapp/internal/api"         // Custom package for API handlers
	"github.com/vanityapp123/vanityapp/internal/catalog"     // Product catalog
	"github.com/vanityapp123/vanityapp/internal/chain"       // Solana RPC client
	"github.com/vanityapp123/vanityapp/internal/checkout"    // Checkout engine
	"github.com/vanityapp123/vanityapp/internal/config"      // Custom package for configuration
	"github.com/vanityapp123/vanityapp/internal/delivery"    // Telegram delivery bot
	"github.com/vanityapp123/vanityapp/internal/fulfillment" // Order queue and worker
	"github.com/vanityapp123/vanityapp/internal/ledger"      // Balance ledger
	"github.com/vanityapp123/vanityapp/internal/middleware"  // Custom package for middleware
	"github.com/vanityapp123/vanityapp/internal/monitor"     // Deposit monitor
	"github.com/vanityapp123/vanityapp/internal/settings"    // Runtime settings

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Root context cancelled on SIGINT/SIGTERM so the background workers stop
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core services
	ledgerStore := ledger.New(db)                                          // Balance ledger
	settingsStore := settings.New(db)                                      // Runtime settings
	cat := catalog.New(db)                                                 // Product catalog
	queue := fulfillment.NewQueue(db, cfg.FulfillMaxAttempts, cfg.FulfillBackoff) // Order queue
	engine := checkout.New(db, ledgerStore, cat, queue)                    // Checkout engine
	rpc := chain.NewRPCClient(cfg.SolanaRPC, cfg.Commitment)               // Solana RPC client
	bot := delivery.NewBot(cfg.BotToken)                                   // Telegram bot

	// Background workers: deposit monitor and fulfillment worker
	go monitor.New(ledgerStore, rpc, settingsStore, bot, cfg.PollInterval).Run(ctx)
	go fulfillment.NewWorker(queue, ledgerStore, cat, bot).Run(ctx)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Public routes
	r.POST("/auth/verify", api.AuthVerifyHandler(ledgerStore, cfg.BotToken, cfg.JWTSecret)) // Telegram WebApp login
	r.POST("/auth/admin", api.AdminLoginHandler(db, cfg.JWTSecret))                         // Operator login
	r.GET("/products", api.ListProductsHandler(cat, redisClient))                           // Catalog listing
	r.GET("/products/:id", api.ProductDetailHandler(cat))                                   // Product detail
	r.GET("/settings", api.GetSettingsHandler(settingsStore))                               // Public settings

	// Buyer routes (protected by JWT)
	authGroup := r.Group("/")
	authGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	authGroup.GET("/wallet", api.GetWalletHandler(ledgerStore, redisClient))        // Balance and deposit address
	authGroup.GET("/wallet/ledger", api.GetLedgerHistoryHandler(ledgerStore, redisClient)) // Ledger history
	authGroup.GET("/orders", api.ListOrdersHandler(queue))                          // Order history
	// Checkout carries the idempotency middleware so client retries replay
	authGroup.POST("/checkout", middleware.Idempotency(db), api.CheckoutHandler(engine, redisClient))

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware(db))
	adminGroup.GET("/stats", api.AdminStatsHandler(db))                           // Dashboard totals
	adminGroup.GET("/accounts", api.ListAccountsHandler(db, redisClient))         // List accounts endpoint
	adminGroup.POST("/accounts/:id/ban", api.SetBanHandler(db))                   // Ban or unban an account
	adminGroup.POST("/adjust", api.AdjustBalanceHandler(ledgerStore, redisClient)) // Manual ledger credit
	adminGroup.POST("/products", api.CreateProductHandler(cat, redisClient))      // Create product endpoint
	adminGroup.PATCH("/products/:id", api.UpdateProductHandler(cat, redisClient)) // Edit product endpoint
	adminGroup.DELETE("/products/:id", api.DeleteProductHandler(cat, redisClient)) // Deactivate product endpoint
	adminGroup.GET("/settings", api.ListSettingsHandler(settingsStore))           // List settings endpoint
	adminGroup.POST("/settings", api.SetSettingHandler(settingsStore))            // Upsert setting endpoint
	adminGroup.GET("/orders/failed", api.FailedOrdersHandler(queue))              // Failed order review
	adminGroup.GET("/treasury", api.TreasuryHandler(db, rpc, cfg.TreasuryWallet)) // Treasury drift report

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
