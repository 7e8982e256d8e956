package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tatidance/economy/internal/repository"
	"github.com/tatidance/economy/internal/service"
	"github.com/tatidance/economy/pkg/config"
	"github.com/tatidance/economy/pkg/database"
	"github.com/tatidance/economy/pkg/notify"
)

func main() {
	// Structured JSON logging as the process default
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Get configuration from environment variables
	mongoURI := config.GetEnv("MONGO_URI", "mongodb://localhost:27017")
	dbName := config.GetEnv("MONGO_DB", "dance_economy")
	port := config.GetEnv("PORT", "8080")

	economyCfg, err := config.LoadEconomy(config.GetEnv("ECONOMY_CONFIG", "economy.yaml"))
	if err != nil {
		logger.Error("failed to load economy config", "error", err)
		os.Exit(1)
	}

	// Connect to MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoDB, err := database.Connect(ctx, mongoURI, dbName)
	if err != nil {
		logger.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoDB.Disconnect(context.Background()); err != nil {
			logger.Error("error disconnecting from MongoDB", "error", err)
		}
	}()

	logger.Info("connected to MongoDB", "db", dbName)

	// Initialize repositories
	uow := database.NewUnitOfWork(mongoDB.Client)
	walletRepo := repository.NewWalletRepository(mongoDB.Database, uow)
	keyRepo := repository.NewKeyRepository(mongoDB.Database)
	commissionRepo := repository.NewCommissionRepository(mongoDB.Database)
	referralRepo := repository.NewReferralRepository(mongoDB.Database)

	// Capability check and notification sink
	caps := service.StaticAdminSet(config.AdminIDs(config.GetEnv("ADMIN_IDS", "")))
	var sink notify.Sink
	if webhookURL := config.GetEnv("NOTIFY_WEBHOOK_URL", ""); webhookURL != "" {
		sink = notify.NewWebhookSink(webhookURL, logger)
	} else {
		sink = &notify.LogSink{Logger: logger}
	}

	// Initialize services
	economySvc := service.NewEconomyService(walletRepo, keyRepo, caps, sink, economyCfg.DailyBonusAmount, logger)
	commissionSvc := service.NewCommissionService(commissionRepo, economySvc, caps, logger)
	referralSvc := service.NewReferralService(referralRepo, economySvc, economyCfg, logger)

	// Optional scheduled sweep for stale pending referrals, off by default
	if hours, err := strconv.Atoi(config.GetEnv("REFERRAL_SWEEP_HOURS", "0")); err == nil && hours > 0 {
		go runReferralSweep(referralSvc, time.Duration(hours)*time.Hour, logger)
	}

	// Setup Gin router
	router := setupRouter(economySvc, commissionSvc, referralSvc, caps)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

// runReferralSweep periodically expires stale pending referrals.
func runReferralSweep(svc *service.ReferralService, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		expired, err := svc.ExpireStale(ctx)
		cancel()
		if err != nil {
			logger.Error("referral sweep failed", "error", err)
			continue
		}
		if expired > 0 {
			logger.Info("expired stale referrals", "count", expired)
		}
	}
}

func setupRouter(economySvc *service.EconomyService, commissionSvc *service.CommissionService, referralSvc *service.ReferralService, caps service.CapabilityChecker) *gin.Engine {
	// Set Gin mode
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		economy := api.Group("/economy")
		{
			economy.POST("/grant", requireAdmin(caps), grantHandler(economySvc))
			economy.POST("/spend", spendHandler(economySvc))
			economy.POST("/adjust", requireAdmin(caps), adjustHandler(economySvc))
			economy.POST("/daily-bonus", dailyBonusHandler(economySvc))
			economy.POST("/redeem", redeemHandler(economySvc))
			economy.GET("/balance/:accountId", balanceHandler(economySvc))
			economy.GET("/transactions/:accountId", transactionsHandler(economySvc))
		}

		commissions := api.Group("/commissions")
		{
			commissions.POST("", requireAdmin(caps), setCommissionHandler(commissionSvc))
			commissions.PATCH("/:courseId/:trainerId/active", requireAdmin(caps), setCommissionActiveHandler(commissionSvc))
			commissions.GET("/course/:courseId", listCommissionsHandler(commissionSvc))
			commissions.GET("/course/:courseId/preview", requireAdmin(caps), previewPayoutHandler(commissionSvc))
		}

		api.POST("/events/course-sold", courseSoldHandler(commissionSvc, referralSvc))

		referrals := api.Group("/referrals")
		{
			referrals.POST("/code", referralCodeHandler(referralSvc))
			referrals.POST("/apply", applyCodeHandler(referralSvc))
			referrals.POST("/verify", verifyReferralHandler(referralSvc))
			referrals.POST("/first-purchase", firstPurchaseHandler(referralSvc))
		}

		keys := api.Group("/admin/keys", requireAdmin(caps))
		{
			keys.POST("", createKeyHandler(economySvc))
			keys.GET("", listKeysHandler(economySvc))
			keys.DELETE("/:id", deleteKeyHandler(economySvc))
		}
	}

	return router
}
