package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"contratto/app"
	"contratto/config"
	"contratto/cron"
	"contratto/handlers"
	"contratto/middleware"
	"contratto/routes"
	"contratto/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	application, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("main: failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// Background jobs need Redis for the asynq queue.
	var (
		worker    *asynq.Server
		scheduler *asynq.Scheduler
	)
	if cfg.RedisAddr != "" {
		jobs := &cron.Jobs{
			Orders:  application.Orders,
			Wallets: application.Wallets,
			Relay:   application.Relay,
			Logger:  logger,
		}
		worker, scheduler, err = cron.InitWorker(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisQueueDB,
		}, jobs, logger)
		if err != nil {
			logger.Fatal("main: failed to start job worker", zap.Error(err))
		}
	} else {
		logger.Warn("REDIS_ADDR not set, periodic jobs are disabled")
	}

	utils.StartHealthMonitor(rootCtx, 30*time.Second, application.HealthChecks(cfg))

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		utils.RegisterMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RequestLoggerMiddleware(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))
	if cfg.MetricsEnabled {
		router.Use(middleware.MetricsMiddleware())
	}

	orderHandler := handlers.NewOrderHandler(application.Orders, logger)
	walletHandler := handlers.NewWalletHandler(application.Wallets, logger)
	webhookHandler := handlers.NewWebhookHandler(application.Gateways, application.Orders, logger)

	webhooks := make(map[string]gin.HandlerFunc)
	for _, name := range application.Gateways.Names() {
		webhooks[name] = webhookHandler.GatewayWebhookHandler(name)
	}

	// Assemble the handler bundle.
	handlerBundle := &handlers.HandlerBundle{
		// Order endpoints.
		CreateOrderHandler:     orderHandler.CreateOrderHandler,
		GetOrderHandler:        orderHandler.GetOrderHandler,
		GetOrderHistoryHandler: orderHandler.GetOrderHistoryHandler,
		StartCheckoutHandler:   orderHandler.StartCheckoutHandler,
		ApproveOrderHandler:    orderHandler.ApproveOrderHandler,
		CancelOrderHandler:     orderHandler.CancelOrderHandler,
		RefundOrderHandler:     orderHandler.RefundOrderHandler,

		// Wallet endpoints.
		GetWalletHandler:        walletHandler.GetWalletHandler,
		ListTransactionsHandler: walletHandler.ListTransactionsHandler,
		RequestPayoutHandler:    walletHandler.RequestPayoutHandler,
		AuditWalletHandler:      walletHandler.AuditWalletHandler,

		WebhookHandlers: webhooks,
		HealthHandler:   handlers.HealthHandler,
		MetricsHandler:  metricsHandler,
	}

	var origins []string
	if cfg.AppOrigin != "" {
		origins = strings.Split(cfg.AppOrigin, ",")
	}
	routes.RegisterRoutes(router, handlerBundle, origins)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if worker != nil {
		worker.Shutdown()
	}
	stop()

	logger.Sugar().Info("main: server stopped gracefully")
}
