package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"

	"voucher-pos/config"
	"voucher-pos/internal/handlers"
	"voucher-pos/internal/ledger"
	"voucher-pos/internal/services"
	"voucher-pos/utils"

	_ "voucher-pos/migrations"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("voucher-pos-server"))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	var notifier *services.AlertNotifier
	if cfg.PubNubPublishKey != "" {
		notifier = services.NewAlertNotifier(pubnub.NewPubNub(pnConfig))
	}

	// Initialize services
	store := ledger.New(app)
	retryQueue := services.NewRetryQueue(redisClient)
	issueService := services.NewIssueService(store, retryQueue, notifier, cfg)
	verifyService := services.NewVerifyService(store)
	paymentService := services.NewPaymentService(store, cfg.PaymentWebhookKey)

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(app, issueService, verifyService)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService)
	adminHandler := handlers.NewAdminHandler(app, issueService, retryQueue)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Prometheus endpoint on its own listener, away from the public API
	if cfg.EnableMetrics {
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Cashier endpoints
		e.Router.POST("/api/v1/tickets/purchase", ticketHandler.PurchaseTicket).Bind(apis.RequireAuth())

		// Captive-portal lookup, anonymous
		e.Router.GET("/api/v1/tickets/verify/{code}", ticketHandler.VerifyTicket)

		// Payment provider callback, authenticated by HMAC signature
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.Webhook)
		e.Router.GET("/api/v1/payments/{saleId}", paymentHandler.GetSale).Bind(apis.RequireAuth())

		// Reconciliation endpoints
		admin := e.Router.Group("/api/v1/admin")
		admin.Bind(apis.RequireSuperuserAuth())
		admin.GET("/tickets/unprovisioned", adminHandler.GetUnprovisioned)
		admin.POST("/tickets/{ticketId}/reprovision", adminHandler.ReprovisionTicket)
		admin.POST("/tickets/bulk", adminHandler.BulkGenerate)
		admin.GET("/provisioning-summary", adminHandler.GetProvisioningSummary)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("metrics listener started", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics listener failed", "error", err)
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")
	cancel()
}
