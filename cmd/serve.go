package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/staffhive/ms-go-payouts/app/controller"
	"github.com/staffhive/ms-go-payouts/app/metrics"
	"github.com/staffhive/ms-go-payouts/app/notifier"
	"github.com/staffhive/ms-go-payouts/app/profile"
	"github.com/staffhive/ms-go-payouts/app/rail"
	"github.com/staffhive/ms-go-payouts/app/repository"
	"github.com/staffhive/ms-go-payouts/app/service"
	"github.com/staffhive/ms-go-payouts/app/types"
	"github.com/staffhive/ms-go-payouts/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for payout release, retry, dispute, and sweep endpoints.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, payoutService, cleanup := mustCreatePayoutService()
	defer cleanup()

	payoutController := controller.NewPayoutController(payoutService)
	e := setupHTTPServer(payoutController, cfg.App.APIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(payoutController *controller.PayoutController, apiKey string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", payoutController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("", requireRequestID(), requireAPIKey(apiKey))

	payments := api.Group("/payments")
	payments.POST("/events/funds-received", payoutController.HandleFundsReceived)
	payments.GET("/:id", payoutController.GetPayment)
	payments.POST("/:id/release", payoutController.ReleasePayment)
	payments.POST("/:id/transfers/retry", payoutController.RetryTransfer)
	payments.POST("/:id/disputes", payoutController.OpenDispute)

	disputes := api.Group("/disputes")
	disputes.POST("/:id/resolve", payoutController.ResolveDispute)
	disputes.POST("/:id/reject", payoutController.RejectDispute)

	api.POST("/sweep", payoutController.Sweep)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	expected := strings.TrimSpace(apiKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if expected == "" {
				return next(ctx)
			}
			provided := strings.TrimSpace(ctx.Request().Header.Get("X-API-Key"))
			if provided != expected {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

func mustCreatePayoutService() (*config.Config, *service.PayoutService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	splitRepo := repository.NewFinanceSplitRepository(db)
	transferRepo := repository.NewTransferRecordRepository(db)
	disputeRepo := repository.NewDisputeRepository(db)
	releaseSelector := repository.NewReleaseSelector(db, paymentRepo, splitRepo, cfg.Payouts.SweepClaimTTL)

	stripeRail := rail.NewStripeRail(rail.StripeConfig{
		SecretKey:   cfg.Stripe.SecretKey,
		HTTPTimeout: cfg.Stripe.HTTPTimeout,
	})
	railRegistry := rail.NewRegistry(stripeRail)
	executor := service.NewTransferExecutor(railRegistry, cfg.Payouts.TransferMaxAttempts, cfg.Payouts.TransferRetryDelay)

	profileClient := profile.NewClient(profile.Config{
		BaseURL:     cfg.Profile.BaseURL,
		APIKey:      cfg.Profile.APIKey,
		HTTPTimeout: cfg.Profile.HTTPTimeout,
	})
	notifyClient := notifier.NewClient(notifier.Config{
		BaseURL:     cfg.Notify.BaseURL,
		APIKey:      cfg.Notify.APIKey,
		HTTPTimeout: cfg.Notify.HTTPTimeout,
	})

	payoutService := service.NewPayoutService(
		paymentRepo,
		splitRepo,
		transferRepo,
		disputeRepo,
		releaseSelector,
		profileClient,
		notifyClient,
		executor,
		metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
		cfg.Payouts,
		logrus.StandardLogger().WithField("module", "payouts-service"),
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, payoutService, cleanup
}
