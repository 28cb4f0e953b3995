package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/admin"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/api"
	"ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/jobs"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment/mercadopago"
	"ms-booking/internal/reconcile"
	"ms-booking/internal/voucher"
	"ms-booking/internal/webhook"
	"ms-booking/internal/webhook/storage"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), logger)
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var publisher reconcile.Publisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		logger.Info("KAFKA", "Kafka producer initialized successfully")

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
		publisher = producer
	} else {
		logger.Warn("KAFKA", "Kafka disabled, booking notifications will not be published")
	}

	ledger, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, logger)
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to initialize webhook ledger: %v", err))
	}

	bookingDB := &db.DB{Bun: bunDB}
	mpClient := mercadopago.NewClient(cfg.MercadoPago, logger)
	lock := bookingredis.NewLock(redisClient)
	voucherGen := voucher.NewGenerator(cfg.Jobs.VoucherSecret)

	backURLs := models.BackURLs{
		Success: cfg.MercadoPago.BackURLs.Success,
		Pending: cfg.MercadoPago.BackURLs.Pending,
		Failure: cfg.MercadoPago.BackURLs.Failure,
	}
	notifyURL := cfg.Server.PublicURL + "/api/webhooks/mercadopago"
	bookingService := booking.NewService(bookingDB, mpClient, backURLs, notifyURL, logger)

	engine := reconcile.NewEngine(bookingDB, bookingService, lock, publisher, voucherGen, cfg.Kafka.Topics, logger)

	// Housekeeping jobs run in-process too; every transition they apply is
	// conditional, so running the standalone jobs-runner alongside is safe.
	var jobsPublisher jobs.Publisher = publisher
	bookingJobs := jobs.New(bookingDB, jobsPublisher, lock, cfg.Kafka.Topics, cfg.Jobs.DraftTTL, logger)
	scheduler := jobs.NewScheduler(bookingJobs, cfg.Jobs.ExpireInterval, cfg.Jobs.NoShowHourUTC, logger)
	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	scheduler.Start(jobsCtx)

	webhookHandler := webhook.NewHandler(ledger, engine, mpClient, cfg.MercadoPago.WebhookSecret, logger)
	stripeHandler := webhook.NewStripeHandler(webhookHandler, cfg.Stripe.WebhookSecret)
	bookingHandler := &api.Handler{BookingService: bookingService}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Webhook Routes (provider-facing, authenticated by signature) ---
	r.Get("/api/webhooks/mercadopago", webhookHandler.Ping)
	r.Post("/api/webhooks/mercadopago", webhookHandler.HandleMercadoPago)
	r.Post("/api/webhooks/stripe", stripeHandler.HandleStripe)
	logger.Info("ROUTER", "Webhook endpoints registered under /api/webhooks")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api/bookings/{kind}", func(r chi.Router) {
			r.Post("/", bookingHandler.CreateBooking)
			r.Get("/{bookingId}", bookingHandler.GetBooking)
			r.Post("/{bookingId}/checkout", bookingHandler.Checkout)
		})
		logger.Info("ROUTER", "Booking routes registered under /api/bookings")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	adminHandler := admin.NewHandler(mpClient, engine, ledger, bookingDB, logger)
	adminServer := &http.Server{
		Addr:    cfg.Server.AdminPort,
		Handler: admin.NewRouter(adminHandler),
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Admin API running on %s", cfg.Server.AdminPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("Admin server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Admin server shutdown failed: %v", err))
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
