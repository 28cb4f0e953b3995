package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/jobs"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
)

// Runs the time-driven booking housekeeping on its own process so a service
// deploy never skips a scheduled pass. Every transition it applies is
// conditional, so running it alongside the service is also safe.
func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting booking jobs runner")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	var publisher jobs.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		publisher = producer
		logger.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		logger.Warn("KAFKA", "Kafka disabled, lifecycle notifications will not be published")
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The lock only reduces contention with in-flight webhooks; the runner
	// stays functional when Redis is unreachable.
	var lock jobs.Locker
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("DATABASE", fmt.Sprintf("Redis unreachable, running without booking locks: %v", err))
	} else {
		logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
		lock = bookingredis.NewLock(redisClient)
	}

	bookingJobs := jobs.New(&db.DB{Bun: bunDB}, publisher, lock, cfg.Kafka.Topics, cfg.Jobs.DraftTTL, logger)
	scheduler := jobs.NewScheduler(bookingJobs, cfg.Jobs.ExpireInterval, cfg.Jobs.NoShowHourUTC, logger)
	scheduler.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("APP", "Shutdown signal received, stopping job loops")
	cancel()
}
