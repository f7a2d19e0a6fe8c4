package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	checkinredis "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
	ticket_db "ms-checkin/internal/tickets/db"
	"ms-checkin/internal/tickets/qr"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.Ping(); err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// connectRedis returns nil when Redis is not configured or not reachable;
// scanning works without it, only debouncing is lost.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Warn("REDIS", "REDIS_ADDR not set, scan debouncing disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, scan debouncing disabled: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func authMiddleware(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if cfg.Mode == "unverified" {
		log.Warn("AUTH", "token signatures are NOT verified; use only behind a trusted gateway")
		return auth.UnverifiedMiddleware()
	}
	mw, err := auth.Middleware(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
	}
	log.Info("AUTH", fmt.Sprintf("verifying tokens against %s", cfg.OIDCIssuer))
	return mw
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("checkin-service", cfg.LogDir)
	defer log.Close()
	log.Info("APP", "Starting Check-in Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Database.MigrationsDir,
		AutoMigrate:   cfg.Database.AutoMigrate,
	}, log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	codec := qr.NewCodec(cfg.Scanner.QRSecret)
	if !codec.Sealed() {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, accepting plain JSON QR payloads")
	}

	service := checkin.NewService(&ticket_db.DB{Bun: bunDB}, codec, cfg.Scanner.LookupTimeout, cfg.Scanner.CommitTimeout, log)
	emitter := sse.NewCheckinEventEmitter()

	if redisClient := connectRedis(ctx, cfg.Redis, log); redisClient != nil {
		defer redisClient.Close()
		service.Debounce = checkinredis.NewRedis(redisClient, cfg.Redis.DebounceWindow, log)
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.CheckinTopic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.CheckinTopic, log)
		defer producer.Close()
		service.Notifier = producer

		// Every instance feeds its own dashboards from the whole topic, so
		// check-ins made on other instances show up too.
		groupID := kafka.FeedGroupID(cfg.Kafka.GroupID)
		log.LogKafka("SUBSCRIBE", cfg.Kafka.CheckinTopic, "consumer group "+groupID)
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CheckinTopic, groupID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx, emitter.Emit); err != nil {
				log.Error("KAFKA", fmt.Sprintf("check-in consumer stopped: %v", err))
			}
		}()
	} else {
		log.Info("KAFKA", "Kafka disabled, check-in feed is local to this instance")
		service.Notifier = emitter
	}

	registry := checkin.NewRegistry(service, cfg.Scanner.RecentValidations)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.Sweep(cfg.Scanner.SessionIdleTTL)
			case <-ctx.Done():
				return
			}
		}
	}()

	handler := checkin_api.NewHandler(service, registry, emitter, log)
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     handler.Routes(authMiddleware(ctx, cfg.Auth, log)),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Check-in Service shutdown complete")
	}
	if err := runner.Close(); err != nil {
		log.Warn("DATABASE", fmt.Sprintf("closing migrator: %v", err))
	}
}
