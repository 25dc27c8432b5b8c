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

	"ms-tickets/internal/analytics"
	analytics_api "ms-tickets/internal/analytics/api"
	"ms-tickets/internal/auth"
	"ms-tickets/internal/config"
	"ms-tickets/internal/database/migrations"
	"ms-tickets/internal/email"
	"ms-tickets/internal/kafka"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/order"
	"ms-tickets/internal/order/db"
	"ms-tickets/internal/order/order_api"
	rediswrap "ms-tickets/internal/order/redis"
	"ms-tickets/internal/payment/hashpay"
	"ms-tickets/internal/server"
	"ms-tickets/internal/sse"
	"ms-tickets/internal/telemetry"
	tickets "ms-tickets/internal/tickets/service"
	"ms-tickets/internal/tickets/ticket_api"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// eventPublisher is satisfied by both the Kafka producer and its no-op stand-in.
type eventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderPaid(ctx context.Context, order *models.Order) error
	PublishOrderFailed(ctx context.Context, order *models.Order) error
	PublishTicketScanned(ctx context.Context, order *models.Order) error
	Close() error
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// connectRedis returns nil when Redis is unreachable; polling then runs
// without the duplicate-call guard.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *logger.Logger) *redis.Client {
	if cfg.Addr == "" {
		logger.Warn("REDIS", "REDIS_ADDR not set, payment polling runs without a lock")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, payment polling runs without a lock: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	logger.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func setupKafka(ctx context.Context, cfg config.KafkaConfig, logger *logger.Logger) eventPublisher {
	if !cfg.Enabled {
		logger.Info("KAFKA", "Kafka disabled, lifecycle events are not published")
		return kafka.NoopProducer{}
	}

	logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Brokers))
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, kafka.TopicNames(cfg.Topics), logger); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}
	return kafka.NewProducer(cfg.Brokers, cfg.Topics, logger)
}

func migrateSchema(ctx context.Context, bunDB *bun.DB, logger *logger.Logger) {
	runner := migrations.NewRunner(bunDB.DB, logger)
	defer runner.Close()

	if err := runner.MigrateUp(); err != nil {
		logger.Warn("MIGRATE", fmt.Sprintf("SQL migrations failed, falling back to model schema: %v", err))
		if err := (&db.DB{Bun: bunDB}).CreateSchema(ctx); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Failed to create schema: %v", err))
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("CONFIG: .env file not found, using environment variables")
	}
	cfg := config.Load()

	level := logger.ParseLevel(cfg.Log.Level)
	logger := logger.NewLogger(cfg.Log.Dir)
	defer logger.Close()
	logger.SetLevel(level)

	logger.Info("APP", "Starting ticketing service initialization")
	ctx := context.Background()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, logger)

	bunDB := connectDatabase(ctx, cfg.Database, logger)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		migrateSchema(ctx, bunDB, logger)
	}

	redisClient := connectRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer := setupKafka(ctx, cfg.Kafka, logger)
	defer producer.Close()

	store := &db.DB{Bun: bunDB}
	emitter := sse.NewPaymentEventEmitter()
	issuer := email.NewIssuer(email.NewSender(cfg.Email, logger), cfg.Email, cfg.Event, logger)

	orderService := order.NewOrderService(
		store,
		hashpay.NewClient(cfg.Gateway),
		issuer,
		producer,
		order.Settings{
			Prices:          cfg.Tickets.Prices,
			DefaultType:     cfg.Tickets.DefaultType,
			MaxPerOrder:     cfg.Tickets.MaxPerOrder,
			ReferencePrefix: cfg.Gateway.ReferencePrefix,
		},
		logger,
	)
	orderService.Notifier = emitter

	var pollLock *rediswrap.Redis
	if redisClient != nil {
		pollLock = rediswrap.NewRedis(redisClient, cfg.Redis.PollLockTTL, logger)
		orderService.Lock = pollLock
	}

	ticketService := tickets.NewTicketService(store, producer, cfg.Verification.AllowUnpaidScan, logger)

	var verifiers []auth.TokenVerifier
	if cfg.Admin.JWTSecret != "" {
		verifiers = append(verifiers, auth.HMACVerifier{Secret: []byte(cfg.Admin.JWTSecret)})
	}
	if cfg.Admin.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.Admin.OIDCIssuer)
		if err != nil {
			logger.Error("AUTH", fmt.Sprintf("OIDC verifier disabled: %v", err))
		} else {
			verifiers = append(verifiers, oidcVerifier)
		}
	}
	if len(verifiers) == 0 {
		logger.LogSecurity("AUTH_DISABLED", "No admin credentials configured, admin routes are open")
	}

	health := map[string]server.HealthCheck{
		"database": func(ctx context.Context) error { return bunDB.PingContext(ctx) },
	}
	if pollLock != nil {
		health["redis"] = pollLock.Ping
	}

	logger.Info("HTTP", "Setting up router and middleware")
	router := server.NewRouter(server.Handlers{
		Orders:    order_api.NewHandler(orderService, emitter, cfg.Server.StatusStreamTimeout, logger),
		Tickets:   ticket_api.NewHandler(ticketService, logger),
		Login:     auth.NewLoginHandler(cfg.Admin, logger),
		Analytics: analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), logger),
		AdminAuth: auth.Middleware(logger, verifiers...),
		Health:    health,
	}, cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      telemetry.WrapHandler(router, cfg.Telemetry.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Ticketing service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Ticketing service shutdown complete")
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		logger.Warn("TELEMETRY", fmt.Sprintf("Trace flush failed: %v", err))
	}
}
