package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/patetisho1/rabotim-com-sub003/internal/auth"
	"github.com/patetisho1/rabotim-com-sub003/internal/collaborator"
	"github.com/patetisho1/rabotim-com-sub003/internal/config"
	"github.com/patetisho1/rabotim-com-sub003/internal/event"
	handler "github.com/patetisho1/rabotim-com-sub003/internal/handler/http"
	"github.com/patetisho1/rabotim-com-sub003/internal/repository/postgres"
	redisrepo "github.com/patetisho1/rabotim-com-sub003/internal/repository/redis"
	"github.com/patetisho1/rabotim-com-sub003/internal/service"
	"github.com/patetisho1/rabotim-com-sub003/migrations"
	"github.com/patetisho1/rabotim-com-sub003/pkg/database"
	"github.com/patetisho1/rabotim-com-sub003/pkg/health"
	"github.com/patetisho1/rabotim-com-sub003/pkg/httpclient"
	pkgkafka "github.com/patetisho1/rabotim-com-sub003/pkg/kafka"
	"github.com/patetisho1/rabotim-com-sub003/pkg/middleware"
	"github.com/patetisho1/rabotim-com-sub003/pkg/tracing"
)

const serviceName = "reputation-service"

// App wires together all dependencies and runs the reputation service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	taskStatus     *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
		DSN:             cfg.PostgresDSN(),
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	reg := prometheus.DefaultRegisterer
	if err := database.RegisterPoolMetrics(reg, pool, serviceName); err != nil {
		logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Redis backs the summary cache, the task status cache and consumer
	// idempotency.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Collaborators sit behind one circuit breaker each.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CollaboratorTimeout
	taskHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("task-service"), logger)
	userHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("user-service"), logger)

	// Build the dependency graph.
	taskStatusCache := redisrepo.NewTaskStatusCache(redisClient, cfg.TaskStatusCacheTTL)
	taskStatuses := collaborator.NewCachedTaskStatusReader(
		collaborator.NewTaskClient(taskHTTP, cfg.TaskServiceURL), taskStatusCache, logger)

	evaluationService := service.NewEvaluationService(service.Deps{
		Evaluations: postgres.NewEvaluationRepository(pool),
		Summaries:   postgres.NewSummaryRepository(pool),
		Cache:       redisrepo.NewSummaryCache(redisClient, cfg.SummaryCacheTTL),
		Tasks:       taskStatuses,
		Users:       collaborator.NewUserClient(userHTTP, cfg.UserServiceURL),
		Events:      event.NewProducer(producer, logger),
		Metrics:     service.NewMetrics(reg),
		Logger:      logger,
	})

	// Task status events keep the gate's cache warm.
	var (
		dlq        *pkgkafka.DLQProducer
		taskStatus *pkgkafka.Consumer
	)
	if cfg.KafkaConsumerEnabled {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		idempotency := pkgkafka.NewRedisIdempotencyStore(redisClient, "reputation:kafka:processed", cfg.IdempotencyTTL)
		taskStatus = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.KafkaGroupID + "-task-status",
			Topic:      event.TopicTaskStatusChanged,
			MinBytes:   1,
			MaxBytes:   10e6,
			MaxRetries: cfg.KafkaMaxRetries,
		}, pkgkafka.IdempotentHandler(idempotency,
			event.NewConsumer(taskStatusCache, logger).HandleTaskStatusChanged, logger),
			logger, pkgkafka.WithDeadLetter(dlq))
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, time.Hour)
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    serviceName,
		Service:        evaluationService,
		Health:         healthHandler,
		ValidateToken:  jwtManager.Validate,
		HTTPMetrics:    middleware.NewHTTPMetrics(reg, serviceName),
		MetricsHandler: promhttp.Handler(),
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, logger),
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		PprofEnabled:   cfg.PprofEnabled,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		dlq:            dlq,
		taskStatus:     taskStatus,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	if a.taskStatus != nil {
		go func() {
			if err := a.taskStatus.Start(ctx); err != nil {
				errCh <- fmt.Errorf("task status consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", err.Error()))
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer and DLQ producer
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close the Kafka consumer and its dead-letter producer.
	if a.taskStatus != nil {
		if err := a.taskStatus.Close(); err != nil {
			a.logger.Error("task status consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Redis.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 6. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
