package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/angiebeauty/storefront/internal/client"
	"github.com/angiebeauty/storefront/internal/config"
	"github.com/angiebeauty/storefront/internal/event"
	handler "github.com/angiebeauty/storefront/internal/handler/http"
	"github.com/angiebeauty/storefront/internal/pricing"
	"github.com/angiebeauty/storefront/internal/promo"
	"github.com/angiebeauty/storefront/internal/repository/postgres"
	redisrepo "github.com/angiebeauty/storefront/internal/repository/redis"
	"github.com/angiebeauty/storefront/internal/service"
	"github.com/angiebeauty/storefront/internal/shipping"
	"github.com/angiebeauty/storefront/migrations"
	"github.com/angiebeauty/storefront/pkg/database"
	"github.com/angiebeauty/storefront/pkg/health"
	"github.com/angiebeauty/storefront/pkg/httpclient"
	pkgkafka "github.com/angiebeauty/storefront/pkg/kafka"
	"github.com/angiebeauty/storefront/pkg/tracing"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	stockConsumer  *pkgkafka.Consumer
	sessions       *service.CartSessions
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
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

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	eventProducer := event.NewProducer(producer, logger)

	// Cart sessions.
	sessions := service.NewCartSessions(
		redisrepo.NewCartRepository(rdb, cfg.CartTTLDuration()),
		eventProducer,
		service.CartOptions{
			Rules:    pricing.NewRules(cfg.TaxRatePercent, cfg.FreeShippingThreshold),
			Promos:   promo.NewCatalog(),
			Shipping: shipping.NewCatalog(),
			Currency: cfg.Currency,
		},
		logger,
	)

	// Stock changes cap open carts. Each event is applied once; events that
	// keep failing go to the dead letter topic.
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	dedup := redisrepo.NewIdempotencyStore(rdb, time.Duration(cfg.EventDedupTTLHours)*time.Hour)
	stockConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaConsumerGroup,
		Topic:    event.TopicStockChanged,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	}, pkgkafka.IdempotentHandler(dedup, event.NewStockHandler(sessions, logger), logger), logger).
		WithDLQ(dlq)

	// Collaborator clients, each behind its own circuit breaker.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	orderClient := client.NewOrderClient(
		httpclient.NewCircuitBreakerClient(baseClient, breakerConfig(cfg, "storefront-order"), logger),
		cfg.OrderServiceURL,
		time.Duration(cfg.OrderTimeout)*time.Second,
		logger,
	)
	paymentClient := client.NewPaymentClient(
		httpclient.NewCircuitBreakerClient(baseClient, breakerConfig(cfg, "storefront-payment"), logger),
		cfg.PaymentServiceURL,
		time.Duration(cfg.PaymentTimeout)*time.Second,
		logger,
	)

	// Build the dependency graph.
	submitter := service.NewOrderSubmitter(orderClient, eventProducer, logger)
	checkoutService := service.NewCheckoutService(
		postgres.NewCheckoutRepository(pool),
		sessions,
		paymentClient,
		submitter,
		logger,
	)
	wishlistService := service.NewWishlistService(redisrepo.NewWishlistRepository(rdb), logger)
	localeService := service.NewLocaleService(
		redisrepo.NewPreferenceRepository(rdb),
		cfg.SupportedLocales,
		cfg.DefaultLocale,
		logger,
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(
		handler.NewCartHandler(sessions, logger),
		handler.NewCheckoutHandler(checkoutService, logger),
		handler.NewPreferenceHandler(wishlistService, localeService, sessions.Shipping(), logger),
		healthHandler,
		handler.RouterConfig{
			PprofCIDRs:  cfg.PprofAllowedCIDRs,
			CORSOrigins: cfg.CORSAllowedOrigins,
		},
		logger,
	)

	// WriteTimeout stays unset: cart streams are long-lived and every other
	// route runs under the router's request timeout.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		producer:       producer,
		dlq:            dlq,
		stockConsumer:  stockConsumer,
		sessions:       sessions,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func breakerConfig(cfg *config.Config, name string) httpclient.CircuitBreakerConfig {
	cb := httpclient.DefaultCircuitBreakerConfig(name)
	cb.MaxRequests = cfg.CBMaxRequests
	cb.Interval = time.Duration(cfg.CBInterval) * time.Second
	cb.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	cb.FailureRatio = cfg.CBFailureRatio
	cb.MinRequests = cfg.CBMinRequests
	return cb
}

// Run starts the HTTP server, the stock consumer and idle session eviction,
// and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.stockConsumer.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("stock consumer stopped", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.evictIdleSessions(bgCtx)
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopBackground()
	wg.Wait()
	return errors.Join(runErr, a.Shutdown())
}

// evictIdleSessions closes cart sessions nobody has touched for the
// configured idle time. Their snapshots stay in Redis.
func (a *App) evictIdleSessions(ctx context.Context) {
	idle := a.cfg.CartIdleDuration()
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.EvictIdle(idle); n > 0 {
				a.logger.Info("evicted idle cart sessions", slog.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests; open streams end when their
// sessions close)
// 2. Cart sessions
// 3. Stock consumer
// 4. Tracer (flush pending spans from drained requests)
// 5. Queued cart events and Kafka producers
// 6. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Stop accepting requests and drain in-flight ones (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- a.httpServer.Shutdown(httpCtx) }()

	// 2. Closing sessions ends open cart streams so the drain can finish.
	a.sessions.CloseAll()
	if err := <-shutdownDone; err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Stop consuming stock events.
	if err := a.stockConsumer.Close(); err != nil {
		a.logger.Error("stock consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Hand queued cart events to the producer, then close the producers.
	eventsCtx, eventsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer eventsCancel()
	if err := a.sessions.WaitEvents(eventsCtx); err != nil {
		a.logger.Warn("cart events still queued at shutdown", slog.String("error", err.Error()))
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 6. Close Redis client and PostgreSQL pool.
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
