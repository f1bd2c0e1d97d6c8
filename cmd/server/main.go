/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the revenue engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + REVENUE_* environment)
  2. Initialize SQLite store and the bounded session pool over its handle
  3. Select the cache backend (memory or redis)
  4. Wire guard, service, optional AMQP invalidation consumer
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file path

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the AMQP consumer, close broker and database connections
  4. Exit

EXAMPLES:
  # Run with defaults (SQLite file, in-memory cache, no broker)
  ./server

  # Run against redis and rabbitmq
  REVENUE_CACHE_BACKEND=redis REVENUE_AMQP_URL=amqp://localhost ./server

SEE ALSO:
  - config/config.go: Recognized options
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/revenue-engine/api"
	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/config"
	"github.com/warp/revenue-engine/events"
	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/session"
	"github.com/warp/revenue-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Storage and the bounded session pool share one connection set.
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	pool := session.NewPool(store.DB(), session.Options{
		MaxSize:        cfg.Pool.MaxSize,
		ConnectTimeout: cfg.Pool.ConnectTimeout,
		HealthCheck:    true,
	})
	defer pool.Close()

	// Cache backend
	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisStore.Close()
		cacheStore = redisStore
	default:
		cacheStore = cache.NewMemoryStore()
	}
	summaryCache := cache.New(cacheStore, cfg.Cache.TTL, cache.WithLogger(logger))

	// Core service
	guard := revenue.NewGuard(store)
	service, err := revenue.NewService(revenue.ServiceConfig{
		Guard:        guard,
		Cache:        summaryCache,
		Aggregator:   store,
		Pool:         pool,
		Reservations: store,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to wire revenue service", zap.Error(err))
	}

	// Optional broker-driven cache invalidation
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var publisher api.EventPublisher
	if cfg.AMQP.URL != "" {
		client, err := events.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, logger)
		if err != nil {
			logger.Fatal("failed to connect to broker", zap.Error(err))
		}
		defer client.Close()
		publisher = client

		go func() {
			err := client.Consume(consumerCtx, serviceInvalidator{service})
			if err != nil && consumerCtx.Err() == nil {
				logger.Error("invalidation consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("invalidation events enabled",
			zap.String("exchange", cfg.AMQP.Exchange),
			zap.String("queue", cfg.AMQP.Queue))
	}

	// HTTP
	handler := api.NewHandler(service, store, store, publisher, logger)
	handler.Resetter = store
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("cache_backend", cfg.Cache.Backend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	stopConsumer()

	logger.Info("server stopped")
}

// serviceInvalidator adapts the revenue service to the events consumer,
// which speaks in raw string identifiers off the wire.
type serviceInvalidator struct {
	service *revenue.Service
}

func (i serviceInvalidator) Invalidate(ctx context.Context, tenant, property string) error {
	return i.service.InvalidateProperty(ctx, revenue.TenantID(tenant), revenue.PropertyID(property))
}
