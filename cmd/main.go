package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/cache"
	"github.com/fjod/go_cart/order-engine/internal/config"
	"github.com/fjod/go_cart/order-engine/internal/engine"
	"github.com/fjod/go_cart/order-engine/internal/events"
	"github.com/fjod/go_cart/order-engine/internal/tracking"
	"github.com/fjod/go_cart/order-engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	h "github.com/fjod/go_cart/order-engine/internal/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatal("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	lg.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	store := cache.NewRedisCache(redisClient).WithTTL(cfg.CartTTL)

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, lg.Named("backend"))

	var (
		wg        sync.WaitGroup
		publisher events.Publisher = events.Nop{}
		kafkaPub  *events.KafkaPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:   cfg.KafkaBrokers,
			Topic:     cfg.KafkaTopic,
			QueueSize: cfg.KafkaQueueSize,
			FlushTick: cfg.KafkaFlushTick,
		}, lg.Named("events"))
		publisher = kafkaPub
		wg.Add(1)
		go func() {
			defer wg.Done()
			kafkaPub.Run(ctx)
		}()
	} else {
		lg.Info("no kafka brokers configured, lifecycle events are not published")
	}

	eng := engine.New(client, engine.Config{
		Fees: cfg.Fees,
		Tracking: tracking.Config{
			PollInterval: cfg.PollInterval,
			TickInterval: cfg.TickInterval,
		},
		BannerInterval: cfg.BannerInterval,
		IdleTTL:        cfg.SessionIdleTTL,
	},
		engine.WithCartStore(store),
		engine.WithDismissalStore(store),
		engine.WithPublisher(publisher),
		engine.WithLogger(lg.Named("engine")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	var consumer *events.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			// Each instance needs every event, so each gets its own group.
			groupID = "order-engine-" + uuid.NewString()
		}
		consumer = events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: groupID,
		}, eng.HandleEvent, lg.Named("consumer"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	router := h.NewRouter(eng, client, h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}, lg.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("order engine starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down order engine")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	eng.Close()
	stop()
	wg.Wait()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			lg.Warn("failed to close event consumer", zap.Error(err))
		}
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			lg.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	lg.Info("order engine stopped")
}
