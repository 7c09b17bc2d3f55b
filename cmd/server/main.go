/**
 * @description
 * This is the main entry point for the entitlement service.
 * It wires configuration, logging, the entitlement store, the payment gateway
 * client, optional event publishing and rate limiting, the application services
 * and the HTTP router, then serves until SIGINT or SIGTERM.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/StephenStolk/nutriapp-sub001/internal/api"
	"github.com/StephenStolk/nutriapp-sub001/internal/app"
	"github.com/StephenStolk/nutriapp-sub001/internal/config"
	"github.com/StephenStolk/nutriapp-sub001/internal/logging"
	"github.com/StephenStolk/nutriapp-sub001/internal/store"
	"github.com/StephenStolk/nutriapp-sub001/pkg/gatewayclient"
	"github.com/StephenStolk/nutriapp-sub001/pkg/rabbitmq"
)

func main() {
	// Load .env when present; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "entitlement-service",
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("entitlement service terminated")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := store.Open(ctx, store.Options{
		Driver:      cfg.DatabaseDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer repo.Close()
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("entitlement store ready")

	gateway := gatewayclient.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout())
	gateway.Logger = logger.With().Str("component", "gatewayclient").Logger()

	var publisher app.EventPublisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn().Msg("RABBITMQ_URL not set; entitlement events disabled")
	} else {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable; entitlement events disabled")
		} else {
			defer producer.Close()
			publisher = producer
		}
	}

	var limiter api.RateLimiter
	if redisClient := connectRedis(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.CheckoutRateLimitPerMinute, time.Minute)
	}

	exchange := cfg.EntitlementEventsExchange
	sweeper := app.NewSweeper(repo, publisher, exchange, logger)
	services := api.Services{
		Orders: app.NewOrderService(repo, gateway, publisher, app.OrderConfig{
			PublicKeyID: cfg.GatewayKeyID,
			ProPlanID:   cfg.GatewayProPlanID,
			Exchange:    exchange,
		}, logger),
		Verifier: app.NewVerificationService(repo, cfg.GatewayKeySecret, publisher, exchange, logger),
		Gate:     app.NewUsageGate(repo, logger),
		View:     app.NewViewService(repo),
		Sweeper:  sweeper,
	}

	routerCfg := api.RouterConfig{
		SessionSecret:  cfg.SessionJWTSecret,
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.Origins(),
		RateLimiter:    limiter,
	}
	if strings.TrimSpace(cfg.AIServiceURL) != "" {
		proxy, err := api.NewAIProxy(cfg.AIServiceURL, logger)
		if err != nil {
			return err
		}
		routerCfg.AIProxy = proxy
	}
	router := api.NewRouter(api.NewHandler(services, logger), routerCfg, logger)

	var scheduler *app.Scheduler
	if schedule := strings.TrimSpace(cfg.ExpirySweepSchedule); schedule != "" {
		scheduler = app.NewScheduler(app.NewJobs(sweeper, time.Minute, logger), schedule, logger)
		if err := scheduler.Start(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.ServerPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, gracefully shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if scheduler != nil {
			select {
			case <-scheduler.Stop().Done():
			case <-shutdownCtx.Done():
				logger.Warn().Msg("scheduled sweep still running at shutdown")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.CheckoutRateLimitPerMinute <= 0 {
		return nil
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn().Msg("REDIS_URL not set; checkout rate limiting disabled")
		return nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis url parse failed; checkout rate limiting disabled")
		return nil
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis ping failed; checkout rate limiting disabled")
		client.Close()
		return nil
	}
	logger.Info().Msg("redis connected")
	return client
}
