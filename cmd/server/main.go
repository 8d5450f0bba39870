package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/linkpulse/config"
	appserver "github.com/sifan077/linkpulse/internal/app/server"
	appservice "github.com/sifan077/linkpulse/internal/app/service"
	"github.com/sifan077/linkpulse/internal/infra/logger"
	infraNATS "github.com/sifan077/linkpulse/internal/infra/nats"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	infraRedis "github.com/sifan077/linkpulse/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.MustInit(logger.ForApp(cfg.App))
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("http_addr", cfg.App.HTTPAddr),
		zap.Bool("mongo_configured", cfg.Mongo.Configured()),
		zap.Bool("postgres_configured", cfg.Postgres.Configured()),
		zap.Bool("redis_configured", cfg.Redis.Configured()),
		zap.Bool("nats_configured", cfg.NATS.Configured()),
	)

	registry := prometheus.NewRegistry()
	metrics := infraPrometheus.NewMetrics(registry)

	store := appservice.OpenStore(ctx, cfg, logger.Component("store"))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("Failed to close store", zap.Error(err))
		}
	}()

	direct := appservice.NewDirectRecorder(store, logger.Component("clicks"), metrics)
	defer direct.Wait()

	var recorder appservice.ClickRecorder = direct
	if natsConn, js := connectNATS(cfg, log); natsConn != nil {
		defer func() { _ = natsConn.Drain() }()

		consumer := appservice.NewClickConsumer(js, logger.Component("click-consumer"), store, metrics)
		if err := consumer.Start(ctx); err != nil {
			log.Warn("Click consumer unavailable, recording clicks directly", zap.Error(err))
		} else {
			defer consumer.Wait()
			publisher := appservice.NewClickPublisher(js, direct, logger.Component("click-publisher"))
			// Publishes can still fall back to direct, so they finish before direct.Wait.
			defer publisher.Wait()
			recorder = publisher
			log.Info("Recording clicks through JetStream")
		}
	}

	svc := appservice.New(appservice.Deps{
		Store:    store,
		Recorder: recorder,
		Logger:   logger.Component("service"),
		Metrics:  metrics,
	})

	health := appservice.NewStoreHealthChecker(logger.Component("health"), store, metrics, 30*time.Second)
	health.Start()
	defer health.Stop()

	redisClient := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.App.IsProduction() {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, registry)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	server := appserver.New(appserver.Dependencies{
		Logger:         log,
		Service:        svc,
		Redis:          redisClient,
		SessionSecret:  sessionSecret(cfg.App, log),
		AllowedOrigins: cfg.App.AllowedOrigins,
		TrustedProxies: cfg.App.TrustedProxies,
		SecureCookies:  cfg.App.IsProduction(),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down HTTP server", zap.Error(err))
		}
	}()

	log.Info("Starting HTTP server", zap.String("addr", cfg.App.HTTPAddr), zap.String("backend", svc.Backend()))
	if err := server.Listen(cfg.App.HTTPAddr); err != nil {
		log.Error("Fiber server exited", zap.Error(err))
	}
	// Cancels background work when Listen returned without a signal.
	stop()
}

func connectRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Configured() {
		log.Info("Redis not configured, rate limiting disabled")
		return nil
	}
	client, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Failed to connect to Redis, rate limiting disabled", zap.Error(err))
		return nil
	}
	log.Info("Connected to Redis successfully")
	return client
}

func connectNATS(cfg *config.Config, log *zap.Logger) (*nats.Conn, nats.JetStreamContext) {
	if !cfg.NATS.Configured() {
		return nil, nil
	}
	conn, js, err := infraNATS.Connect(cfg.NATS, logger.Component("nats"))
	if err != nil {
		log.Warn("Failed to connect to NATS, recording clicks directly", zap.Error(err))
		return nil, nil
	}
	log.Info("Connected to NATS successfully")
	return conn, js
}

// sessionSecret returns the configured secret, or a random one that lives
// only as long as the process.
func sessionSecret(app config.AppConfig, log *zap.Logger) []byte {
	if app.SessionSecret != "" {
		return []byte(app.SessionSecret)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal("Failed to generate session secret", zap.Error(err))
	}
	log.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	return secret
}
