package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sifan077/linkpulse/config"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
	infraMongo "github.com/sifan077/linkpulse/internal/infra/mongo"
	infraPostgres "github.com/sifan077/linkpulse/internal/infra/postgres"
	"go.uber.org/zap"
)

const openTimeout = 15 * time.Second

// storeCandidate is one persistent backend to try at startup.
type storeCandidate struct {
	name string
	open func(ctx context.Context) (repository.Store, error)
}

// OpenStore picks the backend once: Mongo when a URI is configured, else
// Postgres when a host is configured, else memory. A backend that fails to
// open is logged and skipped; the memory store is always available, so this
// never fails.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) repository.Store {
	if log == nil {
		log = zap.NewNop()
	}
	alloc := shortcode.NewAllocator(nil)

	var candidates []storeCandidate
	switch {
	case strings.TrimSpace(cfg.Mongo.URI) != "":
		if !cfg.Mongo.Configured() {
			log.Warn("ignoring malformed mongo uri")
			break
		}
		candidates = append(candidates, storeCandidate{
			name: "mongo",
			open: func(ctx context.Context) (repository.Store, error) {
				return openMongo(ctx, cfg.Mongo, alloc, log.Named("mongo"))
			},
		})
	case cfg.Postgres.Configured():
		candidates = append(candidates, storeCandidate{
			name: "postgres",
			open: func(ctx context.Context) (repository.Store, error) {
				return openPostgres(ctx, cfg.Postgres, alloc)
			},
		})
	}

	return selectStore(ctx, log, candidates, func() repository.Store {
		return repository.NewMemoryStore(alloc)
	})
}

func selectStore(ctx context.Context, log *zap.Logger, candidates []storeCandidate, fallback func() repository.Store) repository.Store {
	for _, c := range candidates {
		openCtx, cancel := context.WithTimeout(ctx, openTimeout)
		store, err := c.open(openCtx)
		cancel()
		if err != nil {
			log.Warn("persistent store unavailable, falling back",
				zap.String("backend", c.name),
				zap.Error(err))
			continue
		}
		log.Info("using persistent store", zap.String("backend", store.Name()))
		return store
	}

	store := fallback()
	log.Warn("using volatile store, data is lost on restart", zap.String("backend", store.Name()))
	return store
}

func openMongo(ctx context.Context, cfg config.MongoConfig, alloc *shortcode.Allocator, log *zap.Logger) (repository.Store, error) {
	client, err := infraMongo.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := repository.NewMongoStore(ctx, client, cfg.Database, alloc, log)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: prepare store: %w", err)
	}
	return store, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig, alloc *shortcode.Allocator) (repository.Store, error) {
	db, err := infraPostgres.NewGorm(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := infraPostgres.AutoMigrate(ctx, db, repository.Models()...); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return repository.NewPostgresStore(db, alloc), nil
}
