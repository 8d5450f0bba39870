package service

import (
	"context"
	"time"

	"github.com/sifan077/linkpulse/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

// StoreHealthChecker periodically pings the active store, logs up/down
// transitions and exports the result as a gauge.
type StoreHealthChecker struct {
	logger   *zap.Logger
	store    repository.Store
	metrics  *infraPrometheus.Metrics
	interval time.Duration
	stopChan chan struct{}
	healthy  bool
}

// NewStoreHealthChecker creates a checker that pings every interval.
func NewStoreHealthChecker(logger *zap.Logger, store repository.Store, metrics *infraPrometheus.Metrics, interval time.Duration) *StoreHealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StoreHealthChecker{
		logger:   logger,
		store:    store,
		metrics:  metrics,
		interval: interval,
		stopChan: make(chan struct{}),
		healthy:  true,
	}
}

// Start begins the periodic checks.
func (c *StoreHealthChecker) Start() {
	go c.run()
}

// Stop stops the periodic checks.
func (c *StoreHealthChecker) Stop() {
	close(c.stopChan)
}

func (c *StoreHealthChecker) run() {
	c.check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.check()
		case <-c.stopChan:
			c.logger.Info("store health checker stopped")
			return
		}
	}
}

// check is only called from run's goroutine, so healthy needs no lock.
func (c *StoreHealthChecker) check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	err := c.store.Ping(ctx)
	up := err == nil

	gauge := c.metrics.StoreUp.WithLabelValues(c.store.Name())
	if up {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}

	switch {
	case !up && c.healthy:
		c.logger.Error("store unreachable", zap.String("backend", c.store.Name()), zap.Error(err))
	case up && !c.healthy:
		c.logger.Info("store reachable again", zap.String("backend", c.store.Name()))
	}
	c.healthy = up
	return up
}
