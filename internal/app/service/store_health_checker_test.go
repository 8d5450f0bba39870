package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/linkpulse/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStoreHealthChecker_Transitions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := infraPrometheus.NewMetrics(nil)
	store := &namedStore{Store: repository.NewMemoryStore(nil), name: "mongo"}
	checker := NewStoreHealthChecker(zap.New(core), store, metrics, time.Minute)
	gauge := metrics.StoreUp.WithLabelValues("mongo")

	assert.True(t, checker.check())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 0, logs.Len())

	store.pingErr = errors.New("server selection timeout")
	assert.False(t, checker.check())
	assert.False(t, checker.check())
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 1, logs.FilterMessage("store unreachable").Len())

	store.pingErr = nil
	assert.True(t, checker.check())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 1, logs.FilterMessage("store reachable again").Len())
}

func TestStoreHealthChecker_NilDependencies(t *testing.T) {
	store := &namedStore{Store: repository.NewMemoryStore(nil), name: "memory"}
	checker := NewStoreHealthChecker(nil, store, nil, 0)

	assert.NotPanics(t, func() { assert.True(t, checker.check()) })
	store.pingErr = errors.New("down")
	assert.NotPanics(t, func() { assert.False(t, checker.check()) })
	assert.Equal(t, 30*time.Second, checker.interval)
}

func TestStoreHealthChecker_StartStop(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	checker := NewStoreHealthChecker(zap.New(core), repository.NewMemoryStore(nil), infraPrometheus.NewMetrics(nil), 10*time.Millisecond)

	checker.Start()
	time.Sleep(30 * time.Millisecond)
	checker.Stop()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("store health checker stopped").Len() == 1
	}, time.Second, 5*time.Millisecond)
}
