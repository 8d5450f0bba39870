package logger

import (
	"testing"

	"github.com/sifan077/linkpulse/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestForApp(t *testing.T) {
	dev := ForApp(config.AppConfig{Env: "development"})
	assert.True(t, dev.Development)
	assert.Equal(t, "console", dev.Encoding)

	prod := ForApp(config.AppConfig{Name: "linkpulse", Env: "production", LogLevel: "warn"})
	assert.False(t, prod.Development)
	assert.Equal(t, "linkpulse", prod.Service)
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, "warn", prod.Level)
}

func TestNew_Level(t *testing.T) {
	l, err := New(Config{Level: "WARN", Encoding: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSync_BeforeAndAfterInit(t *testing.T) {
	_, err := Init(Config{Encoding: "json", Service: "linkpulse"})
	require.NoError(t, err)
	assert.NotPanics(t, func() { _ = Sync() })
}

func TestComponent_Named(t *testing.T) {
	_, err := Init(Config{Development: true, Encoding: "console"})
	require.NoError(t, err)
	assert.NotNil(t, Component("store"))
}
