package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sifan077/linkpulse/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config drives how the zap logger is built.
type Config struct {
	Development bool
	Level       string
	Encoding    string
	// Service is attached to every entry as "service" when set.
	Service string
}

// ForApp derives logger settings from the application config. Production
// writes JSON; every other environment gets the console encoder.
func ForApp(app config.AppConfig) Config {
	cfg := Config{Level: app.LogLevel, Service: app.Name}
	if app.IsProduction() {
		cfg.Encoding = "json"
		return cfg
	}
	cfg.Development = true
	cfg.Encoding = "console"
	return cfg
}

var (
	mu     sync.RWMutex
	global *zap.Logger
	colors = stdoutIsTerminal()
)

// Init builds the process logger and replaces the previous one.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	prev := global
	global = l
	mu.Unlock()

	if prev != nil {
		_ = prev.Sync()
	}
	return l, nil
}

// MustInit panics if the logger cannot be built.
func MustInit(cfg Config) *zap.Logger {
	l, err := Init(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// L returns the process logger. Before Init it is a development logger so
// config loading errors still reach the console.
func L() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		if dev, err := zap.NewDevelopment(); err == nil {
			global = dev
		} else {
			global = zap.NewNop()
		}
	}
	return global
}

// Component returns the process logger named for one part of the system,
// e.g. "store" or "click-consumer".
func Component(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes the process logger. Sync errors from terminals are ignored.
func Sync() error {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return nil
	}

	err := l.Sync()
	if err == nil || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) || errors.Is(err, os.ErrInvalid) {
		return nil
	}
	return err
}

// New returns a zap.Logger configured according to cfg.
func New(cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zapCfg.Encoding = cfg.Encoding
	}
	zapCfg.EncoderConfig = encoderConfig(zapCfg.Encoding == "console")

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}
	return zapCfg.Build(opts...)
}

func encoderConfig(console bool) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
	}
	if console {
		enc.ConsoleSeparator = " | "
		enc.EncodeLevel = consoleLevel
		enc.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString(t.Format("2006-01-02 15:04:05.000"))
		}
	}
	return enc
}

const colorReset = "\x1b[0m"

var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel:  "\x1b[36m",
	zapcore.InfoLevel:   "\x1b[32m",
	zapcore.WarnLevel:   "\x1b[33m",
	zapcore.ErrorLevel:  "\x1b[31m",
	zapcore.DPanicLevel: "\x1b[35m",
	zapcore.PanicLevel:  "\x1b[35m",
	zapcore.FatalLevel:  "\x1b[31m",
}

func consoleLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	label := fmt.Sprintf("%-5s", level.CapitalString())
	if color, ok := levelColors[level]; ok && colors {
		label = color + label + colorReset
	}
	enc.AppendString(label)
}

func stdoutIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" || os.Stdout == nil {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
