package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/ticket-tracker/internal/config"
)

// NewLogger builds the process logger. Development environments get a
// colored console encoder; everything else logs JSON to stdout. Every entry
// carries the service name and version.
func NewLogger(cfg config.LoggerConfig, app config.AppConfig) (*zap.Logger, error) {
	return newLogger(cfg, app, zapcore.Lock(os.Stdout)), nil
}

func newLogger(cfg config.LoggerConfig, app config.AppConfig, out zapcore.WriteSyncer) *zap.Logger {
	dev := app.Env == "development"
	core := zapcore.NewCore(newEncoder(dev), out, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(zap.String("service", app.Name), zap.String("version", app.Version)),
	}
	if dev {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...)
}

func newEncoder(dev bool) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if dev {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(name string) zapcore.Level {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(strings.TrimSpace(name))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
