package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new structured logger. Production logs are JSON, anything
// else uses the colored console encoder. An empty level keeps zap's default
// for the environment.
func New(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Encoding = "json"
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// Always log to stdout for container compatibility
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	if lvl, ok := parseLevel(level); ok {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// NewWithWriter builds a JSON logger that writes to w with the production
// encoder settings.
func NewWithWriter(w io.Writer, level string) *zap.Logger {
	lvl, ok := parseLevel(level)
	if !ok {
		lvl = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		lvl,
	)

	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewWithDefaults creates a logger from SERVER_ENV and LOG_LEVEL
func NewWithDefaults() *zap.Logger {
	env := os.Getenv("SERVER_ENV")
	if env == "" {
		env = "development"
	}

	logger, err := New(env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

func parseLevel(level string) (zapcore.Level, bool) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zapcore.InfoLevel, false
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}
