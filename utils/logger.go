package utils

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogConfig selects the level and outputs of a logger
type LogConfig struct {
	Debug bool
	File  string // written in addition to stdout, empty for stdout only
}

// NewLogger builds a JSON logger writing to stdout and, when set, cfg.File
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if cfg.Debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	config.OutputPaths = []string{"stdout"}
	if cfg.File != "" {
		config.OutputPaths = append(config.OutputPaths, cfg.File)
	}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// InitLogger initializes the global logger instance. Only the first call
// builds it, later calls return the same logger and error.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		log, err = NewLogger(cfg)
	})
	if log == nil {
		if err == nil {
			err = fmt.Errorf("logger initialization failed earlier")
		}
		return nil, err
	}
	return log, nil
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
