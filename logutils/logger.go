package logutils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSettings configures the process logger.
type LogSettings struct {
	Enabled         bool   `json:"Enabled"`
	Level           string `json:"Level" validate:"omitempty,eq=ERROR|eq=WARN|eq=INFO|eq=DEBUG"`
	File            string `json:"File"`
	MaxSize         int    `json:"MaxSize"`
	MaxBackups      int    `json:"MaxBackups"`
	CompressRotated bool   `json:"CompressRotated"`
	// Console mirrors file output to stderr using the human readable encoder.
	Console bool `json:"Console"`
}

var (
	mu        sync.RWMutex
	zapLogger = zap.NewNop()
)

// ZapLogger returns the process wide logger. It is a no-op logger until
// OverrideRootLogWithConfig or SetZapLogger is called.
func ZapLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return zapLogger
}

// SetZapLogger replaces the process wide logger.
func SetZapLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	zapLogger = logger
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// NewZapLogger builds a logger for the given settings without installing it.
func NewZapLogger(settings LogSettings) (*zap.Logger, error) {
	if !settings.Enabled {
		return zap.NewNop(), nil
	}

	level, err := parseLevel(settings.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if settings.File != "" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), settings.fileSyncer(), level))
	}
	if settings.Console || settings.File == "" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// OverrideRootLogWithConfig builds a logger from settings and installs it as
// the process wide logger.
func OverrideRootLogWithConfig(settings LogSettings) error {
	logger, err := NewZapLogger(settings)
	if err != nil {
		return err
	}
	SetZapLogger(logger)
	return nil
}
