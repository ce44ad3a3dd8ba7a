package logutils

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileSyncer writes to File and rotates it once it grows past MaxSize
// megabytes, keeping MaxBackups old files.
func (s LogSettings) fileSyncer() zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   s.File,
		MaxSize:    s.MaxSize,
		MaxBackups: s.MaxBackups,
		Compress:   s.CompressRotated,
	})
}
