package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's logging through zap.
type GormLogger struct {
	logger   *zap.Logger
	LogLevel logger.LogLevel
}

// NewGormLogger creates a GormLogger at warn level.
func NewGormLogger(l *zap.Logger) *GormLogger {
	return &GormLogger{
		logger:   l.Named("gorm"),
		LogLevel: logger.Warn,
	}
}

// LogMode sets the log level.
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info logs at info level.
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.logger.Sugar().Infof(msg, data...)
	}
}

// Warn logs at warn level.
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.logger.Sugar().Warnf(msg, data...)
	}
}

// Error logs at error level.
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.logger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs SQL statements; failures at error level, slow queries at warn.
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Float64("timeMs", float64(elapsed.Nanoseconds())/1e6),
	}

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && l.LogLevel >= logger.Error:
		l.logger.Error("SQL failed", append(fields, zap.Error(err))...)
	case elapsed > time.Second && l.LogLevel >= logger.Warn:
		l.logger.Warn("Slow SQL", append(fields, zap.String("threshold", "1s"))...)
	case l.LogLevel == logger.Info:
		l.logger.Debug("SQL executed", fields...)
	}
}
