package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output through zap with the query context's
// correlation fields, so statements issued by a sync job carry its job_id.
type GormLogger struct {
	base *zap.Logger
	min  gormlogger.LogLevel
	slow time.Duration
}

var _ gormlogger.Interface = (*GormLogger)(nil)

func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{base: base.Named("gorm"), min: level, slow: slowThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.min = level
	return &next
}

func (l *GormLogger) printf(ctx context.Context, at gormlogger.LogLevel, zl zapcore.Level, msg string, args []any) {
	if l.min < at {
		return
	}
	s := Enrich(ctx, l.base).Sugar()
	s.Logf(zl, msg, args...)
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, args)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, args)
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, args)
}

// Trace logs failed statements, statements slower than the threshold and,
// at Info, everything else at debug level. Missing rows are not failures.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.min <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && took > l.slow

	var (
		msg   string
		level zapcore.Level
	)
	switch {
	case failed && l.min >= gormlogger.Error:
		msg, level = "SQL Error", zapcore.ErrorLevel
	case err != nil:
		return
	case slow && l.min >= gormlogger.Warn:
		msg, level = "Slow SQL", zapcore.WarnLevel
	case l.min >= gormlogger.Info:
		msg, level = "SQL Query", zapcore.DebugLevel
	default:
		return
	}

	stmt, rows := fc()
	fields := append(Fields(ctx),
		zap.Duration("elapsed", took),
		zap.Int64("rows", rows),
		zap.String("sql", stmt),
	)
	if failed {
		fields = append(fields, zap.Error(err))
	}
	if slow {
		fields = append(fields, zap.Duration("threshold", l.slow))
	}
	l.base.Log(level, msg, fields...)
}

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"info":   gormlogger.Info,
	"debug":  gormlogger.Info,
}

// MapGormLogLevel converts the service log level; unknown values mean warn
func MapGormLogLevel(level string) gormlogger.LogLevel {
	if l, ok := gormLevels[level]; ok {
		return l
	}
	return gormlogger.Warn
}
