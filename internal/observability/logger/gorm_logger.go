package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig configures query logging. Level is silent, error, warn or info;
// anything else means warn.
type GormConfig struct {
	Level         string
	SlowThreshold time.Duration
}

// GormLogger routes gorm's query log through zap. Every entry carries the
// request, actor and case of the calling context. Bound values are never
// logged because statements carry amounts and invoice numbers.
type GormLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
	base  func() *zap.Logger
}

func NewGormLogger(cfg GormConfig) *GormLogger {
	return &GormLogger{
		level: parseGormLevel(cfg.Level),
		slow:  cfg.SlowThreshold,
		base:  zap.L,
	}
}

func parseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed statements at error, statements slower than the
// threshold at warn and, at info level, everything else at debug. Record not
// found is not a failure: repositories report absence as a nil row.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case failed && l.level >= gormlogger.Error:
		l.logger(ctx).Error("db query failed", l.queryFields(fc, elapsed, slow, zap.Error(err))...)
	case slow && l.level >= gormlogger.Warn:
		l.logger(ctx).Warn("db query slow", l.queryFields(fc, elapsed, slow, zap.Duration("slow_threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		l.logger(ctx).Debug("db query", l.queryFields(fc, elapsed, slow)...)
	}
}

// ParamsFilter keeps bound values out of rendered SQL.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	return WithContext(ctx, l.base()).With(zap.String("component", "gorm"))
}

func (l *GormLogger) queryFields(fc func() (string, int64), elapsed time.Duration, slow bool, extra ...zap.Field) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Bool("slow", slow),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	return append(fields, extra...)
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL names the first reconciliation table a statement touches.
func tableFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToLower(sql)) {
		token = strings.Trim(token, `"();,`)
		switch {
		case strings.HasPrefix(token, "soa_"), token == "ledger_records", token == "audit_logs":
			return token
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
