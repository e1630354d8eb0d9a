package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"

	obscontext "github.com/smallbiznis/soarecon/internal/observability/context"
)

func observedGorm(cfg GormConfig) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(cfg)
	l.base = func() *zap.Logger { return zap.New(core) }
	return l, logs
}

func statement(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestGormSlowQueryCarriesCaseAndThreshold(t *testing.T) {
	l, logs := observedGorm(GormConfig{Level: "warn", SlowThreshold: 50 * time.Millisecond})

	ctx := obscontext.WithCaseID(context.Background(), "1001")
	ctx = obscontext.WithVendorID(ctx, "77")
	l.Trace(ctx, time.Now().Add(-time.Second), statement(`SELECT id FROM soa_lines WHERE case_id = ?`), nil)
	l.Trace(ctx, time.Now(), statement(`SELECT 1`), nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "db query slow", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "1001", fields["case_id"])
	assert.Equal(t, "77", fields["vendor_id"])
	assert.Equal(t, "soa_lines", fields["table"])
	assert.Equal(t, "SELECT", fields["operation"])
	assert.Equal(t, true, fields["slow"])
	assert.Equal(t, 50*time.Millisecond, fields["slow_threshold"])
}

func TestGormFailuresLogAtErrorButNotFoundDoesNot(t *testing.T) {
	l, logs := observedGorm(GormConfig{Level: "error"})

	l.Trace(context.Background(), time.Now(), statement(`UPDATE soa_matches SET status = ?`), errors.New("deadlock"))
	l.Trace(context.Background(), time.Now(), statement(`SELECT id FROM soa_cases`), gormlogger.ErrRecordNotFound)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "soa_matches", entry.ContextMap()["table"])
	assert.Equal(t, "deadlock", entry.ContextMap()["error"])
}

func TestGormLevels(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseGormLevel("silent"))
	assert.Equal(t, gormlogger.Info, parseGormLevel(" INFO "))
	assert.Equal(t, gormlogger.Warn, parseGormLevel("chatty"))

	l, logs := observedGorm(GormConfig{Level: "silent", SlowThreshold: time.Hour})
	l.Trace(context.Background(), time.Now().Add(-time.Second), statement(`SELECT 1`), errors.New("boom"))
	assert.Zero(t, logs.Len())

	verbose := l.LogMode(gormlogger.Info)
	verbose.Trace(context.Background(), time.Now(), statement(`INSERT INTO ledger_records VALUES (?)`), nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, "ledger_records", logs.All()[0].ContextMap()["table"])

	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", 42)
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)
}
