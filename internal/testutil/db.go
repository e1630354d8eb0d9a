// Package testutil opens in-memory databases carrying the reconciliation
// schema and seeds fixtures for service tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Schema mirrors the postgres migrations with sqlite column types. Money is
// TEXT so decimals round-trip exactly.
var Schema = []string{
	`CREATE TABLE soa_cases (
		id BIGINT PRIMARY KEY,
		vendor_id BIGINT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX idx_soa_cases_vendor ON soa_cases(vendor_id, created_at, id)`,
	`CREATE TABLE soa_lines (
		id BIGINT PRIMARY KEY,
		case_id BIGINT NOT NULL,
		vendor_id BIGINT NOT NULL,
		invoice_number TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		invoice_date TIMESTAMP,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX idx_soa_lines_case ON soa_lines(case_id, status)`,
	`CREATE TABLE ledger_records (
		id BIGINT PRIMARY KEY,
		vendor_id BIGINT NOT NULL,
		invoice_number TEXT,
		amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		invoice_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX idx_ledger_records_vendor ON ledger_records(vendor_id)`,
	`CREATE TABLE soa_matches (
		id BIGINT PRIMARY KEY,
		case_id BIGINT NOT NULL,
		soa_item_id BIGINT NOT NULL,
		invoice_id BIGINT NOT NULL,
		match_type TEXT NOT NULL,
		is_exact_match BOOLEAN NOT NULL,
		confidence REAL NOT NULL,
		match_score INTEGER NOT NULL,
		match_criteria TEXT NOT NULL,
		status TEXT NOT NULL,
		confirmed_by TEXT,
		confirmed_at TIMESTAMP,
		rejected_by TEXT,
		rejected_at TIMESTAMP,
		rejection_reason TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_soa_matches_active_line ON soa_matches(soa_item_id) WHERE status <> 'rejected'`,
	`CREATE INDEX idx_soa_matches_case ON soa_matches(case_id)`,
	`CREATE TABLE soa_discrepancies (
		id BIGINT PRIMARY KEY,
		case_id BIGINT NOT NULL,
		soa_item_id BIGINT,
		invoice_id BIGINT,
		related_item_ids TEXT NOT NULL DEFAULT '[]',
		discrepancy_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount_delta TEXT NOT NULL,
		status TEXT NOT NULL,
		resolved_by TEXT,
		resolved_at TIMESTAMP,
		resolution_notes TEXT,
		resolution_action TEXT,
		origin TEXT NOT NULL DEFAULT 'detector',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX idx_soa_discrepancies_case ON soa_discrepancies(case_id, status)`,
	`CREATE UNIQUE INDEX ux_soa_discrepancies_open_key ON soa_discrepancies(case_id, COALESCE(soa_item_id, 0), discrepancy_type) WHERE status = 'open' AND origin = 'detector'`,
	`CREATE TABLE soa_acknowledgements (
		id BIGINT PRIMARY KEY,
		case_id BIGINT NOT NULL,
		vendor_id BIGINT NOT NULL,
		acknowledged_by TEXT NOT NULL,
		acknowledged_at TIMESTAMP NOT NULL,
		acknowledgement_type TEXT NOT NULL,
		notes TEXT
	)`,
	`CREATE UNIQUE INDEX ux_soa_acknowledgements_case ON soa_acknowledgements(case_id)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		case_id BIGINT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX idx_audit_logs_case ON audit_logs(case_id, created_at, id)`,
}

// OpenDB returns a private in-memory database with Schema applied. A single
// connection keeps concurrent tests from tripping over sqlite table locks.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and fails the test on error.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
