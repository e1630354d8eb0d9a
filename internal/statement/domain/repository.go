package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the typed access layer over statement lines and ledger
// records. Every method takes the handle to run on so callers can pass a tx.
type Repository interface {
	InsertLine(ctx context.Context, db *gorm.DB, line *Line) error
	FindLine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Line, error)
	FindLineForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Line, error)
	ListLines(ctx context.Context, db *gorm.DB, filter LineFilter) ([]*Line, error)
	UpdateLineStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to LineStatus, at time.Time) (bool, error)

	InsertLedgerRecord(ctx context.Context, db *gorm.DB, record *LedgerRecord) error
	FindLedgerRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerRecord, error)
	ListLedgerRecords(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) ([]*LedgerRecord, error)
	// ListCandidates returns at most window.Limit records ordered by distance
	// from window.Amount, then id.
	ListCandidates(ctx context.Context, db *gorm.DB, window CandidateWindow) ([]*LedgerRecord, error)
}
