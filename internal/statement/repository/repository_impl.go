package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/statement/domain"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

const lineColumns = `id, case_id, vendor_id, invoice_number, amount, currency, invoice_date, status, created_at, updated_at`

const ledgerColumns = `id, vendor_id, invoice_number, amount, total_amount, currency, invoice_date, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.Line) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO soa_lines (`+lineColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.CaseID,
		line.VendorID,
		line.InvoiceNumber,
		line.Amount,
		line.Currency,
		line.InvoiceDate,
		line.Status,
		line.CreatedAt,
		line.UpdatedAt,
	).Error
}

func (r *repo) FindLine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Line, error) {
	return r.findLine(ctx, db, id, false)
}

func (r *repo) FindLineForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Line, error) {
	return r.findLine(ctx, db, id, true)
}

func (r *repo) findLine(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Line, error) {
	query := `SELECT ` + lineColumns + ` FROM soa_lines WHERE id = ?`
	if forUpdate && pkgdb.SupportsRowLocks(db) {
		query += " FOR UPDATE"
	}

	var line domain.Line
	if err := db.WithContext(ctx).Raw(query, id).Scan(&line).Error; err != nil {
		return nil, err
	}
	if line.ID == 0 {
		return nil, nil
	}
	return &line, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, filter domain.LineFilter) ([]*domain.Line, error) {
	var lines []*domain.Line
	stmt := db.WithContext(ctx).
		Model(&domain.Line{}).
		Where("case_id = ?", filter.CaseID)
	if filter.VendorID != 0 {
		stmt = stmt.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if err := stmt.Order("id asc").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) UpdateLineStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.LineStatus, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE soa_lines SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		at,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertLedgerRecord(ctx context.Context, db *gorm.DB, record *domain.LedgerRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_records (`+ledgerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.VendorID,
		record.InvoiceNumber,
		record.Amount,
		record.TotalAmount,
		record.Currency,
		record.InvoiceDate,
		record.CreatedAt,
	).Error
}

func (r *repo) FindLedgerRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LedgerRecord, error) {
	var record domain.LedgerRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+ledgerColumns+` FROM ledger_records WHERE id = ?`,
		id,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListLedgerRecords(ctx context.Context, db *gorm.DB, vendorID snowflake.ID) ([]*domain.LedgerRecord, error) {
	var records []*domain.LedgerRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+ledgerColumns+` FROM ledger_records WHERE vendor_id = ? ORDER BY id ASC`,
		vendorID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// totalAmountExpr compares amounts numerically; sqlite stores them as text.
const totalAmountExpr = `CAST(total_amount AS DECIMAL(20,4))`

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, window domain.CandidateWindow) ([]*domain.LedgerRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_records WHERE vendor_id = ? AND UPPER(TRIM(currency)) = ?`
	args := []any{window.VendorID, strings.ToUpper(strings.TrimSpace(window.Currency))}
	if window.AmountLow != nil {
		query += ` AND ` + totalAmountExpr + ` >= ?`
		args = append(args, *window.AmountLow)
	}
	if window.AmountHigh != nil {
		query += ` AND ` + totalAmountExpr + ` <= ?`
		args = append(args, *window.AmountHigh)
	}
	query += ` ORDER BY ABS(` + totalAmountExpr + ` - ?) ASC, id ASC`
	args = append(args, window.Amount)
	if window.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, window.Limit)
	}

	var records []*domain.LedgerRecord
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
