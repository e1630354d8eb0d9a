package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/casestore/domain"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

type repo struct{}

func Provide() domain.Store {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Case) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO soa_cases (id, vendor_id, reference, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.VendorID,
		c.Reference,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) GetCase(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Case, error) {
	return r.get(ctx, db, id, false)
}

func (r *repo) GetCaseForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Case, error) {
	return r.get(ctx, db, id, true)
}

func (r *repo) get(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Case, error) {
	query := `SELECT id, vendor_id, reference, status, created_at, updated_at FROM soa_cases WHERE id = ?`
	if forUpdate && pkgdb.SupportsRowLocks(db) {
		query += " FOR UPDATE"
	}

	var c domain.Case
	if err := db.WithContext(ctx).Raw(query, id).Scan(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) SetCaseStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.CaseStatus, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE soa_cases SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

func (r *repo) ListByVendor(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, cursor *domain.CaseCursor, limit int) ([]*domain.Case, error) {
	var cases []*domain.Case
	stmt := db.WithContext(ctx).
		Model(&domain.Case{}).
		Where("vendor_id = ?", vendorID)
	if cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt,
			cursor.CreatedAt,
			cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit + 1)
	}
	if err := stmt.Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}
