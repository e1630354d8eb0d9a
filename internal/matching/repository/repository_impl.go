package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/matching/domain"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

const columns = `id, case_id, soa_item_id, invoice_id, match_type, is_exact_match, confidence, match_score,
	match_criteria, status, confirmed_by, confirmed_at, rejected_by, rejected_at, rejection_reason, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *domain.Match) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO soa_matches (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.CaseID,
		m.SOAItemID,
		m.InvoiceID,
		m.MatchType,
		m.IsExactMatch,
		m.Confidence,
		m.MatchScore,
		m.Criteria,
		m.Status,
		m.ConfirmedBy,
		m.ConfirmedAt,
		m.RejectedBy,
		m.RejectedAt,
		m.RejectionReason,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Match, error) {
	return r.findOne(ctx, db, `SELECT `+columns+` FROM soa_matches WHERE id = ?`, false, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Match, error) {
	return r.findOne(ctx, db, `SELECT `+columns+` FROM soa_matches WHERE id = ?`, true, id)
}

func (r *repo) FindActiveByLine(ctx context.Context, db *gorm.DB, soaItemID snowflake.ID) (*domain.Match, error) {
	return r.findOne(ctx, db,
		`SELECT `+columns+` FROM soa_matches WHERE soa_item_id = ? AND status <> ? ORDER BY id DESC LIMIT 1`,
		false,
		soaItemID,
		domain.MatchStatusRejected,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, forUpdate bool, args ...any) (*domain.Match, error) {
	if forUpdate && pkgdb.SupportsRowLocks(db) {
		query += " FOR UPDATE"
	}

	var m domain.Match
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*domain.Match, error) {
	var items []*domain.Match
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM soa_matches WHERE case_id = ? ORDER BY id ASC`,
		caseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByLine(ctx context.Context, db *gorm.DB, soaItemID snowflake.ID) ([]*domain.Match, error) {
	var items []*domain.Match
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+` FROM soa_matches WHERE soa_item_id = ? ORDER BY id ASC`,
		soaItemID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Confirm(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE soa_matches
		 SET status = ?, confirmed_by = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.MatchStatusConfirmed,
		by,
		at,
		at,
		id,
		domain.MatchStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, by, reason string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE soa_matches
		 SET status = ?, rejected_by = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.MatchStatusRejected,
		by,
		at,
		reason,
		at,
		id,
		domain.MatchStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
