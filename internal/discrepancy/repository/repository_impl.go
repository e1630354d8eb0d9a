package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

const columns = `id, case_id, soa_item_id, invoice_id, related_item_ids, discrepancy_type, severity, description,
	amount_delta, status, resolved_by, resolved_at, resolution_notes, resolution_action, origin, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.Discrepancy) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO soa_discrepancies (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.CaseID,
		d.SOAItemID,
		d.InvoiceID,
		relatedOrEmpty(d),
		d.Type,
		d.Severity,
		d.Description,
		d.AmountDelta,
		d.Status,
		d.ResolvedBy,
		d.ResolvedAt,
		d.ResolutionNotes,
		d.ResolutionAction,
		originOrDetector(d),
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Discrepancy, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Discrepancy, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Discrepancy, error) {
	query := `SELECT ` + columns + ` FROM soa_discrepancies WHERE id = ?`
	if forUpdate && pkgdb.SupportsRowLocks(db) {
		query += " FOR UPDATE"
	}

	var d domain.Discrepancy
	if err := db.WithContext(ctx).Raw(query, id).Scan(&d).Error; err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID, status domain.Status) ([]*domain.Discrepancy, error) {
	var items []*domain.Discrepancy
	stmt := db.WithContext(ctx).Model(&domain.Discrepancy{}).Where("case_id = ?", caseID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if err := stmt.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateDetected refreshes the detector-owned fields of an open discrepancy
// the detector raised.
func (r *repo) UpdateDetected(ctx context.Context, db *gorm.DB, d *domain.Discrepancy) error {
	return db.WithContext(ctx).Exec(
		`UPDATE soa_discrepancies
		 SET soa_item_id = ?, severity = ?, description = ?, amount_delta = ?, invoice_id = ?, related_item_ids = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND origin = ?`,
		d.SOAItemID,
		d.Severity,
		d.Description,
		d.AmountDelta,
		d.InvoiceID,
		relatedOrEmpty(d),
		d.UpdatedAt,
		d.ID,
		domain.StatusOpen,
		domain.OriginDetector,
	).Error
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.ResolveUpdate) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE soa_discrepancies
		 SET status = ?, resolved_by = ?, resolved_at = ?, resolution_notes = ?, resolution_action = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusResolved,
		update.ResolvedBy,
		update.ResolvedAt,
		update.ResolutionNotes,
		update.ResolutionAction,
		update.ResolvedAt,
		id,
		domain.StatusOpen,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func relatedOrEmpty(d *domain.Discrepancy) any {
	if d.RelatedItemIDs == nil {
		return "[]"
	}
	return d.RelatedItemIDs
}

func originOrDetector(d *domain.Discrepancy) domain.Origin {
	if d.Origin == "" {
		return domain.OriginDetector
	}
	return d.Origin
}
