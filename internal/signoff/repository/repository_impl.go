package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/signoff/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ack *domain.Acknowledgement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO soa_acknowledgements (
			id, case_id, vendor_id, acknowledged_by, acknowledged_at, acknowledgement_type, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ack.ID,
		ack.CaseID,
		ack.VendorID,
		ack.AcknowledgedBy,
		ack.AcknowledgedAt,
		ack.AcknowledgementType,
		ack.Notes,
	).Error
}

func (r *repo) FindByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*domain.Acknowledgement, error) {
	var ack domain.Acknowledgement
	err := db.WithContext(ctx).Raw(
		`SELECT id, case_id, vendor_id, acknowledged_by, acknowledged_at, acknowledgement_type, notes
		 FROM soa_acknowledgements
		 WHERE case_id = ?`,
		caseID,
	).Scan(&ack).Error
	if err != nil {
		return nil, err
	}
	if ack.ID == 0 {
		return nil, nil
	}
	return &ack, nil
}
