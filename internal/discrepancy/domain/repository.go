package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ResolveUpdate struct {
	ResolvedBy       string
	ResolvedAt       time.Time
	ResolutionNotes  *string
	ResolutionAction *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Discrepancy) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Discrepancy, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Discrepancy, error)
	ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID, status Status) ([]*Discrepancy, error)
	UpdateDetected(ctx context.Context, db *gorm.DB, d *Discrepancy) error
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, update ResolveUpdate) (bool, error)
}
