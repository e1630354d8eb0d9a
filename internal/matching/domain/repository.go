package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *Match) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Match, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Match, error)
	// FindActiveByLine returns the pending or confirmed match of a line.
	FindActiveByLine(ctx context.Context, db *gorm.DB, soaItemID snowflake.ID) (*Match, error)
	ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*Match, error)
	ListByLine(ctx context.Context, db *gorm.DB, soaItemID snowflake.ID) ([]*Match, error)
	// Confirm and Reject only move pending matches and report whether a row changed.
	Confirm(ctx context.Context, db *gorm.DB, id snowflake.ID, by string, at time.Time) (bool, error)
	Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, by, reason string, at time.Time) (bool, error)
}
