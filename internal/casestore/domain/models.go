package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

type CaseStatus string

const (
	CaseStatusOpen   CaseStatus = "open"
	CaseStatusClosed CaseStatus = "closed"
)

// Case is one reconciliation case: a vendor statement being worked to sign-off.
type Case struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	VendorID  snowflake.ID `gorm:"not null;index" json:"vendor_id"`
	Reference string       `json:"reference"`
	Status    CaseStatus   `gorm:"not null" json:"status"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Case) TableName() string { return "soa_cases" }

func (c Case) IsClosed() bool { return c.Status == CaseStatusClosed }

type CaseCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// Store is the case collaborator. SetCaseStatus is only called by sign-off.
type Store interface {
	Insert(ctx context.Context, db *gorm.DB, c *Case) error
	GetCase(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Case, error)
	GetCaseForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Case, error)
	SetCaseStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status CaseStatus, at time.Time) error
	ListByVendor(ctx context.Context, db *gorm.DB, vendorID snowflake.ID, cursor *CaseCursor, limit int) ([]*Case, error)
}

var (
	ErrCaseNotFound   = reconerr.NotFound("case_not_found")
	ErrVendorMismatch = reconerr.NotFound("case_not_found_for_vendor")
	ErrCaseClosed     = reconerr.InvalidState("case_closed")
)
