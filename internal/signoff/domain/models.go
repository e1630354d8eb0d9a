package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

type AckType string

const (
	AckTypeFull           AckType = "full"
	AckTypePartial        AckType = "partial"
	AckTypeWithExceptions AckType = "with_exceptions"
)

func ParseAckType(value string) (AckType, error) {
	switch t := AckType(strings.ToLower(strings.TrimSpace(value))); t {
	case AckTypeFull, AckTypePartial, AckTypeWithExceptions:
		return t, nil
	default:
		return "", ErrInvalidAckType
	}
}

// Acknowledgement is the sign-off record. A case has at most one.
type Acknowledgement struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID              snowflake.ID `gorm:"not null;uniqueIndex" json:"case_id"`
	VendorID            snowflake.ID `gorm:"not null" json:"vendor_id"`
	AcknowledgedBy      string       `gorm:"not null" json:"acknowledged_by"`
	AcknowledgedAt      time.Time    `gorm:"not null" json:"acknowledged_at"`
	AcknowledgementType AckType      `gorm:"not null" json:"acknowledgement_type"`
	Notes               *string      `json:"notes,omitempty"`
}

func (Acknowledgement) TableName() string { return "soa_acknowledgements" }

type SignOffRequest struct {
	CaseID              snowflake.ID `json:"-"`
	VendorID            snowflake.ID `json:"-"`
	UserID              string       `json:"-"`
	AcknowledgementType string       `json:"acknowledgement_type"`
	Notes               string       `json:"notes"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ack *Acknowledgement) error
	FindByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*Acknowledgement, error)
}

type Service interface {
	SignOff(ctx context.Context, req SignOffRequest) (*Acknowledgement, error)
	GetAcknowledgement(ctx context.Context, caseID, vendorID snowflake.ID) (*Acknowledgement, error)
}

var (
	ErrMissingCase             = reconerr.Validation("case_id_required")
	ErrMissingVendor           = reconerr.Validation("vendor_id_required")
	ErrMissingUser             = reconerr.Validation("user_id_required")
	ErrInvalidAckType          = reconerr.Validation("invalid_acknowledgement_type")
	ErrAcknowledgementNotFound = reconerr.NotFound("acknowledgement_not_found")
	ErrAlreadySignedOff        = reconerr.Conflict("case_already_signed_off")
	ErrOpenItems               = reconerr.Precondition("open_items_block_full_signoff")
)
