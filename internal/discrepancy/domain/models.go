package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

type Type string

const (
	TypeAmountMismatch   Type = "amount_mismatch"
	TypeMissingInvoice   Type = "missing_invoice"
	TypeDuplicateClaim   Type = "duplicate_claim"
	TypeCurrencyMismatch Type = "currency_mismatch"
	TypeOther            Type = "other"
)

func ParseType(value string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case TypeAmountMismatch, TypeMissingInvoice, TypeDuplicateClaim, TypeCurrencyMismatch, TypeOther:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(value string) (Severity, error) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(value))); s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return s, nil
	default:
		return "", ErrInvalidSeverity
	}
}

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Origin records who raised a discrepancy. Detection only maintains its own.
type Origin string

const (
	OriginDetector Origin = "detector"
	OriginManual   Origin = "manual"
)

type Discrepancy struct {
	ID               snowflake.ID                      `gorm:"primaryKey" json:"id"`
	CaseID           snowflake.ID                      `gorm:"not null;index" json:"case_id"`
	SOAItemID        *snowflake.ID                     `gorm:"column:soa_item_id" json:"soa_item_id,omitempty"`
	InvoiceID        *snowflake.ID                     `json:"invoice_id,omitempty"`
	RelatedItemIDs   datatypes.JSONSlice[snowflake.ID] `gorm:"type:jsonb" json:"related_item_ids,omitempty"`
	Type             Type                              `gorm:"column:discrepancy_type;not null" json:"discrepancy_type"`
	Severity         Severity                          `gorm:"not null" json:"severity"`
	Description      string                            `json:"description"`
	AmountDelta      decimal.Decimal                   `gorm:"type:numeric(20,4);not null" json:"amount_delta"`
	Status           Status                            `gorm:"not null" json:"status"`
	ResolvedBy       *string                           `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time                        `json:"resolved_at,omitempty"`
	ResolutionNotes  *string                           `json:"resolution_notes,omitempty"`
	ResolutionAction *string                           `json:"resolution_action,omitempty"`
	Origin           Origin                            `gorm:"not null" json:"origin"`
	CreatedAt        time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Discrepancy) TableName() string { return "soa_discrepancies" }

// Key identifies an open discrepancy for idempotent detection. A duplicate
// claim belongs to its ledger record, since its anchor line moves as lines
// join or leave the group; every other type belongs to its line.
type Key struct {
	SOAItemID snowflake.ID
	InvoiceID snowflake.ID
	Type      Type
}

func (d Discrepancy) Key() Key {
	if d.Type == TypeDuplicateClaim && d.InvoiceID != nil {
		return Key{InvoiceID: *d.InvoiceID, Type: d.Type}
	}
	var item snowflake.ID
	if d.SOAItemID != nil {
		item = *d.SOAItemID
	}
	return Key{SOAItemID: item, Type: d.Type}
}

// LineIDs returns every statement line the discrepancy refers to.
func (d Discrepancy) LineIDs() []snowflake.ID {
	var ids []snowflake.ID
	if d.SOAItemID != nil {
		ids = append(ids, *d.SOAItemID)
	}
	return append(ids, d.RelatedItemIDs...)
}

func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusOpen, StatusResolved:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

var (
	ErrInvalidType         = reconerr.Validation("invalid_discrepancy_type")
	ErrInvalidSeverity     = reconerr.Validation("invalid_severity")
	ErrInvalidStatus       = reconerr.Validation("invalid_discrepancy_status")
	ErrMissingCase         = reconerr.Validation("case_id_required")
	ErrMissingDiscrepancy  = reconerr.Validation("discrepancy_id_required")
	ErrMissingResolver     = reconerr.Validation("resolved_by_required")
	ErrDiscrepancyNotFound = reconerr.NotFound("discrepancy_not_found")
	ErrLineNotInCase       = reconerr.NotFound("soa_line_not_in_case")
	ErrDiscrepancyNotOpen  = reconerr.InvalidState("discrepancy_not_open")
)
