package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

type LineStatus string

const (
	LineStatusExtracted LineStatus = "extracted"
	LineStatusMatched   LineStatus = "matched"
	LineStatusDisputed  LineStatus = "disputed"
)

var ErrInvalidLineStatus = reconerr.Validation("invalid_line_status")

func ParseLineStatus(value string) (LineStatus, error) {
	switch LineStatus(strings.ToLower(strings.TrimSpace(value))) {
	case LineStatusExtracted:
		return LineStatusExtracted, nil
	case LineStatusMatched:
		return LineStatusMatched, nil
	case LineStatusDisputed:
		return LineStatusDisputed, nil
	default:
		return "", ErrInvalidLineStatus
	}
}

// Line is one open item claimed on a vendor statement.
type Line struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	CaseID        snowflake.ID    `gorm:"not null;index" json:"case_id"`
	VendorID      snowflake.ID    `gorm:"not null;index" json:"vendor_id"`
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency      string          `gorm:"not null" json:"currency"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	Status        LineStatus      `gorm:"not null" json:"status"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Line) TableName() string { return "soa_lines" }

// LedgerRecord is an internal invoice or payment entry. The engine never
// writes to it.
type LedgerRecord struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	VendorID      snowflake.ID    `gorm:"not null;index" json:"vendor_id"`
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total_amount"`
	Currency      string          `gorm:"not null" json:"currency"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (LedgerRecord) TableName() string { return "ledger_records" }

type LineFilter struct {
	CaseID   snowflake.ID
	VendorID snowflake.ID
	Status   LineStatus
}

// CandidateWindow bounds the ledger records loaded for one line: same vendor
// and currency, optionally an amount range, nearest amounts first.
type CandidateWindow struct {
	VendorID   snowflake.ID
	Currency   string
	Amount     decimal.Decimal
	AmountLow  *decimal.Decimal
	AmountHigh *decimal.Decimal
	Limit      int
}

// NormalizeInvoiceNumber is the comparison form of an invoice number.
func NormalizeInvoiceNumber(value *string) string {
	if value == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*value))
}
