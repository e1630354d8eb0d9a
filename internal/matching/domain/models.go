package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	"github.com/smallbiznis/soarecon/internal/reconerr"
)

type MatchType string

const (
	MatchTypeDeterministic MatchType = "deterministic"
	MatchTypeFuzzy         MatchType = "fuzzy"
)

func ParseMatchType(value string) (MatchType, error) {
	switch MatchType(strings.ToLower(strings.TrimSpace(value))) {
	case MatchTypeDeterministic:
		return MatchTypeDeterministic, nil
	case MatchTypeFuzzy:
		return MatchTypeFuzzy, nil
	default:
		return "", ErrInvalidMatchType
	}
}

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusConfirmed MatchStatus = "confirmed"
	MatchStatusRejected  MatchStatus = "rejected"
)

// IsActive reports whether the match still occupies its statement line.
func (s MatchStatus) IsActive() bool {
	return s == MatchStatusPending || s == MatchStatusConfirmed
}

// MatchCriteria records which signals agreed and how each scored. Extra is
// for annotations only; scoring never reads it.
type MatchCriteria struct {
	InvoiceNumber     bool           `json:"invoice_number"`
	Amount            bool           `json:"amount"`
	Currency          bool           `json:"currency"`
	DateProximity     bool           `json:"date_proximity"`
	AmountScore       float64        `json:"amount_score"`
	DateScore         float64        `json:"date_score"`
	InvoiceSimilarity float64        `json:"invoice_similarity"`
	Extra             map[string]any `json:"extra,omitempty"`
}

type Match struct {
	ID              snowflake.ID                      `gorm:"primaryKey" json:"id"`
	CaseID          snowflake.ID                      `gorm:"not null;index" json:"case_id"`
	SOAItemID       snowflake.ID                      `gorm:"column:soa_item_id;not null" json:"soa_item_id"`
	InvoiceID       snowflake.ID                      `gorm:"not null" json:"invoice_id"`
	MatchType       MatchType                         `gorm:"not null" json:"match_type"`
	IsExactMatch    bool                              `gorm:"not null" json:"is_exact_match"`
	Confidence      float64                           `gorm:"not null" json:"confidence"`
	MatchScore      int                               `gorm:"not null" json:"match_score"`
	Criteria        datatypes.JSONType[MatchCriteria] `gorm:"column:match_criteria;type:jsonb" json:"match_criteria"`
	Status          MatchStatus                       `gorm:"not null" json:"status"`
	ConfirmedBy     *string                           `json:"confirmed_by,omitempty"`
	ConfirmedAt     *time.Time                        `json:"confirmed_at,omitempty"`
	RejectedBy      *string                           `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time                        `json:"rejected_at,omitempty"`
	RejectionReason *string                           `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time                         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Match) TableName() string { return "soa_matches" }

var (
	ErrInvalidMatchType  = reconerr.Validation("invalid_match_type")
	ErrInvalidLine       = reconerr.Validation("invalid_soa_line")
	ErrLineNotExtracted  = reconerr.InvalidState("line_not_extracted")
	ErrEmptyCandidateSet = reconerr.NoCandidate("empty_candidate_set")
)

var (
	ErrMissingLine          = reconerr.Validation("soa_item_id_required")
	ErrMissingIDs           = reconerr.Validation("soa_item_id_and_invoice_id_required")
	ErrMissingMatch         = reconerr.Validation("match_id_required")
	ErrMissingUser          = reconerr.Validation("user_id_required")
	ErrReasonRequired       = reconerr.Validation("rejection_reason_required")
	ErrInvalidConfidence    = reconerr.Validation("confidence_out_of_range")
	ErrInvalidMatchScore    = reconerr.Validation("match_score_out_of_range")
	ErrDeterministicInexact = reconerr.Validation("deterministic_match_must_be_exact")
	ErrInvoiceVendor        = reconerr.Validation("invoice_vendor_mismatch")
	ErrMatchNotFound        = reconerr.NotFound("match_not_found")
	ErrLineNotFound         = reconerr.NotFound("soa_line_not_found")
	ErrInvoiceNotFound      = reconerr.NotFound("invoice_not_found")
	ErrActiveMatchExists    = reconerr.Conflict("active_match_exists")
	ErrMatchNotPending      = reconerr.InvalidState("match_not_pending")
)

// Validate checks the fields a caller may supply for a new match.
func (m *Match) Validate() error {
	if m.SOAItemID == 0 || m.InvoiceID == 0 {
		return ErrMissingIDs
	}
	if _, err := ParseMatchType(string(m.MatchType)); err != nil {
		return err
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if m.MatchScore < 0 || m.MatchScore > 100 {
		return ErrInvalidMatchScore
	}
	if m.MatchType == MatchTypeDeterministic && (!m.IsExactMatch || m.Confidence != 1 || m.MatchScore != 100) {
		return ErrDeterministicInexact
	}
	return nil
}
