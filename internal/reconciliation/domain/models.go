package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/reconerr"
	"github.com/smallbiznis/soarecon/internal/summary"
	"github.com/smallbiznis/soarecon/pkg/db/pagination"
)

type StatementSummary struct {
	Case       casedomain.Case     `json:"case"`
	Summary    summary.CaseSummary `json:"summary"`
	Reconciled bool                `json:"reconciled"`
}

type ListStatementsRequest struct {
	pagination.Pagination
	VendorID snowflake.ID
}

type ListStatementsResponse struct {
	pagination.PageInfo
	Statements []StatementSummary `json:"statements"`
}

type ListLinesRequest struct {
	CaseID   snowflake.ID
	VendorID snowflake.ID
	Status   string
}

type ListDiscrepanciesRequest struct {
	CaseID   snowflake.ID
	VendorID snowflake.ID
	Status   string
}

// CreateMatchRequest carries match metadata from the host. ProposeAndCreateMatch
// scores the pair itself when MatchType is empty.
type CreateMatchRequest struct {
	SOAItemID    snowflake.ID                  `json:"soa_item_id"`
	InvoiceID    snowflake.ID                  `json:"invoice_id"`
	MatchType    string                        `json:"match_type"`
	IsExactMatch bool                          `json:"is_exact_match"`
	Confidence   float64                       `json:"confidence"`
	MatchScore   int                           `json:"match_score"`
	Criteria     *matchingdomain.MatchCriteria `json:"match_criteria,omitempty"`
	ActorID      string                        `json:"-"`
}

type CreateDiscrepancyRequest struct {
	CaseID      snowflake.ID    `json:"-"`
	SOAItemID   *snowflake.ID   `json:"soa_item_id,omitempty"`
	InvoiceID   *snowflake.ID   `json:"invoice_id,omitempty"`
	Type        string          `json:"discrepancy_type"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	AmountDelta decimal.Decimal `json:"amount_delta"`
	ActorID     string          `json:"-"`
}

type ResolveDiscrepancyRequest struct {
	DiscrepancyID    snowflake.ID `json:"-"`
	UserID           string       `json:"-"`
	ResolutionNotes  string       `json:"resolution_notes"`
	ResolutionAction string       `json:"resolution_action"`
}

type RunMatchingRequest struct {
	CaseID   snowflake.ID
	VendorID snowflake.ID
	ActorID  string
}

// MatchingRun reports one batch over the extracted lines of a case.
type MatchingRun struct {
	ID              string                          `json:"id"`
	CaseID          snowflake.ID                    `json:"case_id"`
	LinesConsidered int                             `json:"lines_considered"`
	Proposed        int                             `json:"proposed"`
	Created         int                             `json:"created"`
	Skipped         int                             `json:"skipped"`
	NoCandidate     int                             `json:"no_candidate"`
	Ambiguous       int                             `json:"ambiguous"`
	BelowThreshold  int                             `json:"below_threshold"`
	Matches         []matchingdomain.Match          `json:"matches"`
	Discrepancies   []discrepancydomain.Discrepancy `json:"discrepancies"`
	StartedAt       time.Time                       `json:"started_at"`
	CompletedAt     time.Time                       `json:"completed_at"`
}

var (
	ErrMissingCase      = reconerr.Validation("case_id_required")
	ErrMissingVendor    = reconerr.Validation("vendor_id_required")
	ErrInvalidPageToken = reconerr.Validation("invalid_page_token")
)
