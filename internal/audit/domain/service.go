package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/soarecon/internal/reconerr"
	"github.com/smallbiznis/soarecon/pkg/db/pagination"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	CaseID     snowflake.ID
	Action     string
	TargetType string
	TargetID   string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service is the append-only audit sink. Append failures are reported to the
// caller, who logs them without failing the primary operation.
type Service interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidCase      = reconerr.Validation("invalid_case_id")
	ErrInvalidPageToken = reconerr.Validation("invalid_page_token")
	ErrInvalidAction    = reconerr.Validation("invalid_action")
)
