package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionMatchCreated         = "soa.match.created"
	ActionMatchConfirmed       = "soa.match.confirmed"
	ActionMatchRejected        = "soa.match.rejected"
	ActionDiscrepancyCreated   = "soa.discrepancy.created"
	ActionDiscrepancyResolved  = "soa.discrepancy.resolved"
	ActionDiscrepancyDetected  = "soa.discrepancy.detected"
	ActionMatchingRunCompleted = "soa.matching_run.completed"
	ActionCaseSignedOff        = "soa.case.signed_off"
)

const (
	TargetMatch           = "soa_match"
	TargetDiscrepancy     = "soa_discrepancy"
	TargetAcknowledgement = "soa_acknowledgement"
	TargetCase            = "soa_case"
)

// ActorSystem is recorded when no user is attached to the operation.
const ActorSystem = "system"

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	CaseID     snowflake.ID      `gorm:"not null;index" json:"case_id"`
	ActorID    string            `gorm:"not null" json:"actor_id"`
	Action     string            `gorm:"not null" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Event is one decision record appended by the engine.
type Event struct {
	CaseID     snowflake.ID
	ActorID    string
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	CaseID     snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Cursor     *AuditCursor
	Limit      int
}
