package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
	"github.com/smallbiznis/soarecon/internal/summary"
)

// Service is the only writer of matches, discrepancies and line status.
type Service interface {
	ListStatements(ctx context.Context, req ListStatementsRequest) (ListStatementsResponse, error)
	ListLines(ctx context.Context, req ListLinesRequest) ([]statementdomain.Line, error)
	GetSummary(ctx context.Context, caseID, vendorID snowflake.ID) (*summary.CaseSummary, error)
	ListMatches(ctx context.Context, caseID, vendorID snowflake.ID) ([]matchingdomain.Match, error)
	// ListLineMatches returns every match ever recorded for a line, rejected
	// ones included, oldest first.
	ListLineMatches(ctx context.Context, soaItemID snowflake.ID) ([]matchingdomain.Match, error)
	ListDiscrepancies(ctx context.Context, req ListDiscrepanciesRequest) ([]discrepancydomain.Discrepancy, error)

	CreateMatch(ctx context.Context, req CreateMatchRequest) (*matchingdomain.Match, error)
	ProposeAndCreateMatch(ctx context.Context, req CreateMatchRequest) (*matchingdomain.Match, error)
	// ProposeMatch returns nil without error when the matcher proposes nothing.
	ProposeMatch(ctx context.Context, soaItemID snowflake.ID, actorID string) (*matchingdomain.Match, error)
	RunMatching(ctx context.Context, req RunMatchingRequest) (*MatchingRun, error)
	ConfirmMatch(ctx context.Context, matchID snowflake.ID, userID string) (*matchingdomain.Match, error)
	RejectMatch(ctx context.Context, matchID snowflake.ID, userID, reason string) (*matchingdomain.Match, error)

	CreateDiscrepancy(ctx context.Context, req CreateDiscrepancyRequest) (*discrepancydomain.Discrepancy, error)
	ResolveDiscrepancy(ctx context.Context, req ResolveDiscrepancyRequest) (*discrepancydomain.Discrepancy, error)
	// DetectDiscrepancies re-evaluates a case and returns the discrepancies it opened.
	DetectDiscrepancies(ctx context.Context, caseID snowflake.ID, actorID string) ([]discrepancydomain.Discrepancy, error)
}
