package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	"github.com/smallbiznis/soarecon/internal/clock"
	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy/detector"
	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	"github.com/smallbiznis/soarecon/internal/lock"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/matching/matcher"
	"github.com/smallbiznis/soarecon/internal/notification"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
	"github.com/smallbiznis/soarecon/internal/summary"
	"github.com/smallbiznis/soarecon/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	GenID         *snowflake.Node
	Config        *config.MatchingConfigHolder
	Locker        lock.Locker
	Cases         casedomain.Store
	Lines         statementdomain.Repository
	Matches       matchingdomain.Repository
	Discrepancies discrepancydomain.Repository
	Matcher       *matcher.Matcher
	Detector      *detector.Detector
	AuditSvc      auditdomain.Service
	Notifier      notification.Notifier
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	genID         *snowflake.Node
	cfg           config.MatchingConfigSource
	locker        lock.Locker
	cases         casedomain.Store
	lines         statementdomain.Repository
	matches       matchingdomain.Repository
	discrepancies discrepancydomain.Repository
	matcher       *matcher.Matcher
	detector      *detector.Detector
	auditSvc      auditdomain.Service
	notifier      notification.Notifier
	metrics       *metrics.Metrics
}

func NewService(p Params) domain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reconciliation.service"),
		clock:         p.Clock,
		genID:         p.GenID,
		cfg:           p.Config,
		locker:        p.Locker,
		cases:         p.Cases,
		lines:         p.Lines,
		matches:       p.Matches,
		discrepancies: p.Discrepancies,
		matcher:       p.Matcher,
		detector:      p.Detector,
		auditSvc:      p.AuditSvc,
		notifier:      notifier,
		metrics:       p.Metrics,
	}
}

func (s *Service) ListStatements(ctx context.Context, req domain.ListStatementsRequest) (domain.ListStatementsResponse, error) {
	if req.VendorID == 0 {
		return domain.ListStatementsResponse{}, domain.ErrMissingVendor
	}

	var cursor *casedomain.CaseCursor
	decoded, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListStatementsResponse{}, domain.ErrInvalidPageToken
	}
	if decoded != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListStatementsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListStatementsResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &casedomain.CaseCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Pagination.Limit()
	cases, err := s.cases.ListByVendor(ctx, s.db, req.VendorID, cursor, limit)
	if err != nil {
		return domain.ListStatementsResponse{}, err
	}

	cases, pageInfo := pagination.BuildCursorPageInfo(cases, limit, func(c *casedomain.Case) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        c.ID.String(),
			CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	statements := make([]domain.StatementSummary, 0, len(cases))
	for _, c := range cases {
		if c == nil {
			continue
		}
		sum, err := s.summarize(ctx, s.db, c.ID)
		if err != nil {
			return domain.ListStatementsResponse{}, err
		}
		statements = append(statements, domain.StatementSummary{Case: *c, Summary: sum, Reconciled: sum.Complete()})
	}

	return domain.ListStatementsResponse{PageInfo: *pageInfo, Statements: statements}, nil
}

func (s *Service) ListLines(ctx context.Context, req domain.ListLinesRequest) ([]statementdomain.Line, error) {
	if err := requireCase(req.CaseID, req.VendorID); err != nil {
		return nil, err
	}

	var status statementdomain.LineStatus
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := statementdomain.ParseLineStatus(req.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	if _, err := s.loadCase(ctx, s.db, req.CaseID, req.VendorID); err != nil {
		return nil, err
	}

	items, err := s.lines.ListLines(ctx, s.db, statementdomain.LineFilter{
		CaseID:   req.CaseID,
		VendorID: req.VendorID,
		Status:   status,
	})
	if err != nil {
		return nil, err
	}

	lines := make([]statementdomain.Line, 0, len(items))
	for _, item := range items {
		if item != nil {
			lines = append(lines, *item)
		}
	}
	return lines, nil
}

func (s *Service) GetSummary(ctx context.Context, caseID, vendorID snowflake.ID) (*summary.CaseSummary, error) {
	if err := requireCase(caseID, vendorID); err != nil {
		return nil, err
	}
	if _, err := s.loadCase(ctx, s.db, caseID, vendorID); err != nil {
		return nil, err
	}

	sum, err := s.summarize(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *Service) ListMatches(ctx context.Context, caseID, vendorID snowflake.ID) ([]matchingdomain.Match, error) {
	if err := requireCase(caseID, vendorID); err != nil {
		return nil, err
	}
	if _, err := s.loadCase(ctx, s.db, caseID, vendorID); err != nil {
		return nil, err
	}

	items, err := s.matches.ListByCase(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]matchingdomain.Match, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) ListLineMatches(ctx context.Context, soaItemID snowflake.ID) ([]matchingdomain.Match, error) {
	if soaItemID == 0 {
		return nil, matchingdomain.ErrMissingLine
	}
	line, err := s.lines.FindLine(ctx, s.db, soaItemID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, matchingdomain.ErrLineNotFound
	}

	items, err := s.matches.ListByLine(ctx, s.db, soaItemID)
	if err != nil {
		return nil, err
	}
	out := make([]matchingdomain.Match, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) ListDiscrepancies(ctx context.Context, req domain.ListDiscrepanciesRequest) ([]discrepancydomain.Discrepancy, error) {
	if err := requireCase(req.CaseID, req.VendorID); err != nil {
		return nil, err
	}

	var status discrepancydomain.Status
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := discrepancydomain.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	if _, err := s.loadCase(ctx, s.db, req.CaseID, req.VendorID); err != nil {
		return nil, err
	}

	items, err := s.discrepancies.ListByCase(ctx, s.db, req.CaseID, status)
	if err != nil {
		return nil, err
	}
	out := make([]discrepancydomain.Discrepancy, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// loadCase fetches a case and, when vendorID is set, checks it belongs to
// that vendor. A foreign case reads as not found.
func (s *Service) loadCase(ctx context.Context, db *gorm.DB, caseID, vendorID snowflake.ID) (*casedomain.Case, error) {
	c, err := s.cases.GetCase(ctx, db, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, casedomain.ErrCaseNotFound
	}
	if vendorID != 0 && c.VendorID != vendorID {
		return nil, casedomain.ErrVendorMismatch
	}
	return c, nil
}

func (s *Service) summarize(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (summary.CaseSummary, error) {
	lines, err := s.lines.ListLines(ctx, db, statementdomain.LineFilter{CaseID: caseID})
	if err != nil {
		return summary.CaseSummary{}, err
	}
	matches, err := s.matches.ListByCase(ctx, db, caseID)
	if err != nil {
		return summary.CaseSummary{}, err
	}
	open, err := s.discrepancies.ListByCase(ctx, db, caseID, discrepancydomain.StatusOpen)
	if err != nil {
		return summary.CaseSummary{}, err
	}
	return summary.Summarize(lines, matches).WithDiscrepancies(open), nil
}

// audit appends best-effort; a failure is logged and never returned.
func (s *Service) audit(ctx context.Context, event auditdomain.Event) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Append(ctx, event); err != nil {
		s.log.Warn("audit append failed",
			zap.String("action", event.Action),
			zap.String("case_id", event.CaseID.String()),
			zap.Error(err),
		)
	}
}

func requireCase(caseID, vendorID snowflake.ID) error {
	if caseID == 0 {
		return domain.ErrMissingCase
	}
	if vendorID == 0 {
		return domain.ErrMissingVendor
	}
	return nil
}
