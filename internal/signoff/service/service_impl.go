package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	"github.com/smallbiznis/soarecon/internal/clock"
	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	"github.com/smallbiznis/soarecon/internal/lock"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/notification"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
	"github.com/smallbiznis/soarecon/internal/signoff/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
	"github.com/smallbiznis/soarecon/internal/summary"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	GenID         *snowflake.Node
	Locker        lock.Locker
	Repo          domain.Repository
	Cases         casedomain.Store
	Lines         statementdomain.Repository
	Matches       matchingdomain.Repository
	Discrepancies discrepancydomain.Repository
	AuditSvc      auditdomain.Service
	Notifier      notification.Notifier
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	genID         *snowflake.Node
	locker        lock.Locker
	repo          domain.Repository
	cases         casedomain.Store
	lines         statementdomain.Repository
	matches       matchingdomain.Repository
	discrepancies discrepancydomain.Repository
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
		log:           p.Log.Named("signoff.service"),
		clock:         p.Clock,
		genID:         p.GenID,
		locker:        p.Locker,
		repo:          p.Repo,
		cases:         p.Cases,
		lines:         p.Lines,
		matches:       p.Matches,
		discrepancies: p.Discrepancies,
		auditSvc:      p.AuditSvc,
		notifier:      notifier,
		metrics:       p.Metrics,
	}
}

// SignOff records the acknowledgement and closes the case. Full sign-off
// requires no open discrepancy and no pending match; the other types accept
// open items and list them in the notes.
func (s *Service) SignOff(ctx context.Context, req domain.SignOffRequest) (*domain.Acknowledgement, error) {
	if req.CaseID == 0 {
		return nil, domain.ErrMissingCase
	}
	if req.VendorID == 0 {
		return nil, domain.ErrMissingVendor
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	ackType, err := domain.ParseAckType(req.AcknowledgementType)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.CaseKey(req.CaseID.Int64()))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	var (
		ack *domain.Acknowledgement
		sum summary.CaseSummary
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.cases.GetCaseForUpdate(ctx, tx, req.CaseID)
		if err != nil {
			return err
		}
		if c == nil {
			return casedomain.ErrCaseNotFound
		}
		if c.VendorID != req.VendorID {
			return casedomain.ErrVendorMismatch
		}

		existing, err := s.repo.FindByCase(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if existing != nil || c.IsClosed() {
			return domain.ErrAlreadySignedOff
		}

		sum, err = s.summarize(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if ackType == domain.AckTypeFull && hasOpenItems(sum) {
			return domain.ErrOpenItems
		}

		ack = &domain.Acknowledgement{
			ID:                  s.genID.Generate(),
			CaseID:              c.ID,
			VendorID:            c.VendorID,
			AcknowledgedBy:      userID,
			AcknowledgedAt:      now,
			AcknowledgementType: ackType,
			Notes:               notesWithOpenItems(req.Notes, ackType, sum),
		}
		if err := s.repo.Insert(ctx, tx, ack); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadySignedOff
			}
			return err
		}
		return s.cases.SetCaseStatus(ctx, tx, c.ID, casedomain.CaseStatusClosed, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSignOff(ctx, string(ack.AcknowledgementType))
	if err := s.auditSvc.Append(ctx, auditdomain.Event{
		CaseID:     ack.CaseID,
		ActorID:    userID,
		Action:     auditdomain.ActionCaseSignedOff,
		TargetType: auditdomain.TargetAcknowledgement,
		TargetID:   ack.ID,
		Metadata: map[string]any{
			"acknowledgement_type": string(ack.AcknowledgementType),
			"discrepancy_lines":    sum.DiscrepancyLines,
			"pending_lines":        sum.PendingLines,
		},
	}); err != nil {
		s.log.Warn("audit append failed",
			zap.String("action", auditdomain.ActionCaseSignedOff),
			zap.String("case_id", ack.CaseID.String()),
			zap.Error(err),
		)
	}
	s.notifier.Notify(ctx, ack.CaseID, notification.EventCaseSignedOff, map[string]any{
		"acknowledgement_id":   ack.ID.String(),
		"acknowledgement_type": string(ack.AcknowledgementType),
		"acknowledged_by":      ack.AcknowledgedBy,
		"vendor_id":            ack.VendorID.String(),
	})

	s.log.Info("case signed off",
		zap.String("case_id", ack.CaseID.String()),
		zap.String("acknowledgement_type", string(ack.AcknowledgementType)),
		zap.Int("open_discrepancies", sum.OpenDiscrepancies),
		zap.Int("pending_lines", sum.PendingLines),
	)
	return ack, nil
}

func (s *Service) GetAcknowledgement(ctx context.Context, caseID, vendorID snowflake.ID) (*domain.Acknowledgement, error) {
	if caseID == 0 {
		return nil, domain.ErrMissingCase
	}
	if vendorID == 0 {
		return nil, domain.ErrMissingVendor
	}

	c, err := s.cases.GetCase(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, casedomain.ErrCaseNotFound
	}
	if c.VendorID != vendorID {
		return nil, casedomain.ErrVendorMismatch
	}

	ack, err := s.repo.FindByCase(ctx, s.db, caseID)
	if err != nil {
		return nil, err
	}
	if ack == nil {
		return nil, domain.ErrAcknowledgementNotFound
	}
	return ack, nil
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

// notesWithOpenItems appends the open-item line to non-full sign-offs that
// still have something outstanding.
func notesWithOpenItems(notes string, ackType domain.AckType, sum summary.CaseSummary) *string {
	text := strings.TrimSpace(notes)
	if ackType != domain.AckTypeFull && hasOpenItems(sum) {
		line := fmt.Sprintf("Open items at sign-off: %d pending matches, %d open discrepancies over %d lines (%s).",
			sum.PendingLines,
			sum.OpenDiscrepancies,
			sum.DiscrepancyLines,
			sum.DiscrepancyAmount.StringFixed(2),
		)
		if text == "" {
			text = line
		} else {
			text += "\n" + line
		}
	}
	if text == "" {
		return nil
	}
	return &text
}

// hasOpenItems reports what blocks a full sign-off. Unmatched lines without
// a discrepancy do not.
func hasOpenItems(sum summary.CaseSummary) bool {
	return sum.DiscrepancyLines > 0 || sum.OpenDiscrepancies > 0 || sum.PendingLines > 0
}
