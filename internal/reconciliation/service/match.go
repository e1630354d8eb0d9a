package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	"github.com/smallbiznis/soarecon/internal/lock"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

func (s *Service) CreateMatch(ctx context.Context, req domain.CreateMatchRequest) (*matchingdomain.Match, error) {
	if req.SOAItemID == 0 || req.InvoiceID == 0 {
		return nil, matchingdomain.ErrMissingIDs
	}
	matchType, err := matchingdomain.ParseMatchType(req.MatchType)
	if err != nil {
		return nil, err
	}

	var criteria matchingdomain.MatchCriteria
	if req.Criteria != nil {
		criteria = *req.Criteria
	}
	m := &matchingdomain.Match{
		SOAItemID:    req.SOAItemID,
		InvoiceID:    req.InvoiceID,
		MatchType:    matchType,
		IsExactMatch: req.IsExactMatch,
		Confidence:   req.Confidence,
		MatchScore:   req.MatchScore,
		Criteria:     datatypes.NewJSONType(criteria),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.createMatch(ctx, m, req.ActorID)
}

func (s *Service) ProposeAndCreateMatch(ctx context.Context, req domain.CreateMatchRequest) (*matchingdomain.Match, error) {
	if strings.TrimSpace(req.MatchType) != "" {
		return s.CreateMatch(ctx, req)
	}
	if req.SOAItemID == 0 || req.InvoiceID == 0 {
		return nil, matchingdomain.ErrMissingIDs
	}

	line, err := s.lines.FindLine(ctx, s.db, req.SOAItemID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, matchingdomain.ErrLineNotFound
	}
	record, err := s.lines.FindLedgerRecord(ctx, s.db, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, matchingdomain.ErrInvoiceNotFound
	}

	return s.createMatch(ctx, s.matcher.Pair(line, record), req.ActorID)
}

func (s *Service) ProposeMatch(ctx context.Context, soaItemID snowflake.ID, actorID string) (*matchingdomain.Match, error) {
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
	records, err := s.lines.ListCandidates(ctx, s.db, s.matcher.Window(line))
	if err != nil {
		return nil, err
	}

	ev, err := s.matcher.Evaluate(ctx, line, records)
	if err != nil {
		return nil, err
	}
	if ev.Match == nil {
		s.log.Debug("no match proposed",
			zap.String("soa_item_id", line.ID.String()),
			zap.String("outcome", string(ev.Outcome)),
			zap.Int("candidates", ev.Considered),
		)
		return nil, nil
	}
	return s.createMatch(ctx, ev.Match, actorID)
}

// createMatch persists a pending match and flips its line to matched in one
// transaction, under the line lock.
func (s *Service) createMatch(ctx context.Context, proposal *matchingdomain.Match, actorID string) (*matchingdomain.Match, error) {
	release, err := s.locker.Acquire(ctx, lock.LineKey(proposal.SOAItemID.Int64()))
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			s.metrics.RecordLockContention(ctx, s.locker.Backend())
		}
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	var created *matchingdomain.Match
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.lines.FindLineForUpdate(ctx, tx, proposal.SOAItemID)
		if err != nil {
			return err
		}
		if line == nil {
			return matchingdomain.ErrLineNotFound
		}
		if err := s.requireOpenCase(ctx, tx, line.CaseID); err != nil {
			return err
		}

		record, err := s.lines.FindLedgerRecord(ctx, tx, proposal.InvoiceID)
		if err != nil {
			return err
		}
		if record == nil {
			return matchingdomain.ErrInvoiceNotFound
		}
		if record.VendorID != line.VendorID {
			return matchingdomain.ErrInvoiceVendor
		}

		active, err := s.matches.FindActiveByLine(ctx, tx, line.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return matchingdomain.ErrActiveMatchExists
		}
		if line.Status != statementdomain.LineStatusExtracted {
			return matchingdomain.ErrLineNotExtracted
		}

		entry := *proposal
		entry.ID = s.genID.Generate()
		entry.CaseID = line.CaseID
		entry.Status = matchingdomain.MatchStatusPending
		entry.ConfirmedBy, entry.ConfirmedAt = nil, nil
		entry.RejectedBy, entry.RejectedAt, entry.RejectionReason = nil, nil, nil
		entry.CreatedAt = now
		entry.UpdatedAt = now

		if err := s.matches.Insert(ctx, tx, &entry); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return matchingdomain.ErrActiveMatchExists
			}
			return err
		}

		moved, err := s.lines.UpdateLineStatus(ctx, tx, line.ID, statementdomain.LineStatusExtracted, statementdomain.LineStatusMatched, now)
		if err != nil {
			return err
		}
		if !moved {
			return matchingdomain.ErrActiveMatchExists
		}

		created = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMatchProposed(ctx, string(created.MatchType))
	s.audit(ctx, auditdomain.Event{
		CaseID:     created.CaseID,
		ActorID:    actorID,
		Action:     auditdomain.ActionMatchCreated,
		TargetType: auditdomain.TargetMatch,
		TargetID:   created.ID,
		Metadata: map[string]any{
			"soa_item_id": created.SOAItemID.String(),
			"invoice_id":  created.InvoiceID.String(),
			"match_type":  string(created.MatchType),
			"confidence":  created.Confidence,
			"match_score": created.MatchScore,
		},
	})
	return created, nil
}

func (s *Service) ConfirmMatch(ctx context.Context, matchID snowflake.ID, userID string) (*matchingdomain.Match, error) {
	if matchID == 0 {
		return nil, matchingdomain.ErrMissingMatch
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, matchingdomain.ErrMissingUser
	}

	now := s.clock.Now()
	var updated *matchingdomain.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.pendingMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		ok, err := s.matches.Confirm(ctx, tx, m.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return matchingdomain.ErrMatchNotPending
		}

		updated, err = s.matches.FindByID(ctx, tx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMatchTransition(ctx, string(matchingdomain.MatchStatusConfirmed))
	s.audit(ctx, auditdomain.Event{
		CaseID:     updated.CaseID,
		ActorID:    userID,
		Action:     auditdomain.ActionMatchConfirmed,
		TargetType: auditdomain.TargetMatch,
		TargetID:   updated.ID,
		Metadata: map[string]any{
			"soa_item_id": updated.SOAItemID.String(),
			"invoice_id":  updated.InvoiceID.String(),
		},
	})
	s.reevaluate(ctx, updated.CaseID, userID)
	return updated, nil
}

func (s *Service) RejectMatch(ctx context.Context, matchID snowflake.ID, userID, reason string) (*matchingdomain.Match, error) {
	if matchID == 0 {
		return nil, matchingdomain.ErrMissingMatch
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, matchingdomain.ErrMissingUser
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, matchingdomain.ErrReasonRequired
	}

	now := s.clock.Now()
	var updated *matchingdomain.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.pendingMatchForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}

		ok, err := s.matches.Reject(ctx, tx, m.ID, userID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return matchingdomain.ErrMatchNotPending
		}

		reverted, err := s.lines.UpdateLineStatus(ctx, tx, m.SOAItemID, statementdomain.LineStatusMatched, statementdomain.LineStatusExtracted, now)
		if err != nil {
			return err
		}
		if !reverted {
			s.log.Warn("rejected match left its line untouched",
				zap.String("match_id", m.ID.String()),
				zap.String("soa_item_id", m.SOAItemID.String()),
			)
		}

		updated, err = s.matches.FindByID(ctx, tx, m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMatchTransition(ctx, string(matchingdomain.MatchStatusRejected))
	s.audit(ctx, auditdomain.Event{
		CaseID:     updated.CaseID,
		ActorID:    userID,
		Action:     auditdomain.ActionMatchRejected,
		TargetType: auditdomain.TargetMatch,
		TargetID:   updated.ID,
		Metadata: map[string]any{
			"soa_item_id": updated.SOAItemID.String(),
			"invoice_id":  updated.InvoiceID.String(),
			"reason":      reason,
		},
	})
	s.reevaluate(ctx, updated.CaseID, userID)
	return updated, nil
}

func (s *Service) pendingMatchForUpdate(ctx context.Context, tx *gorm.DB, matchID snowflake.ID) (*matchingdomain.Match, error) {
	m, err := s.matches.FindByIDForUpdate(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, matchingdomain.ErrMatchNotFound
	}
	if m.Status != matchingdomain.MatchStatusPending {
		return nil, matchingdomain.ErrMatchNotPending
	}
	if err := s.requireOpenCase(ctx, tx, m.CaseID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) requireOpenCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) error {
	c, err := s.loadCase(ctx, db, caseID, 0)
	if err != nil {
		return err
	}
	if c.IsClosed() {
		return casedomain.ErrCaseClosed
	}
	return nil
}

// reevaluate runs detection after a decision. The decision is already
// committed, so a failure here is only logged.
func (s *Service) reevaluate(ctx context.Context, caseID snowflake.ID, actorID string) {
	if _, err := s.detect(ctx, caseID, actorID); err != nil {
		s.log.Warn("discrepancy detection failed",
			zap.String("case_id", caseID.String()),
			zap.Error(err),
		)
	}
}
