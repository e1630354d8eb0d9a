package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	"github.com/smallbiznis/soarecon/internal/discrepancy/detector"
	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	"github.com/smallbiznis/soarecon/internal/lock"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/notification"
	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	"github.com/smallbiznis/soarecon/internal/reconerr"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

func (s *Service) CreateDiscrepancy(ctx context.Context, req domain.CreateDiscrepancyRequest) (*discrepancydomain.Discrepancy, error) {
	if req.CaseID == 0 {
		return nil, discrepancydomain.ErrMissingCase
	}

	discrepancyType := discrepancydomain.TypeOther
	if strings.TrimSpace(req.Type) != "" {
		parsed, err := discrepancydomain.ParseType(req.Type)
		if err != nil {
			return nil, err
		}
		discrepancyType = parsed
	}
	severity := discrepancydomain.SeverityMedium
	if strings.TrimSpace(req.Severity) != "" {
		parsed, err := discrepancydomain.ParseSeverity(req.Severity)
		if err != nil {
			return nil, err
		}
		severity = parsed
	}

	if _, err := s.loadCase(ctx, s.db, req.CaseID, 0); err != nil {
		return nil, err
	}
	if req.SOAItemID != nil {
		line, err := s.lines.FindLine(ctx, s.db, *req.SOAItemID)
		if err != nil {
			return nil, err
		}
		if line == nil || line.CaseID != req.CaseID {
			return nil, discrepancydomain.ErrLineNotInCase
		}
	}

	now := s.clock.Now()
	d := &discrepancydomain.Discrepancy{
		ID:          s.genID.Generate(),
		CaseID:      req.CaseID,
		SOAItemID:   req.SOAItemID,
		InvoiceID:   req.InvoiceID,
		Type:        discrepancyType,
		Severity:    severity,
		Description: strings.TrimSpace(req.Description),
		AmountDelta: req.AmountDelta,
		Status:      discrepancydomain.StatusOpen,
		Origin:      discrepancydomain.OriginManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.discrepancies.Insert(ctx, s.db, d); err != nil {
		return nil, err
	}

	s.discrepancyOpened(ctx, d, req.ActorID, auditdomain.ActionDiscrepancyCreated)
	return d, nil
}

func (s *Service) ResolveDiscrepancy(ctx context.Context, req domain.ResolveDiscrepancyRequest) (*discrepancydomain.Discrepancy, error) {
	if req.DiscrepancyID == 0 {
		return nil, discrepancydomain.ErrMissingDiscrepancy
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, discrepancydomain.ErrMissingResolver
	}

	now := s.clock.Now()
	var resolved *discrepancydomain.Discrepancy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.discrepancies.FindByIDForUpdate(ctx, tx, req.DiscrepancyID)
		if err != nil {
			return err
		}
		if d == nil {
			return discrepancydomain.ErrDiscrepancyNotFound
		}
		if d.Status != discrepancydomain.StatusOpen {
			return discrepancydomain.ErrDiscrepancyNotOpen
		}

		ok, err := s.discrepancies.Resolve(ctx, tx, d.ID, discrepancydomain.ResolveUpdate{
			ResolvedBy:       userID,
			ResolvedAt:       now,
			ResolutionNotes:  optionalText(req.ResolutionNotes),
			ResolutionAction: optionalText(req.ResolutionAction),
		})
		if err != nil {
			return err
		}
		if !ok {
			return discrepancydomain.ErrDiscrepancyNotOpen
		}

		resolved, err = s.discrepancies.FindByID(ctx, tx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"discrepancy_type": string(resolved.Type)}
	if resolved.ResolutionAction != nil {
		metadata["resolution_action"] = *resolved.ResolutionAction
	}
	s.audit(ctx, auditdomain.Event{
		CaseID:     resolved.CaseID,
		ActorID:    userID,
		Action:     auditdomain.ActionDiscrepancyResolved,
		TargetType: auditdomain.TargetDiscrepancy,
		TargetID:   resolved.ID,
		Metadata:   metadata,
	})
	return resolved, nil
}

func (s *Service) DetectDiscrepancies(ctx context.Context, caseID snowflake.ID, actorID string) ([]discrepancydomain.Discrepancy, error) {
	if caseID == 0 {
		return nil, discrepancydomain.ErrMissingCase
	}
	created, err := s.detect(ctx, caseID, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]discrepancydomain.Discrepancy, 0, len(created))
	for _, d := range created {
		out = append(out, *d)
	}
	return out, nil
}

// detect loads the case state, runs the detector and applies its result. The
// case lock keeps two runs from opening the same discrepancy twice.
func (s *Service) detect(ctx context.Context, caseID snowflake.ID, actorID string) ([]*discrepancydomain.Discrepancy, error) {
	release, err := s.locker.Acquire(ctx, lock.CaseKey(caseID.Int64()))
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			s.metrics.RecordLockContention(ctx, s.locker.Backend())
		}
		return nil, err
	}
	defer release()

	c, err := s.loadCase(ctx, s.db, caseID, 0)
	if err != nil {
		return nil, err
	}

	var created []*discrepancydomain.Discrepancy
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, err := s.lines.ListLines(ctx, tx, statementdomain.LineFilter{CaseID: caseID})
		if err != nil {
			return err
		}
		matches, err := s.matches.ListByCase(ctx, tx, caseID)
		if err != nil {
			return err
		}
		records, err := s.lines.ListLedgerRecords(ctx, tx, c.VendorID)
		if err != nil {
			return err
		}
		existing, err := s.discrepancies.ListByCase(ctx, tx, caseID, "")
		if err != nil {
			return err
		}

		states, err := s.lineStates(ctx, lines, matches, records)
		if err != nil {
			return err
		}

		input := detector.Input{CaseID: caseID, Lines: states}
		for _, d := range existing {
			switch d.Status {
			case discrepancydomain.StatusOpen:
				input.Open = append(input.Open, d)
			case discrepancydomain.StatusResolved:
				input.Resolved = append(input.Resolved, d)
			}
		}
		result := s.detector.Detect(input)
		if result.Empty() {
			return nil
		}

		now := s.clock.Now()
		for _, d := range result.Create {
			d.ID = s.genID.Generate()
			d.CreatedAt = now
			d.UpdatedAt = now
			if err := s.discrepancies.Insert(ctx, tx, d); err != nil {
				return err
			}
		}
		for _, d := range result.Update {
			d.UpdatedAt = now
			if err := s.discrepancies.UpdateDetected(ctx, tx, d); err != nil {
				return err
			}
		}
		created = result.Create
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range created {
		s.discrepancyOpened(ctx, d, actorID, auditdomain.ActionDiscrepancyDetected)
	}
	return created, nil
}

// lineStates resolves, per line, the record it currently points at. Matched
// lines use their active match; extracted lines use the matcher's proposal.
func (s *Service) lineStates(ctx context.Context, lines []*statementdomain.Line, matches []*matchingdomain.Match, records []*statementdomain.LedgerRecord) ([]detector.LineState, error) {
	byID := make(map[snowflake.ID]*statementdomain.LedgerRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	active := make(map[snowflake.ID]*matchingdomain.Match, len(matches))
	for _, m := range matches {
		if m.Status.IsActive() {
			active[m.SOAItemID] = m
		}
	}

	states := make([]detector.LineState, 0, len(lines))
	for _, line := range lines {
		state := detector.LineState{
			Line:           line,
			ActiveMatch:    active[line.ID],
			CandidateCount: s.matcher.CountInWindow(line, records),
		}
		switch {
		case state.ActiveMatch != nil:
			state.Invoice = byID[state.ActiveMatch.InvoiceID]
		case line.Status == statementdomain.LineStatusExtracted:
			ev, err := s.matcher.Evaluate(ctx, line, records)
			if err != nil {
				if errors.Is(err, reconerr.ErrNoCandidate) {
					break
				}
				return nil, err
			}
			if ev.Match != nil {
				state.Invoice = byID[ev.Match.InvoiceID]
			}
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *Service) discrepancyOpened(ctx context.Context, d *discrepancydomain.Discrepancy, actorID, action string) {
	s.metrics.RecordDiscrepancy(ctx, string(d.Type), string(d.Severity))

	metadata := map[string]any{
		"discrepancy_type": string(d.Type),
		"severity":         string(d.Severity),
		"amount_delta":     d.AmountDelta.String(),
	}
	if d.SOAItemID != nil {
		metadata["soa_item_id"] = d.SOAItemID.String()
	}
	s.audit(ctx, auditdomain.Event{
		CaseID:     d.CaseID,
		ActorID:    actorID,
		Action:     action,
		TargetType: auditdomain.TargetDiscrepancy,
		TargetID:   d.ID,
		Metadata:   metadata,
	})

	payload := map[string]any{"discrepancy_id": d.ID.String()}
	for k, v := range metadata {
		payload[k] = v
	}
	s.notifier.Notify(ctx, d.CaseID, notification.EventDiscrepancyCreated, payload)

	s.log.Info("discrepancy opened",
		zap.String("case_id", d.CaseID.String()),
		zap.String("discrepancy_id", d.ID.String()),
		zap.String("discrepancy_type", string(d.Type)),
		zap.String("severity", string(d.Severity)),
	)
}

func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
