package service

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/matching/matcher"
	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	"github.com/smallbiznis/soarecon/internal/reconerr"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

// RunMatching proposes matches for every extracted line of a case. Scoring
// fans out over a bounded worker pool; persistence is sequential in line id
// order. A cancelled context stops the run before the next write.
func (s *Service) RunMatching(ctx context.Context, req domain.RunMatchingRequest) (*domain.MatchingRun, error) {
	if err := requireCase(req.CaseID, req.VendorID); err != nil {
		return nil, err
	}
	c, err := s.loadCase(ctx, s.db, req.CaseID, req.VendorID)
	if err != nil {
		return nil, err
	}
	if c.IsClosed() {
		return nil, casedomain.ErrCaseClosed
	}

	run := &domain.MatchingRun{
		ID:        ulid.Make().String(),
		CaseID:    c.ID,
		StartedAt: s.clock.Now(),
	}
	log := s.log.With(zap.String("run_id", run.ID), zap.String("case_id", c.ID.String()))

	lines, err := s.lines.ListLines(ctx, s.db, statementdomain.LineFilter{
		CaseID: c.ID,
		Status: statementdomain.LineStatusExtracted,
	})
	if err != nil {
		return nil, err
	}
	records, err := s.lines.ListLedgerRecords(ctx, s.db, c.VendorID)
	if err != nil {
		return nil, err
	}
	run.LinesConsidered = len(lines)

	evaluations, err := s.evaluateAll(ctx, lines, records)
	if err != nil {
		return nil, err
	}

	for i, ev := range evaluations {
		if ev == nil {
			run.NoCandidate++
			continue
		}
		if ev.Ambiguous {
			run.Ambiguous++
		}
		switch ev.Outcome {
		case matcher.OutcomeBelowThreshold:
			run.BelowThreshold++
		case matcher.OutcomeNoEligible:
			run.NoCandidate++
		}
		if ev.Match == nil {
			continue
		}
		run.Proposed++

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		created, err := s.createMatch(ctx, ev.Match, req.ActorID)
		if err != nil {
			if errors.Is(err, reconerr.ErrConflict) || errors.Is(err, reconerr.ErrInvalidState) {
				run.Skipped++
				log.Debug("proposal skipped",
					zap.String("soa_item_id", lines[i].ID.String()),
					zap.Error(err),
				)
				continue
			}
			return nil, err
		}
		run.Created++
		run.Matches = append(run.Matches, *created)
	}

	found, err := s.detect(ctx, c.ID, req.ActorID)
	if err != nil {
		return nil, err
	}
	for _, d := range found {
		run.Discrepancies = append(run.Discrepancies, *d)
	}
	run.CompletedAt = s.clock.Now()

	s.audit(ctx, auditdomain.Event{
		CaseID:     c.ID,
		ActorID:    req.ActorID,
		Action:     auditdomain.ActionMatchingRunCompleted,
		TargetType: auditdomain.TargetCase,
		TargetID:   c.ID,
		Metadata: map[string]any{
			"run_id":           run.ID,
			"lines_considered": run.LinesConsidered,
			"created":          run.Created,
			"skipped":          run.Skipped,
			"no_candidate":     run.NoCandidate,
			"discrepancies":    len(run.Discrepancies),
		},
	})
	log.Info("matching run completed",
		zap.Int("lines_considered", run.LinesConsidered),
		zap.Int("proposed", run.Proposed),
		zap.Int("created", run.Created),
		zap.Int("skipped", run.Skipped),
		zap.Int("no_candidate", run.NoCandidate),
		zap.Int("discrepancies", len(run.Discrepancies)),
	)
	return run, nil
}

// evaluateAll scores every line against the shared record set. Lines with no
// candidates at all come back as nil.
func (s *Service) evaluateAll(ctx context.Context, lines []*statementdomain.Line, records []*statementdomain.LedgerRecord) ([]*matcher.Evaluation, error) {
	workers := s.cfg.Get().Workers
	if workers <= 0 {
		workers = 1
	}

	evaluations := make([]*matcher.Evaluation, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, line := range lines {
		g.Go(func() error {
			ev, err := s.matcher.Evaluate(gctx, line, records)
			if errors.Is(err, matchingdomain.ErrEmptyCandidateSet) {
				return nil
			}
			if err != nil {
				return err
			}
			evaluations[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return evaluations, nil
}
