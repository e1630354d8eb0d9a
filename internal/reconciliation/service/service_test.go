package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	auditdomain "github.com/smallbiznis/soarecon/internal/audit/domain"
	casedomain "github.com/smallbiznis/soarecon/internal/casestore/domain"
	caserepo "github.com/smallbiznis/soarecon/internal/casestore/repository"
	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy/detector"
	discrepancydomain "github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	discrepancyrepo "github.com/smallbiznis/soarecon/internal/discrepancy/repository"
	"github.com/smallbiznis/soarecon/internal/lock"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/matching/matcher"
	matchingrepo "github.com/smallbiznis/soarecon/internal/matching/repository"
	"github.com/smallbiznis/soarecon/internal/notification"
	"github.com/smallbiznis/soarecon/internal/reconciliation/domain"
	"github.com/smallbiznis/soarecon/internal/reconciliation/service"
	"github.com/smallbiznis/soarecon/internal/reconerr"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
	statementrepo "github.com/smallbiznis/soarecon/internal/statement/repository"
	"github.com/smallbiznis/soarecon/internal/testutil"
)

const vendorID snowflake.ID = 9001

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Append(ctx context.Context, event auditdomain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(_ context.Context, caseID snowflake.ID, eventType string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification.Event{CaseID: caseID, Type: eventType, Payload: payload})
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.Type == eventType {
			total++
		}
	}
	return total
}

type env struct {
	*testutil.Fixture
	svc           domain.Service
	audit         *mockAudit
	notifier      *recordingNotifier
	lines         statementdomain.Repository
	matches       matchingdomain.Repository
	discrepancies discrepancydomain.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()

	f := testutil.NewFixture(t)
	log := zaptest.NewLogger(t)
	holder, err := config.NewMatchingConfigHolderFrom(config.DefaultMatchingConfig())
	require.NoError(t, err)

	audit := &mockAudit{}
	audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	notifier := &recordingNotifier{}
	lines := statementrepo.Provide()
	matches := matchingrepo.Provide()
	discrepancies := discrepancyrepo.Provide()

	svc := service.NewService(service.Params{
		DB:            f.DB,
		Log:           log,
		Clock:         f.Clock,
		GenID:         f.Node,
		Config:        holder,
		Locker:        lock.NewLocalLocker(time.Minute, 5*time.Second),
		Cases:         caserepo.Provide(),
		Lines:         lines,
		Matches:       matches,
		Discrepancies: discrepancies,
		Matcher:       matcher.New(holder, log),
		Detector:      detector.New(holder),
		AuditSvc:      audit,
		Notifier:      notifier,
	})

	return &env{Fixture: f, svc: svc, audit: audit, notifier: notifier, lines: lines, matches: matches, discrepancies: discrepancies}
}

func (e *env) lineStatus(t *testing.T, id snowflake.ID) statementdomain.LineStatus {
	t.Helper()
	line, err := e.lines.FindLine(context.Background(), e.DB, id)
	require.NoError(t, err)
	require.NotNil(t, line)
	return line.Status
}

func (e *env) assertSingleActivePerLine(t *testing.T) {
	t.Helper()
	var offenders int64
	err := e.DB.Raw(`SELECT COUNT(1) FROM (
		SELECT soa_item_id FROM soa_matches WHERE status <> 'rejected'
		GROUP BY soa_item_id HAVING COUNT(1) > 1
	) dup`).Scan(&offenders).Error
	require.NoError(t, err)
	assert.Zero(t, offenders)
}

func (e *env) auditActions() []string {
	var actions []string
	for _, call := range e.audit.Calls {
		if call.Method == "Append" {
			actions = append(actions, call.Arguments.Get(1).(auditdomain.Event).Action)
		}
	}
	return actions
}

func TestDeterministicProposalMarksLineMatched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "1000.00", Date: "2024-02-20"})
	record := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "1000.00", Date: "2024-02-20"})

	m, err := e.svc.ProposeMatch(ctx, line.ID, "reviewer-1")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, matchingdomain.MatchTypeDeterministic, m.MatchType)
	assert.True(t, m.IsExactMatch)
	assert.Equal(t, 1.0, m.Confidence)
	assert.Equal(t, 100, m.MatchScore)
	assert.Equal(t, matchingdomain.MatchStatusPending, m.Status)
	assert.Equal(t, record.ID, m.InvoiceID)
	assert.Equal(t, c.ID, m.CaseID)
	assert.Equal(t, statementdomain.LineStatusMatched, e.lineStatus(t, line.ID))

	stored, err := e.matches.FindByID(ctx, e.DB, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Criteria.Data().InvoiceNumber)
	assert.True(t, stored.Criteria.Data().Currency)

	assert.Contains(t, e.auditActions(), auditdomain.ActionMatchCreated)
}

func TestAmbiguousCandidatesLeaveLineExtracted(t *testing.T) {
	e := newEnv(t)
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "1000.00", Date: "2024-02-20"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "1000.00", Date: "2024-02-20"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "inv-1 ", TotalAmount: "1000.00", Date: "2024-02-21"})

	run, err := e.svc.RunMatching(context.Background(), domain.RunMatchingRequest{CaseID: c.ID, VendorID: vendorID})
	require.NoError(t, err)

	assert.Equal(t, 1, run.LinesConsidered)
	assert.Equal(t, 1, run.Ambiguous)
	assert.Zero(t, run.Created)
	assert.Empty(t, run.Discrepancies)
	assert.Equal(t, statementdomain.LineStatusExtracted, e.lineStatus(t, line.ID))
	assert.Zero(t, testutil.Count(t, e.DB, "SELECT COUNT(1) FROM soa_matches"))
}

func TestConfirmRejectedMatchIsInvalidState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-7", Amount: "250.00", Date: "2024-02-01"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-7", TotalAmount: "250.00", Date: "2024-02-01"})

	m, err := e.svc.ProposeMatch(ctx, line.ID, "")
	require.NoError(t, err)
	require.NotNil(t, m)

	rejected, err := e.svc.RejectMatch(ctx, m.ID, "reviewer-1", "wrong invoice")
	require.NoError(t, err)
	assert.Equal(t, matchingdomain.MatchStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "wrong invoice", *rejected.RejectionReason)
	assert.Equal(t, statementdomain.LineStatusExtracted, e.lineStatus(t, line.ID))

	_, err = e.svc.ConfirmMatch(ctx, m.ID, "reviewer-1")
	assert.ErrorIs(t, err, reconerr.ErrInvalidState)
	assert.ErrorIs(t, err, matchingdomain.ErrMatchNotPending)

	_, err = e.svc.RejectMatch(ctx, m.ID, "reviewer-1", "again")
	assert.ErrorIs(t, err, matchingdomain.ErrMatchNotPending)
}

func TestMatchDecisionPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.ConfirmMatch(ctx, 0, "reviewer-1")
	assert.ErrorIs(t, err, reconerr.ErrValidation)

	_, err = e.svc.ConfirmMatch(ctx, snowflake.ID(42), "reviewer-1")
	assert.ErrorIs(t, err, reconerr.ErrNotFound)
	assert.ErrorIs(t, err, matchingdomain.ErrMatchNotFound)

	_, err = e.svc.ConfirmMatch(ctx, snowflake.ID(42), "  ")
	assert.ErrorIs(t, err, matchingdomain.ErrMissingUser)

	_, err = e.svc.RejectMatch(ctx, snowflake.ID(42), "reviewer-1", " ")
	assert.ErrorIs(t, err, reconerr.ErrValidation)
	assert.ErrorIs(t, err, matchingdomain.ErrReasonRequired)
}

func TestRejectThenReproposeNeverResurrectsOldMatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-3", Amount: "75.10", Date: "2024-02-10"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-3", TotalAmount: "75.10", Date: "2024-02-10"})

	first, err := e.svc.ProposeMatch(ctx, line.ID, "")
	require.NoError(t, err)
	require.NotNil(t, first)
	_, err = e.svc.RejectMatch(ctx, first.ID, "reviewer-1", "duplicate upload")
	require.NoError(t, err)

	second, err := e.svc.ProposeMatch(ctx, line.ID, "")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	confirmed, err := e.svc.ConfirmMatch(ctx, second.ID, "reviewer-2")
	require.NoError(t, err)
	assert.Equal(t, matchingdomain.MatchStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "reviewer-2", *confirmed.ConfirmedBy)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, e.Clock.Now().Equal(*confirmed.ConfirmedAt))

	old, err := e.matches.FindByID(ctx, e.DB, first.ID)
	require.NoError(t, err)
	assert.Equal(t, matchingdomain.MatchStatusRejected, old.Status)
	assert.Equal(t, statementdomain.LineStatusMatched, e.lineStatus(t, line.ID))

	history, err := e.svc.ListLineMatches(ctx, line.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, matchingdomain.MatchStatusRejected, history[0].Status)
	assert.Equal(t, second.ID, history[1].ID)

	_, err = e.svc.ListLineMatches(ctx, 0)
	assert.ErrorIs(t, err, reconerr.ErrValidation)
	_, err = e.svc.ListLineMatches(ctx, 404)
	assert.ErrorIs(t, err, matchingdomain.ErrLineNotFound)
	e.assertSingleActivePerLine(t)
}

func TestCreateMatchRejectsSecondActiveMatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-9", Amount: "10.00"})
	a := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-9", TotalAmount: "10.00"})
	b := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-9B", TotalAmount: "10.00"})

	_, err := e.svc.CreateMatch(ctx, domain.CreateMatchRequest{
		SOAItemID: line.ID, InvoiceID: a.ID, MatchType: "fuzzy", Confidence: 0.9, MatchScore: 90,
	})
	require.NoError(t, err)

	_, err = e.svc.CreateMatch(ctx, domain.CreateMatchRequest{
		SOAItemID: line.ID, InvoiceID: b.ID, MatchType: "fuzzy", Confidence: 0.8, MatchScore: 80,
	})
	assert.ErrorIs(t, err, reconerr.ErrConflict)
	assert.ErrorIs(t, err, matchingdomain.ErrActiveMatchExists)
	assert.Equal(t, int64(1), testutil.Count(t, e.DB, "SELECT COUNT(1) FROM soa_matches"))
}

func TestCreateMatchValidatesInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := map[string]domain.CreateMatchRequest{
		"missing line":        {InvoiceID: 1, MatchType: "fuzzy"},
		"missing invoice":     {SOAItemID: 1, MatchType: "fuzzy"},
		"unknown type":        {SOAItemID: 1, InvoiceID: 2, MatchType: "manual"},
		"confidence too high": {SOAItemID: 1, InvoiceID: 2, MatchType: "fuzzy", Confidence: 1.5},
		"score too high":      {SOAItemID: 1, InvoiceID: 2, MatchType: "fuzzy", MatchScore: 101},
		"inexact determ":      {SOAItemID: 1, InvoiceID: 2, MatchType: "deterministic", Confidence: 1, MatchScore: 100},
		"low conf determ":     {SOAItemID: 1, InvoiceID: 2, MatchType: "deterministic", IsExactMatch: true, Confidence: 0.5, MatchScore: 100},
		"low score determ":    {SOAItemID: 1, InvoiceID: 2, MatchType: "deterministic", IsExactMatch: true, Confidence: 1, MatchScore: 50},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.svc.CreateMatch(ctx, req)
			assert.ErrorIs(t, err, reconerr.ErrValidation)
		})
	}

	_, err := e.svc.CreateMatch(ctx, domain.CreateMatchRequest{SOAItemID: 1, InvoiceID: 2, MatchType: "fuzzy"})
	assert.ErrorIs(t, err, matchingdomain.ErrLineNotFound)
}

func TestCreateMatchRequiresSameVendorInvoice(t *testing.T) {
	e := newEnv(t)
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	foreign := e.Ledger(t, vendorID+1, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "10.00"})

	_, err := e.svc.ProposeAndCreateMatch(context.Background(), domain.CreateMatchRequest{SOAItemID: line.ID, InvoiceID: foreign.ID})
	assert.ErrorIs(t, err, matchingdomain.ErrInvoiceVendor)
	assert.Equal(t, statementdomain.LineStatusExtracted, e.lineStatus(t, line.ID))
}

func TestProposeAndCreateMatchScoresChosenPair(t *testing.T) {
	e := newEnv(t)
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-40", Amount: "400.00", Date: "2024-02-01"})
	record := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-41", TotalAmount: "380.00", Date: "2024-02-05"})

	m, err := e.svc.ProposeAndCreateMatch(context.Background(), domain.CreateMatchRequest{
		SOAItemID: line.ID,
		InvoiceID: record.ID,
		ActorID:   "reviewer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, matchingdomain.MatchTypeFuzzy, m.MatchType)
	assert.False(t, m.IsExactMatch)
	assert.InDelta(t, float64(m.MatchScore)/100, m.Confidence, 1e-9)
	assert.Equal(t, statementdomain.LineStatusMatched, e.lineStatus(t, line.ID))
}

func TestProposeMatchWithoutCandidates(t *testing.T) {
	e := newEnv(t)
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	e.Ledger(t, vendorID+1, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "10.00"})

	m, err := e.svc.ProposeMatch(context.Background(), line.ID, "")
	assert.Nil(t, m)
	assert.ErrorIs(t, err, reconerr.ErrNoCandidate)
	assert.Zero(t, testutil.Count(t, e.DB, "SELECT COUNT(1) FROM soa_matches"))
	assert.Equal(t, statementdomain.LineStatusExtracted, e.lineStatus(t, line.ID))
}

func TestConcurrentCreateMatchKeepsOneActive(t *testing.T) {
	e := newEnv(t)
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	var records []*statementdomain.LedgerRecord
	for i := 0; i < 6; i++ {
		records = append(records, e.Ledger(t, vendorID, testutil.LedgerSpec{TotalAmount: "10.00"}))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(records))
	for i, record := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.CreateMatch(context.Background(), domain.CreateMatchRequest{
				SOAItemID: line.ID, InvoiceID: record.ID, MatchType: "fuzzy", Confidence: 0.7, MatchScore: 70,
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, reconerr.ErrConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	e.assertSingleActivePerLine(t)
}

func TestClosedCaseRefusesMatchChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "10.00"})
	require.NoError(t, e.DB.Exec("UPDATE soa_cases SET status = ? WHERE id = ?", casedomain.CaseStatusClosed, c.ID).Error)

	_, err := e.svc.ProposeMatch(ctx, line.ID, "")
	assert.ErrorIs(t, err, casedomain.ErrCaseClosed)

	_, err = e.svc.RunMatching(ctx, domain.RunMatchingRequest{CaseID: c.ID, VendorID: vendorID})
	assert.ErrorIs(t, err, reconerr.ErrInvalidState)
}

func TestAuditFailureDoesNotFailDecision(t *testing.T) {
	e := newEnv(t)
	e.audit.ExpectedCalls = nil
	e.audit.On("Append", mock.Anything, mock.Anything).Return(errors.New("audit sink down"))

	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "10.00"})

	m, err := e.svc.ProposeMatch(context.Background(), line.ID, "")
	require.NoError(t, err)
	require.NotNil(t, m)
	e.audit.AssertCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestConfirmedAmountGapOpensMismatchOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-9", Amount: "1000.00", Date: "2024-02-01"})
	record := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-9", TotalAmount: "960.00", Date: "2024-02-01"})

	m, err := e.svc.ProposeMatch(ctx, line.ID, "")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, matchingdomain.MatchTypeFuzzy, m.MatchType)
	assert.Equal(t, 68, m.MatchScore)

	_, err = e.svc.ConfirmMatch(ctx, m.ID, "reviewer-1")
	require.NoError(t, err)

	open, err := e.svc.ListDiscrepancies(ctx, domain.ListDiscrepanciesRequest{CaseID: c.ID, VendorID: vendorID, Status: "open"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	d := open[0]
	assert.Equal(t, discrepancydomain.TypeAmountMismatch, d.Type)
	assert.Equal(t, discrepancydomain.SeverityMedium, d.Severity)
	assert.True(t, decimal.RequireFromString("40").Equal(d.AmountDelta))
	require.NotNil(t, d.InvoiceID)
	assert.Equal(t, record.ID, *d.InvoiceID)
	assert.Equal(t, 1, e.notifier.count(notification.EventDiscrepancyCreated))

	sum, err := e.svc.GetSummary(ctx, c.ID, vendorID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.MatchedLines)
	assert.Equal(t, 1, sum.DiscrepancyLines)
	assert.True(t, decimal.RequireFromString("40").Equal(sum.DiscrepancyAmount))
	assert.True(t, sum.NetVariance.IsZero())

	again, err := e.svc.DetectDiscrepancies(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, again)

	resolved, err := e.svc.ResolveDiscrepancy(ctx, domain.ResolveDiscrepancyRequest{
		DiscrepancyID:    d.ID,
		UserID:           "reviewer-1",
		ResolutionNotes:  "vendor agreed credit note",
		ResolutionAction: "credit_note",
	})
	require.NoError(t, err)
	assert.Equal(t, discrepancydomain.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "reviewer-1", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolutionAction)
	assert.Equal(t, "credit_note", *resolved.ResolutionAction)

	_, err = e.svc.ResolveDiscrepancy(ctx, domain.ResolveDiscrepancyRequest{DiscrepancyID: d.ID, UserID: "reviewer-1"})
	assert.ErrorIs(t, err, reconerr.ErrInvalidState)
	assert.ErrorIs(t, err, discrepancydomain.ErrDiscrepancyNotOpen)

	after, err := e.svc.DetectDiscrepancies(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestCreateDiscrepancyManually(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{Amount: "15.00"})

	_, err := e.svc.CreateDiscrepancy(ctx, domain.CreateDiscrepancyRequest{Type: "other"})
	assert.ErrorIs(t, err, reconerr.ErrValidation)

	_, err = e.svc.CreateDiscrepancy(ctx, domain.CreateDiscrepancyRequest{CaseID: c.ID, Type: "made_up"})
	assert.ErrorIs(t, err, discrepancydomain.ErrInvalidType)

	other := snowflake.ID(123)
	_, err = e.svc.CreateDiscrepancy(ctx, domain.CreateDiscrepancyRequest{CaseID: c.ID, SOAItemID: &other})
	assert.ErrorIs(t, err, discrepancydomain.ErrLineNotInCase)

	d, err := e.svc.CreateDiscrepancy(ctx, domain.CreateDiscrepancyRequest{
		CaseID:      c.ID,
		SOAItemID:   &line.ID,
		Type:        "currency_mismatch",
		Severity:    "low",
		Description: " billed in EUR ",
		AmountDelta: decimal.RequireFromString("-2.50"),
		ActorID:     "reviewer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, discrepancydomain.StatusOpen, d.Status)
	assert.Equal(t, "billed in EUR", d.Description)
	assert.Equal(t, 1, e.notifier.count(notification.EventDiscrepancyCreated))
	assert.Contains(t, e.auditActions(), auditdomain.ActionDiscrepancyCreated)

	_, err = e.svc.ResolveDiscrepancy(ctx, domain.ResolveDiscrepancyRequest{DiscrepancyID: d.ID})
	assert.ErrorIs(t, err, discrepancydomain.ErrMissingResolver)
	_, err = e.svc.ResolveDiscrepancy(ctx, domain.ResolveDiscrepancyRequest{DiscrepancyID: 77, UserID: "u"})
	assert.ErrorIs(t, err, reconerr.ErrNotFound)
}

func TestDetectionLeavesManualDiscrepancyAlone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	line := e.Line(t, c, testutil.LineSpec{Amount: "15.00", Date: "2024-02-01"})

	manual, err := e.svc.CreateDiscrepancy(ctx, domain.CreateDiscrepancyRequest{
		CaseID:      c.ID,
		SOAItemID:   &line.ID,
		Type:        "missing_invoice",
		Severity:    "low",
		Description: "vendor is sending a copy",
		AmountDelta: decimal.RequireFromString("15.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, discrepancydomain.OriginManual, manual.Origin)

	detected, err := e.svc.DetectDiscrepancies(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, detected)

	stored, err := e.discrepancies.FindByID(ctx, e.DB, manual.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, discrepancydomain.SeverityLow, stored.Severity)
	assert.Equal(t, "vendor is sending a copy", stored.Description)
	assert.Equal(t, discrepancydomain.OriginManual, stored.Origin)
}

func TestDuplicateClaimFollowsNewLowestLine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	first := e.Line(t, c, testutil.LineSpec{Amount: "90000.00"})
	second := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-R", Amount: "500.00"})
	third := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-R", Amount: "500.00"})
	record := e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-R", TotalAmount: "500.00"})

	for _, l := range []*statementdomain.Line{second, third} {
		_, err := e.svc.ProposeAndCreateMatch(ctx, domain.CreateMatchRequest{SOAItemID: l.ID, InvoiceID: record.ID})
		require.NoError(t, err)
	}
	created, err := e.svc.DetectDiscrepancies(ctx, c.ID, "")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, second.ID, *created[0].SOAItemID)

	_, err = e.svc.ProposeAndCreateMatch(ctx, domain.CreateMatchRequest{SOAItemID: first.ID, InvoiceID: record.ID})
	require.NoError(t, err)
	again, err := e.svc.DetectDiscrepancies(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, again)

	open, err := e.discrepancies.ListByCase(ctx, e.DB, c.ID, discrepancydomain.StatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	d := open[0]
	assert.Equal(t, created[0].ID, d.ID)
	assert.Equal(t, first.ID, *d.SOAItemID)
	assert.Equal(t, []snowflake.ID{second.ID, third.ID}, []snowflake.ID(d.RelatedItemIDs))
	assert.True(t, decimal.RequireFromString("90500").Equal(d.AmountDelta))
}

func TestListLinesFiltersAndScopesByVendor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.Case(t, vendorID)
	matched := e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "10.00"})
	e.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-2", Amount: "20.00"})
	e.Ledger(t, vendorID, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "10.00"})

	_, err := e.svc.ProposeMatch(ctx, matched.ID, "")
	require.NoError(t, err)

	all, err := e.svc.ListLines(ctx, domain.ListLinesRequest{CaseID: c.ID, VendorID: vendorID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyMatched, err := e.svc.ListLines(ctx, domain.ListLinesRequest{CaseID: c.ID, VendorID: vendorID, Status: "MATCHED"})
	require.NoError(t, err)
	require.Len(t, onlyMatched, 1)
	assert.Equal(t, matched.ID, onlyMatched[0].ID)

	_, err = e.svc.ListLines(ctx, domain.ListLinesRequest{CaseID: c.ID, VendorID: vendorID, Status: "paid"})
	assert.ErrorIs(t, err, reconerr.ErrValidation)

	_, err = e.svc.ListLines(ctx, domain.ListLinesRequest{CaseID: c.ID, VendorID: vendorID + 1})
	assert.ErrorIs(t, err, reconerr.ErrNotFound)

	_, err = e.svc.GetSummary(ctx, c.ID, 0)
	assert.ErrorIs(t, err, reconerr.ErrValidation)
}

func TestListStatementsPaginates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		c := e.Case(t, vendorID)
		e.Line(t, c, testutil.LineSpec{Amount: "5.00"})
		ids = append(ids, c.ID)
		e.Clock.Advance(time.Minute)
	}
	e.Case(t, vendorID+1)

	first, err := e.svc.ListStatements(ctx, domain.ListStatementsRequest{VendorID: vendorID})
	require.NoError(t, err)
	require.Len(t, first.Statements, 3)
	assert.False(t, first.HasMore)

	page, err := e.svc.ListStatements(ctx, domain.ListStatementsRequest{
		VendorID:   vendorID,
		Pagination: paginationOf("", 2),
	})
	require.NoError(t, err)
	require.Len(t, page.Statements, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Statements[0].Case.ID)
	assert.Equal(t, ids[1], page.Statements[1].Case.ID)
	assert.Equal(t, 1, page.Statements[0].Summary.TotalLines)
	assert.False(t, page.Statements[0].Reconciled)

	next, err := e.svc.ListStatements(ctx, domain.ListStatementsRequest{
		VendorID:   vendorID,
		Pagination: paginationOf(page.NextPageToken, 2),
	})
	require.NoError(t, err)
	require.Len(t, next.Statements, 1)
	assert.Equal(t, ids[0], next.Statements[0].Case.ID)
	assert.False(t, next.HasMore)

	_, err = e.svc.ListStatements(ctx, domain.ListStatementsRequest{VendorID: vendorID, Pagination: paginationOf("%%%", 2)})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
