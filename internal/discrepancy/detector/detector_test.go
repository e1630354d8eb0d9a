package detector

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/discrepancy/domain"
	matchingdomain "github.com/smallbiznis/soarecon/internal/matching/domain"
	statementdomain "github.com/smallbiznis/soarecon/internal/statement/domain"
)

const caseID snowflake.ID = 10

func line(id snowflake.ID, amount string, status statementdomain.LineStatus) *statementdomain.Line {
	return &statementdomain.Line{
		ID:       id,
		CaseID:   caseID,
		VendorID: 500,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Status:   status,
	}
}

func record(id snowflake.ID, total string) *statementdomain.LedgerRecord {
	return &statementdomain.LedgerRecord{ID: id, VendorID: 500, TotalAmount: decimal.RequireFromString(total), Currency: "USD"}
}

func match(lineID, invoiceID snowflake.ID, status matchingdomain.MatchStatus) *matchingdomain.Match {
	return &matchingdomain.Match{SOAItemID: lineID, InvoiceID: invoiceID, Status: status}
}

func newDetector() *Detector {
	return New(config.StaticMatchingConfig(config.DefaultMatchingConfig()))
}

// apply turns a result into the open set a repository would hold afterwards.
func apply(open []*domain.Discrepancy, res Result) []*domain.Discrepancy {
	byKey := map[domain.Key]int{}
	for i, d := range open {
		byKey[d.Key()] = i
	}
	for _, u := range res.Update {
		open[byKey[u.Key()]] = u
	}
	return append(open, res.Create...)
}

func TestAmountMismatchSeverity(t *testing.T) {
	d := newDetector()
	res := d.Detect(Input{CaseID: caseID, Lines: []LineState{
		{Line: line(1, "1000.00", statementdomain.LineStatusMatched), ActiveMatch: match(1, 100, matchingdomain.MatchStatusConfirmed), Invoice: record(100, "950.00"), CandidateCount: 1},
		{Line: line(2, "1000.00", statementdomain.LineStatusMatched), ActiveMatch: match(2, 101, matchingdomain.MatchStatusConfirmed), Invoice: record(101, "850.00"), CandidateCount: 1},
		{Line: line(3, "1000.00", statementdomain.LineStatusMatched), ActiveMatch: match(3, 102, matchingdomain.MatchStatusConfirmed), Invoice: record(102, "999.995"), CandidateCount: 1},
		{Line: line(4, "1000.00", statementdomain.LineStatusMatched), ActiveMatch: match(4, 103, matchingdomain.MatchStatusPending), Invoice: record(103, "500.00"), CandidateCount: 1},
	}})

	require.Len(t, res.Create, 2)
	assert.Equal(t, domain.TypeAmountMismatch, res.Create[0].Type)
	assert.Equal(t, domain.SeverityMedium, res.Create[0].Severity)
	assert.True(t, decimal.RequireFromString("50").Equal(res.Create[0].AmountDelta))
	assert.Equal(t, snowflake.ID(1), *res.Create[0].SOAItemID)

	assert.Equal(t, domain.SeverityHigh, res.Create[1].Severity)
	assert.True(t, decimal.RequireFromString("150").Equal(res.Create[1].AmountDelta))
}

func TestMissingInvoiceOnlyWithZeroCandidates(t *testing.T) {
	d := newDetector()
	res := d.Detect(Input{CaseID: caseID, Lines: []LineState{
		{Line: line(1, "200.00", statementdomain.LineStatusExtracted), CandidateCount: 0},
		{Line: line(2, "200.00", statementdomain.LineStatusExtracted), CandidateCount: 3},
		{Line: line(3, "200.00", statementdomain.LineStatusDisputed), CandidateCount: 0},
	}})

	require.Len(t, res.Create, 1)
	f := res.Create[0]
	assert.Equal(t, domain.TypeMissingInvoice, f.Type)
	assert.Equal(t, domain.SeverityHigh, f.Severity)
	assert.Equal(t, snowflake.ID(1), *f.SOAItemID)
	assert.Equal(t, domain.StatusOpen, f.Status)
}

func TestDuplicateClaimReferencesEveryLine(t *testing.T) {
	d := newDetector()
	inv := record(100, "500.00")
	res := d.Detect(Input{CaseID: caseID, Lines: []LineState{
		{Line: line(7, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(7, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1},
		{Line: line(3, "480.00", statementdomain.LineStatusMatched), ActiveMatch: match(3, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1},
		{Line: line(9, "10.00", statementdomain.LineStatusMatched), ActiveMatch: match(9, 200, matchingdomain.MatchStatusPending), Invoice: record(200, "10.00"), CandidateCount: 1},
	}})

	require.Len(t, res.Create, 1)
	f := res.Create[0]
	assert.Equal(t, domain.TypeDuplicateClaim, f.Type)
	assert.Equal(t, domain.SeverityMedium, f.Severity)
	assert.Equal(t, snowflake.ID(3), *f.SOAItemID)
	assert.Equal(t, []snowflake.ID{7}, []snowflake.ID(f.RelatedItemIDs))
	assert.Equal(t, []snowflake.ID{3, 7}, f.LineIDs())
	assert.True(t, decimal.RequireFromString("480").Equal(f.AmountDelta))
}

func TestDetectIsIdempotent(t *testing.T) {
	d := newDetector()
	inv := record(100, "500.00")
	in := Input{CaseID: caseID, Lines: []LineState{
		{Line: line(1, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(1, 100, matchingdomain.MatchStatusConfirmed), Invoice: inv, CandidateCount: 1},
		{Line: line(2, "520.00", statementdomain.LineStatusMatched), ActiveMatch: match(2, 100, matchingdomain.MatchStatusConfirmed), Invoice: inv, CandidateCount: 1},
		{Line: line(3, "75.00", statementdomain.LineStatusExtracted)},
	}}

	first := d.Detect(in)
	require.Len(t, first.Create, 3)

	in.Open = apply(nil, first)
	second := d.Detect(in)
	assert.True(t, second.Empty())
}

func TestDetectUpdatesMovedDetails(t *testing.T) {
	d := newDetector()
	inv := record(100, "500.00")
	states := []LineState{
		{Line: line(1, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(1, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1},
		{Line: line(2, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(2, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1},
	}
	first := d.Detect(Input{CaseID: caseID, Lines: states})
	require.Len(t, first.Create, 1)
	open := apply(nil, first)

	states = append(states, LineState{Line: line(3, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(3, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1})
	second := d.Detect(Input{CaseID: caseID, Lines: states, Open: open})

	assert.Empty(t, second.Create)
	require.Len(t, second.Update, 1)
	assert.Equal(t, []snowflake.ID{2, 3}, []snowflake.ID(second.Update[0].RelatedItemIDs))
	assert.True(t, decimal.RequireFromString("1000").Equal(second.Update[0].AmountDelta))
}

func TestDuplicateClaimMovesAnchorInPlace(t *testing.T) {
	d := newDetector()
	inv := record(100, "500.00")
	claim := func(id snowflake.ID) LineState {
		return LineState{Line: line(id, "500.00", statementdomain.LineStatusMatched), ActiveMatch: match(id, 100, matchingdomain.MatchStatusPending), Invoice: inv, CandidateCount: 1}
	}

	first := d.Detect(Input{CaseID: caseID, Lines: []LineState{claim(2), claim(3)}})
	require.Len(t, first.Create, 1)
	assert.Equal(t, snowflake.ID(2), *first.Create[0].SOAItemID)
	first.Create[0].ID = 900
	open := apply(nil, first)

	second := d.Detect(Input{CaseID: caseID, Lines: []LineState{claim(1), claim(2), claim(3)}, Open: open})
	assert.Empty(t, second.Create)
	require.Len(t, second.Update, 1)
	u := second.Update[0]
	assert.Equal(t, snowflake.ID(900), u.ID)
	assert.Equal(t, snowflake.ID(1), *u.SOAItemID)
	assert.Equal(t, []snowflake.ID{2, 3}, []snowflake.ID(u.RelatedItemIDs))
	assert.True(t, decimal.RequireFromString("1000").Equal(u.AmountDelta))

	open = apply(open, second)
	require.Len(t, open, 1)
	assert.True(t, d.Detect(Input{CaseID: caseID, Lines: []LineState{claim(1), claim(2), claim(3)}, Open: open}).Empty())
}

func TestManualDiscrepancyIsLeftAlone(t *testing.T) {
	d := newDetector()
	item := snowflake.ID(1)
	manual := &domain.Discrepancy{
		ID:          900,
		SOAItemID:   &item,
		Type:        domain.TypeMissingInvoice,
		Severity:    domain.SeverityLow,
		Description: "vendor is sending a copy",
		AmountDelta: decimal.RequireFromString("3"),
		Status:      domain.StatusOpen,
		Origin:      domain.OriginManual,
	}

	res := d.Detect(Input{CaseID: caseID,
		Lines: []LineState{{Line: line(1, "10.00", statementdomain.LineStatusExtracted)}},
		Open:  []*domain.Discrepancy{manual},
	})
	assert.True(t, res.Empty())
	assert.Equal(t, domain.SeverityLow, manual.Severity)
	assert.Equal(t, "vendor is sending a copy", manual.Description)

	res = d.Detect(Input{CaseID: caseID,
		Lines: []LineState{{Line: line(2, "10.00", statementdomain.LineStatusExtracted)}},
		Open:  []*domain.Discrepancy{manual},
	})
	require.Len(t, res.Create, 1)
	assert.Equal(t, domain.OriginDetector, res.Create[0].Origin)
}

func TestResolvedDiscrepancyDoesNotSuppressNewFinding(t *testing.T) {
	d := newDetector()
	item := snowflake.ID(1)
	resolved := &domain.Discrepancy{SOAItemID: &item, Type: domain.TypeMissingInvoice, Status: domain.StatusResolved}

	res := d.Detect(Input{CaseID: caseID,
		Lines: []LineState{{Line: line(1, "10.00", statementdomain.LineStatusExtracted)}},
		Open:  []*domain.Discrepancy{resolved},
	})
	assert.Len(t, res.Create, 1)
}

func TestResolvedDiscrepancyWithSameDetailsIsSettled(t *testing.T) {
	d := newDetector()
	item, invoice := snowflake.ID(1), snowflake.ID(100)
	states := []LineState{
		{Line: line(1, "1000.00", statementdomain.LineStatusMatched), ActiveMatch: match(1, 100, matchingdomain.MatchStatusConfirmed), Invoice: record(100, "950.00"), CandidateCount: 1},
	}
	resolved := &domain.Discrepancy{
		SOAItemID:   &item,
		InvoiceID:   &invoice,
		Type:        domain.TypeAmountMismatch,
		AmountDelta: decimal.RequireFromString("50"),
		Status:      domain.StatusResolved,
	}

	res := d.Detect(Input{CaseID: caseID, Lines: states, Resolved: []*domain.Discrepancy{resolved}})
	assert.True(t, res.Empty())

	states[0].Invoice = record(100, "900.00")
	res = d.Detect(Input{CaseID: caseID, Lines: states, Resolved: []*domain.Discrepancy{resolved}})
	require.Len(t, res.Create, 1)
	assert.True(t, decimal.RequireFromString("100").Equal(res.Create[0].AmountDelta))
}
