package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/soarecon/internal/statement/domain"
	"github.com/smallbiznis/soarecon/internal/testutil"
)

func TestUpdateLineStatusComparesAndSets(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	c := f.Case(t, 7)
	line := f.Line(t, c, testutil.LineSpec{InvoiceNumber: "INV-1", Amount: "120.50", Date: "2024-02-10"})

	ok, err := r.UpdateLineStatus(ctx, f.DB, line.ID, domain.LineStatusExtracted, domain.LineStatusMatched, f.Clock.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UpdateLineStatus(ctx, f.DB, line.ID, domain.LineStatusExtracted, domain.LineStatusMatched, f.Clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindLineForUpdate(ctx, f.DB, line.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.LineStatusMatched, got.Status)
	assert.True(t, decimal.RequireFromString("120.50").Equal(got.Amount))
	require.NotNil(t, got.InvoiceDate)
	assert.Equal(t, "2024-02-10", got.InvoiceDate.Format("2006-01-02"))
}

func TestListLinesFilters(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	c := f.Case(t, 7)
	other := f.Case(t, 8)
	a := f.Line(t, c, testutil.LineSpec{Amount: "10"})
	b := f.Line(t, c, testutil.LineSpec{Amount: "20"})
	f.Line(t, other, testutil.LineSpec{Amount: "30"})

	_, err := r.UpdateLineStatus(ctx, f.DB, b.ID, domain.LineStatusExtracted, domain.LineStatusDisputed, f.Clock.Now())
	require.NoError(t, err)

	all, err := r.ListLines(ctx, f.DB, domain.LineFilter{CaseID: c.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	extracted, err := r.ListLines(ctx, f.DB, domain.LineFilter{CaseID: c.ID, Status: domain.LineStatusExtracted})
	require.NoError(t, err)
	require.Len(t, extracted, 1)
	assert.Equal(t, a.ID, extracted[0].ID)

	wrongVendor, err := r.ListLines(ctx, f.DB, domain.LineFilter{CaseID: c.ID, VendorID: 8})
	require.NoError(t, err)
	assert.Empty(t, wrongVendor)
}

func TestLedgerRecordsAreVendorScoped(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	mine := f.Ledger(t, 7, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "99.99"})
	f.Ledger(t, 8, testutil.LedgerSpec{InvoiceNumber: "INV-1", TotalAmount: "99.99"})

	records, err := r.ListLedgerRecords(ctx, f.DB, 7)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mine.ID, records[0].ID)

	missing, err := r.FindLedgerRecord(ctx, f.DB, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListCandidatesWindow(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	far := f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "1012.00"})
	near := f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "999.00"})
	tieLow := f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "995.00"})
	tieHigh := f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "1005.00"})
	f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "1100.00"})
	f.Ledger(t, 7, testutil.LedgerSpec{TotalAmount: "1000.00", Currency: "EUR"})
	f.Ledger(t, 8, testutil.LedgerSpec{TotalAmount: "1000.00"})

	low := decimal.RequireFromString("980")
	high := decimal.RequireFromString("1020")
	window := domain.CandidateWindow{
		VendorID:   7,
		Currency:   " usd ",
		Amount:     decimal.RequireFromString("1000"),
		AmountLow:  &low,
		AmountHigh: &high,
	}

	records, err := r.ListCandidates(ctx, f.DB, window)
	require.NoError(t, err)
	ids := make([]any, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []any{near.ID, tieLow.ID, tieHigh.ID, far.ID}, ids)

	window.Limit = 2
	records, err = r.ListCandidates(ctx, f.DB, window)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, near.ID, records[0].ID)
	assert.Equal(t, tieLow.ID, records[1].ID)

	window.AmountLow, window.AmountHigh, window.Limit = nil, nil, 0
	records, err = r.ListCandidates(ctx, f.DB, window)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}
