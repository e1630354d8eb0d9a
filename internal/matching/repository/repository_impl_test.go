package repository

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/smallbiznis/soarecon/internal/matching/domain"
	"github.com/smallbiznis/soarecon/internal/testutil"
	pkgdb "github.com/smallbiznis/soarecon/pkg/db"
)

func newMatch(f *testutil.Fixture, caseID, lineID, invoiceID snowflake.ID) *domain.Match {
	now := f.Clock.Now()
	return &domain.Match{
		ID:         f.Node.Generate(),
		CaseID:     caseID,
		SOAItemID:  lineID,
		InvoiceID:  invoiceID,
		MatchType:  domain.MatchTypeFuzzy,
		Confidence: 0.8,
		MatchScore: 80,
		Criteria:   datatypes.NewJSONType(domain.MatchCriteria{Amount: true}),
		Status:     domain.MatchStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInsertRejectsSecondActiveMatch(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	first := newMatch(f, 1, 10, 100)
	require.NoError(t, r.Insert(ctx, f.DB, first))

	err := r.Insert(ctx, f.DB, newMatch(f, 1, 10, 101))
	require.Error(t, err)
	assert.True(t, pkgdb.IsDuplicateKeyErr(err))

	ok, err := r.Reject(ctx, f.DB, first.ID, "reviewer", "wrong invoice", f.Clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	second := newMatch(f, 1, 10, 101)
	require.NoError(t, r.Insert(ctx, f.DB, second))

	active, err := r.FindActiveByLine(ctx, f.DB, second.SOAItemID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	history, err := r.ListByLine(ctx, f.DB, second.SOAItemID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestConfirmOnlyMovesPending(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	m := newMatch(f, 1, 20, 200)
	require.NoError(t, r.Insert(ctx, f.DB, m))

	ok, err := r.Confirm(ctx, f.DB, m.ID, "reviewer", f.Clock.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Confirm(ctx, f.DB, m.ID, "reviewer", f.Clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Reject(ctx, f.DB, m.ID, "reviewer", "late", f.Clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindByID(ctx, f.DB, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedBy)
	assert.Equal(t, "reviewer", *got.ConfirmedBy)
	assert.True(t, got.Criteria.Data().Amount)
}

func TestFindMissingMatchIsNil(t *testing.T) {
	f := testutil.NewFixture(t)
	got, err := Provide().FindByID(context.Background(), f.DB, 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}
