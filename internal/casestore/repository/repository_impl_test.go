package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/soarecon/internal/casestore/domain"
	"github.com/smallbiznis/soarecon/internal/testutil"
)

func TestListByVendorPagesNewestFirst(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	var seeded []*domain.Case
	for range 3 {
		seeded = append(seeded, f.Case(t, 7))
		f.Clock.Advance(time.Hour)
	}
	f.Case(t, 8)

	page, err := r.ListByVendor(ctx, f.DB, 7, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 3, "limit+1 rows signal another page")
	assert.Equal(t, seeded[2].ID, page[0].ID)
	assert.Equal(t, seeded[1].ID, page[1].ID)

	cursor := &domain.CaseCursor{ID: page[1].ID, CreatedAt: page[1].CreatedAt}
	rest, err := r.ListByVendor(ctx, f.DB, 7, cursor, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, seeded[0].ID, rest[0].ID)
}

func TestSetCaseStatus(t *testing.T) {
	f := testutil.NewFixture(t)
	r := Provide()
	ctx := context.Background()

	c := f.Case(t, 7)
	require.NoError(t, r.SetCaseStatus(ctx, f.DB, c.ID, domain.CaseStatusClosed, f.Clock.Now()))

	got, err := r.GetCase(ctx, f.DB, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsClosed())

	err = r.SetCaseStatus(ctx, f.DB, 12345, domain.CaseStatusClosed, f.Clock.Now())
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)

	missing, err := r.GetCase(ctx, f.DB, 12345)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
