package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teklif/internal/store/model"
	"teklif/internal/types"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "offers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOfferRepository_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	price := decimal.RequireFromString("2500.00")
	offer := types.Offer{
		Provider:    "sompo",
		Branch:      types.BranchTrafik,
		CustomerRef: "12345678901",
		Price:       &price,
		Currency:    "TRY",
		QuoteNumber: "TRF-1",
		RawPayload:  map[string]any{"price": "2.500,00 TL"},
		Status:      types.OfferCompleted,
	}
	require.NoError(t, s.Offers().Save(ctx, model.FromOffer("req-1", offer)))

	failed := types.Offer{
		Provider:     "koru",
		Branch:       types.BranchTrafik,
		Status:       types.OfferFailed,
		Currency:     "TRY",
		ErrorMessage: "ResultTimeout@AwaitResult: result did not appear within 30s",
	}
	require.NoError(t, s.Offers().Save(ctx, model.FromOffer("req-1", failed)))

	rows, err := s.Offers().ListByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "sompo", rows[0].Provider)
	assert.Equal(t, "2500", decimal.RequireFromString(rows[0].Price).String())
	assert.NotEmpty(t, rows[0].RawPayload)
	assert.Equal(t, "Failed", rows[1].Status)

	none, err := s.Offers().ListByRequest(ctx, "req-404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOfferRepository_ListRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		offer := types.Offer{Provider: "sompo", Branch: types.BranchKasko, Status: types.OfferFailed, Currency: "TRY"}
		require.NoError(t, s.Offers().Save(ctx, model.FromOffer("req-n", offer)))
	}
	rows, err := s.Offers().ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestOfferRepository_NilOffer(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Offers().Save(context.Background(), nil))
}
