package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteResult_CloneMarshalsEmptyCollections(t *testing.T) {
	// A freshly created Running result has no outcomes yet; readers always
	// see Clone output, and clients must get [] rather than null.
	r := QuoteResult{RequestID: "req-1", Status: StatusRunning, CreatedAt: time.Now()}

	body, err := json.Marshal(r.Clone())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"offers":[]`)
	assert.Contains(t, string(body), `"failed_providers":[]`)
}

func TestQuoteResult_CloneIsIndependent(t *testing.T) {
	done := time.Now()
	r := QuoteResult{
		RequestID: "req-2",
		Status:    StatusPartiallyFailed,
		Offers: []Offer{
			{Provider: "sompo", Status: OfferCompleted},
		},
		FailedProviders: []FailedProvider{
			{Provider: "koru", Reason: "ResultTimeout"},
		},
		CreatedAt:   time.Now(),
		CompletedAt: &done,
	}

	snap := r.Clone()
	snap.Offers[0].Provider = "changed"
	snap.FailedProviders[0].Reason = "changed"
	*snap.CompletedAt = snap.CompletedAt.Add(time.Hour)

	assert.Equal(t, ProviderID("sompo"), r.Offers[0].Provider)
	assert.Equal(t, "ResultTimeout", r.FailedProviders[0].Reason)
	assert.Equal(t, done, *r.CompletedAt)
}

func TestQuoteResult_Terminal(t *testing.T) {
	for status, terminal := range map[RequestStatus]bool{
		StatusRunning:         false,
		StatusCompleted:       true,
		StatusPartiallyFailed: true,
		StatusFailed:          true,
	} {
		r := QuoteResult{Status: status}
		assert.Equal(t, terminal, r.Terminal(), string(status))
	}
}
