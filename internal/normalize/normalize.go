// Package normalize maps provider-shaped session outcomes into the
// canonical Offer. Normalization is pure and total: every SessionOutcome
// yields an Offer, never a panic or an error return.
package normalize

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"teklif/internal/driver"
	"teklif/internal/types"
)

const defaultCurrency = "TRY"

// Normalize builds the canonical Offer for one session outcome. Failed
// outcomes pass their captured error through verbatim; completed outcomes
// get their price extracted per the provider's declared shape.
func Normalize(outcome types.SessionOutcome, branch types.Branch, customerRef string, shape driver.ResultShape) types.Offer {
	offer := types.Offer{
		Provider:    outcome.Provider,
		Branch:      branch,
		CustomerRef: customerRef,
		Currency:    shape.Currency,
		RawPayload:  outcome.RawPayload,
		Status:      types.OfferCompleted,
	}
	if offer.Currency == "" {
		offer.Currency = defaultCurrency
	}

	if outcome.State != types.OutcomeCompleted {
		offer.Status = types.OfferFailed
		offer.ErrorMessage = outcome.Err.String()
		return offer
	}

	doc := payloadJSON(outcome.RawPayload)

	if shape.QuoteNumberPath != "" {
		offer.QuoteNumber = gjson.Get(doc, shape.QuoteNumberPath).String()
	}

	rawPrice := gjson.Get(doc, shape.PricePath).String()
	price, err := ParsePrice(rawPrice)
	if err != nil {
		// A malformed price must never silently become zero.
		offer.Status = types.OfferFailed
		offer.ErrorMessage = "price parse failed"
		return offer
	}
	offer.Price = &price
	return offer
}

// payloadJSON renders the raw payload for gjson path lookup. A payload
// that cannot marshal degrades to an empty document, which then fails the
// price parse with an explicit error flag.
func payloadJSON(payload map[string]any) string {
	if len(payload) == 0 {
		return "{}"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
