package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"teklif/internal/types"
)

// OfferModel maps to the 'offers' table.
type OfferModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	RequestID    string         `gorm:"column:request_id;index"`
	Provider     string         `gorm:"column:provider"`
	Branch       string         `gorm:"column:branch"`
	CustomerRef  string         `gorm:"column:customer_ref"`
	Price        string         `gorm:"column:price"`
	Currency     string         `gorm:"column:currency"`
	QuoteNumber  string         `gorm:"column:quote_number"`
	Status       string         `gorm:"column:status"`
	ErrorMessage string         `gorm:"column:error_message"`
	RawPayload   datatypes.JSON `gorm:"column:raw_payload"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
}

func (OfferModel) TableName() string { return "offers" }

// FromOffer converts a canonical offer into its persistence row.
func FromOffer(requestID string, offer types.Offer) *OfferModel {
	m := &OfferModel{
		RequestID:    requestID,
		Provider:     string(offer.Provider),
		Branch:       string(offer.Branch),
		CustomerRef:  offer.CustomerRef,
		Currency:     offer.Currency,
		QuoteNumber:  offer.QuoteNumber,
		Status:       string(offer.Status),
		ErrorMessage: offer.ErrorMessage,
		CreatedAt:    time.Now().UTC(),
	}
	if offer.Price != nil {
		m.Price = offer.Price.String()
	}
	if len(offer.RawPayload) > 0 {
		if raw, err := json.Marshal(offer.RawPayload); err == nil {
			m.RawPayload = raw
		}
	}
	return m
}
