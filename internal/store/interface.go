// Package store persists normalized offers for audit. The orchestrator
// treats every failure here as non-fatal: the in-memory aggregate is the
// status source of truth, the database is a trail.
package store

import (
	"context"

	"teklif/internal/store/model"
)

// OfferRepository handles offer persistence.
type OfferRepository interface {
	Save(ctx context.Context, offer *model.OfferModel) error
	ListByRequest(ctx context.Context, requestID string) ([]model.OfferModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.OfferModel, error)
}

// Store is the entry point for database access.
type Store interface {
	Offers() OfferRepository
	Close() error
}
