package sqlite

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"teklif/internal/store/model"
)

// offerRepository implements store.OfferRepository.
type offerRepository struct {
	db *gorm.DB
}

func NewOfferRepo(db *gorm.DB) *offerRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Save(ctx context.Context, offer *model.OfferModel) error {
	if offer == nil {
		return errors.New("offer cannot be nil")
	}
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *offerRepository) ListByRequest(ctx context.Context, requestID string) ([]model.OfferModel, error) {
	var offers []model.OfferModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *offerRepository) ListRecent(ctx context.Context, limit int) ([]model.OfferModel, error) {
	var offers []model.OfferModel
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}
