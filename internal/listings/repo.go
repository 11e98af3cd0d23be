// Package listings is the inventory boundary of settlement: availability and
// quantity are the contract, catalog content lives elsewhere.
package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reluxmarket/relux-backend/pkg/db/models"
	apperrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/enums"
)

// Repository exposes persistence helpers for listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkSold(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID, quantity int) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a listings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// MarkSold takes the listing off-market once a purchase is confirmed.
func (r *repositoryImpl) MarkSold(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, enums.ListingStatusActive).
		Updates(map[string]any{
			"status":   enums.ListingStatusSold,
			"quantity": 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "listing is no longer active")
	}
	return nil
}

// Restore puts a listing back on market after a cancelled order.
func (r *repositoryImpl) Restore(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":   enums.ListingStatusActive,
			"quantity": quantity,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	return nil
}
