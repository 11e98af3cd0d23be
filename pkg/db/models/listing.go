package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Listing is the settlement-side view of a marketplace listing: price,
// availability and the fields worth snapshotting onto order items. Catalog
// content beyond that is owned elsewhere.
type Listing struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title         string              `gorm:"column:title;not null"`
	Description   *string             `gorm:"column:description"`
	Brand         *string             `gorm:"column:brand"`
	Size          *string             `gorm:"column:size"`
	Condition     *string             `gorm:"column:condition"`
	Images        types.JSONMap       `gorm:"column:images;type:jsonb;serializer:json"`
	PriceCents    int64               `gorm:"column:price_cents;not null"`
	ShippingCents int64               `gorm:"column:shipping_cents;not null;default:0"`
	Quantity      int                 `gorm:"column:quantity;not null;default:1"`
	Status        enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'active'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
