package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/types"
)

// OrderItem is the price snapshot of a listing at purchase time. The
// snapshot column is immutable even if the listing is edited or deleted.
type OrderItem struct {
	ID             uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID     `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID      uuid.UUID     `gorm:"column:listing_id;type:uuid;not null"`
	Quantity       int           `gorm:"column:quantity;not null;default:1"`
	UnitPriceCents int64         `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64         `gorm:"column:total_cents;not null"`
	ItemSnapshot   types.JSONMap `gorm:"column:item_snapshot;type:jsonb;serializer:json"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
}
