package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Order is the fulfillment record derived from a captured transaction.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber        string                `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID            uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID           uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	TransactionID      uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null;index"`
	Status             enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'"`
	ShippingAddress    types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingMethod     string                `gorm:"column:shipping_method;not null;default:'standard'"`
	ShippingCarrier    *string               `gorm:"column:shipping_carrier"`
	TrackingNumber     *string               `gorm:"column:tracking_number"`
	SubtotalCents      int64                 `gorm:"column:subtotal_cents;not null"`
	ShippingCents      int64                 `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents           int64                 `gorm:"column:tax_cents;not null;default:0"`
	TotalCents         int64                 `gorm:"column:total_cents;not null"`
	CancellationReason *string               `gorm:"column:cancellation_reason"`
	ConfirmedAt        *time.Time            `gorm:"column:confirmed_at"`
	ShippedAt          *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt        *time.Time            `gorm:"column:delivered_at"`
	CompletedAt        *time.Time            `gorm:"column:completed_at"`
	CancelledAt        *time.Time            `gorm:"column:cancelled_at"`
	Items              []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory      []OrderStatusHistory  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingEvents     []ShippingEvent       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
