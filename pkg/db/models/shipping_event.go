package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// ShippingEvent records a carrier or counterparty tracking milestone.
type ShippingEvent struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	EventType   enums.ShippingEventType `gorm:"column:event_type;type:shipping_event_type;not null"`
	Description string                  `gorm:"column:description;not null"`
	Location    *string                 `gorm:"column:location"`
	CarrierData types.JSONMap           `gorm:"column:carrier_data;type:jsonb;serializer:json"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
