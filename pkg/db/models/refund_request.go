package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
)

// RefundRequest is the negotiation record for reversing a transaction after
// fulfillment began. At most one pending request exists per order.
type RefundRequest struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID           uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID          uuid.UUID                 `gorm:"column:seller_id;type:uuid;not null"`
	TransactionID     uuid.UUID                 `gorm:"column:transaction_id;type:uuid;not null"`
	AmountCents       int64                     `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency            `gorm:"column:currency;type:text;not null;default:'USD'"`
	Reason            string                    `gorm:"column:reason;not null"`
	RefundType        enums.RefundType          `gorm:"column:refund_type;type:refund_type;not null;default:'full'"`
	Status            enums.RefundRequestStatus `gorm:"column:status;type:refund_request_status;not null;default:'pending'"`
	SellerResponse    *string                   `gorm:"column:seller_response"`
	SellerRespondedAt *time.Time                `gorm:"column:seller_responded_at"`
	GatewayRefundRef  *string                   `gorm:"column:gateway_refund_ref"`
	FailureReason     *string                   `gorm:"column:failure_reason"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
