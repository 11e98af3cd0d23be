package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Transaction is the financial record of one payment attempt. The human
// order reference doubles as the token stored in gateway metadata; it lives
// in an indexed unique column while the row keeps a surrogate key.
// AmountCents is the item plus shipping subtotal and always equals
// SellerPayoutCents; the buyer's charge is AmountCents + BuyerFeeCents.
type Transaction struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderReference      string                  `gorm:"column:order_reference;not null;uniqueIndex"`
	ListingID           uuid.UUID               `gorm:"column:listing_id;type:uuid;not null;index"`
	BuyerID             uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	AmountCents         int64                   `gorm:"column:amount_cents;not null"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status              enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	PaymentMethod       enums.PaymentMethod     `gorm:"column:payment_method;type:payment_method;not null;default:'stripe'"`
	GatewayPaymentRef   string                  `gorm:"column:gateway_payment_ref;not null"`
	GatewayChargeRef    *string                 `gorm:"column:gateway_charge_ref"`
	BuyerFeeCents       int64                   `gorm:"column:buyer_fee_cents;not null"`
	BuyerFeeBasisPoints int64                   `gorm:"column:buyer_fee_basis_points;not null"`
	PlatformFeeCents    int64                   `gorm:"column:platform_fee_cents;not null"`
	SellerPayoutCents   int64                   `gorm:"column:seller_payout_cents;not null"`
	SellerPayoutStatus  enums.PayoutStatus      `gorm:"column:seller_payout_status;type:payout_status;not null;default:'pending'"`
	PayoutEligibleAt    *time.Time              `gorm:"column:payout_eligible_at"`
	RefundReason        *string                 `gorm:"column:refund_reason"`
	ShippingAddress     types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
