package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
)

// PayoutDestinationNotSet marks a payout whose seller has not configured a
// destination yet. Settlement is deferred, not blocked.
const PayoutDestinationNotSet = "NOT_SET"

// Payout is the scheduled settlement of a seller's proceeds. The intent flow
// creates a placeholder (no order, no schedule); delivery confirmation
// supersedes it with the real payout carrying scheduled_for.
type Payout struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	OrderID       *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status        enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	Destination   string             `gorm:"column:destination;not null;default:'NOT_SET'"`
	Description   *string            `gorm:"column:description"`
	ScheduledFor  *time.Time         `gorm:"column:scheduled_for"`
	ProcessedBy   *uuid.UUID         `gorm:"column:processed_by;type:uuid"`
	ProcessedAt   *time.Time         `gorm:"column:processed_at"`
	AdminNotes    *string            `gorm:"column:admin_notes"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
