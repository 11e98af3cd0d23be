package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
)

// User carries only what settlement needs: identity, role, and where the
// seller side of a payout lands. PayoutDestination stays nil until the seller
// finishes gateway onboarding.
type User struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username          string         `gorm:"column:username;uniqueIndex;not null"`
	Email             string         `gorm:"column:email;uniqueIndex;not null"`
	Role              enums.UserRole `gorm:"column:role;type:user_role;not null;default:'member'"`
	VerifiedEmail     bool           `gorm:"column:verified_email;not null;default:false"`
	PayoutDestination *string        `gorm:"column:payout_destination"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPayoutDestination reports whether payouts for this user can be released.
func (u *User) HasPayoutDestination() bool {
	return u.PayoutDestination != nil && *u.PayoutDestination != ""
}
