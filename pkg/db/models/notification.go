package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/types"
)

// Notification is a queued message for a user, rendered from a template id
// plus payload. Delivery is best effort and never blocks the flow that
// produced it.
type Notification struct {
	ID         uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID     `gorm:"column:user_id;type:uuid;not null;index"`
	TemplateID string        `gorm:"column:template_id;not null"`
	Payload    types.JSONMap `gorm:"column:payload;type:jsonb;serializer:json"`
	ReadAt     *time.Time    `gorm:"column:read_at"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
}
