package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/types"
)

// AdminAuditLog is an append-only record of privileged actions. One row per
// affected entity, written in the same transaction as the action itself.
type AdminAuditLog struct {
	ID         uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AdminID    uuid.UUID     `gorm:"column:admin_id;type:uuid;not null;index"`
	Action     string        `gorm:"column:action;not null"`
	TargetType string        `gorm:"column:target_type;not null"`
	TargetID   uuid.UUID     `gorm:"column:target_id;type:uuid;not null;index"`
	Details    types.JSONMap `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
}
