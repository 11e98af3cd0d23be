package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/reluxmarket/relux-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Role          enums.UserRole
	VerifiedEmail bool
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID        uuid.UUID      `json:"user_id"`
	Role          enums.UserRole `json:"role"`
	VerifiedEmail bool           `json:"verified_email"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants admin privileges.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}
