package baas

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token fields the client cares about.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without checking its signature. The
// backend verifies tokens; the client only needs expiry and subject.
func ParseClaims(token string) (Claims, error) {
	var ac accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &ac); err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}
	c := Claims{Subject: ac.Subject, Email: ac.Email, Role: ac.Role}
	if ac.ExpiresAt != nil {
		c.ExpiresAt = ac.ExpiresAt.Time.UTC()
	}
	return c, nil
}
