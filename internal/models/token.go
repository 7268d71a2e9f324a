package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the devserver's record of a refresh token it handed out.
// Tokens are single use: UsedAt is set on the first exchange.
type RefreshToken struct {
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

func (t RefreshToken) Used() bool {
	return t.UsedAt != nil
}

func (t RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair is what login, register and refresh answer with
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
