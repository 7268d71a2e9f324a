package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/models"
)

type RefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return &RefreshTokenRepo{tokens: make(map[string]models.RefreshToken)}
}

func (r *RefreshTokenRepo) Save(_ context.Context, token models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token.Token] = token
	return nil
}

// GetAndMarkUsed returns the token and marks it used in one step.
// A token that is used already is returned with apperrors.ErrRefreshTokenIsUsed
func (r *RefreshTokenRepo) GetAndMarkUsed(_ context.Context, tokenString string) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenString]
	switch {
	case !ok:
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case token.Used():
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	}

	now := time.Now()
	token.UsedAt = &now
	r.tokens[tokenString] = token
	return token, nil
}

// DeleteExpired removes tokens expired before now and returns how many were removed
func (r *RefreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, token := range r.tokens {
		if token.Expired(now) {
			delete(r.tokens, key)
			removed++
		}
	}
	return removed, nil
}
