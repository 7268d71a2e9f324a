package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/devserver/memstore"
	"github.com/nkiryanov/taskbell/internal/models"
)

func TestTokenManager(t *testing.T) {
	testUser := models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"}

	newManager := func(t *testing.T, accessTTL time.Duration, refreshTTL time.Duration) *TokenManager {
		m, err := New(Config{SecretKey: "test-secret-key", AccessTTL: accessTTL, RefreshTTL: refreshTTL}, memstore.NewRefreshTokenRepo())
		require.NoError(t, err, "token manager should be created without errors")
		return m
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"}, nil)
		require.NoError(t, err)

		require.Equal(t, defaultAccessTokenTTL, m.accessTTL)
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL)
		require.Equal(t, defaultSigningMethod, m.alg.Alg())
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := New(Config{}, nil)

		require.Error(t, err)
	})

	t.Run("GeneratePair", func(t *testing.T) {
		m := newManager(t, 15*time.Minute, 24*time.Hour)

		pair, err := m.GeneratePair(t.Context(), testUser)

		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.Access.ExpiresAt, time.Second)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.Refresh.ExpiresAt, time.Second)
		assert.Len(t, pair.Refresh.Value, 32, "16 random bytes hex encoded")

		claims := &AccessTokenClaims{}
		_, _, err = jwt.NewParser().ParseUnverified(pair.Access.Value, claims)
		require.NoError(t, err)
		require.Equal(t, testUser.ID, claims.UserID)
		require.Equal(t, testUser.ID.String(), claims.Subject)
	})

	t.Run("ParseAccess", func(t *testing.T) {
		m := newManager(t, 15*time.Minute, 24*time.Hour)
		pair, err := m.GeneratePair(t.Context(), testUser)
		require.NoError(t, err)

		userID, err := m.ParseAccess(t.Context(), pair.Access.Value)
		require.NoError(t, err)
		require.Equal(t, testUser.ID, userID)

		_, err = m.ParseAccess(t.Context(), pair.Access.Value+"x")
		require.Error(t, err, "tampered token is rejected")
	})

	t.Run("ParseAccess expired", func(t *testing.T) {
		m := newManager(t, -time.Minute, 24*time.Hour)
		pair, err := m.GeneratePair(t.Context(), testUser)
		require.NoError(t, err)

		_, err = m.ParseAccess(t.Context(), pair.Access.Value)

		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("UseRefresh", func(t *testing.T) {
		m := newManager(t, 15*time.Minute, 24*time.Hour)
		pair, err := m.GeneratePair(t.Context(), testUser)
		require.NoError(t, err)

		token, err := m.UseRefresh(t.Context(), pair.Refresh.Value)
		require.NoError(t, err)
		require.Equal(t, testUser.ID, token.UserID)

		_, err = m.UseRefresh(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
	})

	t.Run("UseRefresh expired and cleanup", func(t *testing.T) {
		m := newManager(t, 15*time.Minute, -time.Hour)
		pair, err := m.GeneratePair(t.Context(), testUser)
		require.NoError(t, err)

		_, err = m.UseRefresh(t.Context(), pair.Refresh.Value)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)

		removed, err := m.Cleanup(t.Context())
		require.NoError(t, err)
		require.Equal(t, 1, removed)
	})
}
