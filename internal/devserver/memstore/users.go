package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/models"
)

// UserRepo keeps users in memory
type UserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]models.User)}
}

// CreateUser returns apperrors.ErrUserAlreadyExists if email or username is taken
func (r *UserRepo) CreateUser(_ context.Context, username string, email string, hashedPassword string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) || u.Username == username {
			return models.User{}, fmt.Errorf("repo error: %w", apperrors.ErrUserAlreadyExists)
		}
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	}
	return user, nil
}

func (r *UserRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
}

// ListUsers returns users ordered by creation time
func (r *UserRepo) ListUsers(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b models.User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return users, nil
}
