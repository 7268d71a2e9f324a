package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/models"
)

const (
	accessHeaderName = "Authorization"
	accessAuthScheme = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (uuid.UUID, error)
}

type userRepo interface {
	CreateUser(ctx context.Context, username string, email string, hashedPassword string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type Config struct {
	// Hasher to use during registration or login, BcryptHasher if nil
	Hasher PasswordHasher
}

// Result of successful authentication
type Session struct {
	Pair models.TokenPair
	User models.User
}

type AuthService struct {
	hasher PasswordHasher
	tokens tokenManager
	users  userRepo
}

func NewService(cfg Config, tokens tokenManager, users userRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	return &AuthService{
		hasher: hasher,
		tokens: tokens,
		users:  users,
	}, nil
}

// Register user. Returns apperrors.ErrUserAlreadyExists if email or username is taken
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (Session, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.users.CreateUser(ctx, username, email, hash)
	if err != nil {
		return Session{}, err
	}

	return s.issue(ctx, user)
}

// Login user by email. Returns apperrors.ErrUserNotFound on unknown email or wrong password
func (s *AuthService) Login(ctx context.Context, email string, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return Session{}, apperrors.ErrUserNotFound
	}

	return s.issue(ctx, user)
}

// Refresh rotates the pair: the refresh token is single use
func (s *AuthService) Refresh(ctx context.Context, refresh string) (Session, error) {
	token, err := s.tokens.UseRefresh(ctx, refresh)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return Session{}, err
	}

	return s.issue(ctx, user)
}

// Auth returns user the request's bearer token belongs to
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := bearer(r)
	if err != nil {
		return models.User{}, err
	}

	userID, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) issue(ctx context.Context, user models.User) (Session, error) {
	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return Session{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return Session{Pair: pair, User: user}, nil
}

func bearer(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get(accessHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, accessAuthScheme) || token == "" {
		return "", errors.New("bearer token not found")
	}
	return token, nil
}
