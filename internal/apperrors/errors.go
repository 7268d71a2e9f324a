package apperrors

import (
	"errors"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrUnexpectedStatus   = errors.New("unexpected status code")

	ErrInvalidSubject       = errors.New("invalid subject")
	ErrNotificationNotFound = errors.New("notification not found")

	ErrStoreNotMigrated = errors.New("credential store is not migrated")
	ErrUnsupportedStore = errors.New("unsupported credential store")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
)
