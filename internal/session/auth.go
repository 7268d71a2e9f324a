package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/taskbell/internal/models"
)

type authResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       models.ID `json:"userId"`
}

// Login authenticates with email and password and stores the new session
func (g *Guard) Login(ctx context.Context, email string, password string) (models.Credentials, error) {
	type LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	return g.authenticate(ctx, g.cfg.LoginPath, LoginRequest{Email: email, Password: password})
}

// Register creates an account and stores the new session
func (g *Guard) Register(ctx context.Context, username string, email string, password string) (models.Credentials, error) {
	type RegisterRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	return g.authenticate(ctx, g.cfg.RegisterPath, RegisterRequest{Username: username, Email: email, Password: password})
}

func (g *Guard) authenticate(ctx context.Context, path string, in any) (models.Credentials, error) {
	var resp authResponse
	if err := g.post(ctx, path, in, &resp); err != nil {
		return models.Credentials{}, err
	}

	creds := models.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.UserID.String(),
	}
	if !creds.Authenticated() || creds.UserID == "" {
		return models.Credentials{}, errors.New("auth response misses a token or user id")
	}

	if err := g.store.Set(ctx, creds.Values()); err != nil {
		return models.Credentials{}, fmt.Errorf("store credentials: %w", err)
	}

	g.logger.Info("Signed in", "subject", creds.UserID)
	g.notify(creds.UserID)
	return creds, nil
}

// Logout forgets the session
func (g *Guard) Logout(ctx context.Context) error {
	if err := g.store.Delete(ctx, models.CredentialKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	g.logger.Info("Signed out")
	g.notify("")
	return nil
}

// AccessExpiry reads 'exp' of the access token without verifying its signature.
// ok is false when the session is anonymous or the token is not a JWT with 'exp'
func (g *Guard) AccessExpiry(ctx context.Context) (expiresAt time.Time, ok bool, err error) {
	creds, err := g.Credentials(ctx)
	if err != nil || !creds.Authenticated() {
		return time.Time{}, false, err
	}

	token, _, err := jwt.NewParser().ParseUnverified(creds.AccessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false, nil
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false, nil
	}
	return exp.Time, true, nil
}
