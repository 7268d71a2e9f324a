package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/models"
)

// Refresh exchanges the stored refresh token for a new pair and stores it.
// Nothing is written when the exchange fails.
func (g *Guard) Refresh(ctx context.Context) (models.Credentials, error) {
	creds, err := g.Credentials(ctx)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	if creds.RefreshToken == "" {
		return models.Credentials{}, apperrors.ErrNoRefreshToken
	}

	return g.refresh(ctx, creds)
}

// refresh coalesces concurrent exchanges of the same refresh token into one call.
// The flight is detached from every caller; a caller whose ctx ends stops waiting for it
func (g *Guard) refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	flightCtx := context.WithoutCancel(ctx)

	results := g.refreshGroup.DoChan(creds.RefreshToken, func() (any, error) {
		ctx, cancel := context.WithTimeout(flightCtx, g.cfg.Timeout)
		defer cancel()

		// A previous flight may have rotated the pair after the caller read it
		if stored, err := g.Credentials(ctx); err == nil && stored.Authenticated() && stored.RefreshToken != creds.RefreshToken {
			return stored, nil
		}

		pair, err := g.exchange(ctx, creds.RefreshToken)
		if err != nil {
			return models.Credentials{}, err
		}

		pair.UserID = creds.UserID
		if err := g.store.Set(ctx, pair.Values()); err != nil {
			return models.Credentials{}, fmt.Errorf("store refreshed credentials: %w", err)
		}

		g.logger.Info("Session refreshed", "subject", pair.UserID)
		g.notify(pair.UserID)
		return pair, nil
	})

	select {
	case <-ctx.Done():
		return models.Credentials{}, fmt.Errorf("wait for refresh: %w", ctx.Err())
	case res := <-results:
		if res.Shared {
			g.logger.Debug("Refresh shared with concurrent requests")
		}
		if res.Err != nil {
			return models.Credentials{}, res.Err
		}
		return res.Val.(models.Credentials), nil
	}
}

// recover gets a fresh access token after the one in sent was rejected.
// When another request already rotated the pair the stored one is used as is.
func (g *Guard) recover(ctx context.Context, sent string, creds models.Credentials) error {
	if sent != "" && creds.AccessToken != sent {
		g.logger.Debug("Access token already rotated, skipping refresh")
		return nil
	}

	_, err := g.refresh(ctx, creds)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		// The caller gave up; the flight decides about the session
		return err
	}

	g.logger.Warn("Refresh failed, invalidating session", "error", err)
	g.invalidate(context.WithoutCancel(ctx), creds.RefreshToken)
	return fmt.Errorf("%w: %w", apperrors.ErrSessionInvalidated, err)
}

// invalidate clears the credentials if they still hold the failed refresh token
func (g *Guard) invalidate(ctx context.Context, failedRefresh string) {
	g.invalidateMu.Lock()
	defer g.invalidateMu.Unlock()

	values, err := g.store.Get(ctx, models.KeyRefreshToken)
	if err == nil && values[models.KeyRefreshToken] != failedRefresh {
		return // cleared already or replaced by a new login
	}

	if err := g.store.Delete(ctx, models.CredentialKeys...); err != nil {
		g.logger.Error("Failed to clear credentials", "error", err)
		return
	}
	g.notify("")
}

func (g *Guard) exchange(ctx context.Context, refreshToken string) (models.Credentials, error) {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken"`
	}
	type RefreshResponse struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	var resp RefreshResponse
	err := g.post(ctx, g.cfg.RefreshPath, RefreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("refresh: %w", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return models.Credentials{}, errors.New("refresh: response misses a token")
	}

	return models.Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// post sends JSON through the base transport, bypassing the guard
func (g *Guard) post(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := g.base.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return decodeResponse(resp, out)
}
