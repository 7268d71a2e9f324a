package devserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/devserver/auth"
	"github.com/nkiryanov/taskbell/internal/devserver/render"
	"github.com/nkiryanov/taskbell/internal/devserver/userctx"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

type authService interface {
	Register(ctx context.Context, username string, email string, password string) (auth.Session, error)
	Login(ctx context.Context, email string, password string) (auth.Session, error)
	Refresh(ctx context.Context, refresh string) (auth.Session, error)
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type notificationService interface {
	Notify(ctx context.Context, userID uuid.UUID, title string, content string) (models.Notification, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, id models.ID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
}

func renderSession(w http.ResponseWriter, s auth.Session) {
	render.JSON(w, AuthResponse{
		AccessToken:  s.Pair.Access.Value,
		RefreshToken: s.Pair.Refresh.Value,
		UserID:       s.User.ID.String(),
		Email:        s.User.Email,
	})
}

func handleRegister(as authService, l logger.Logger) http.HandlerFunc {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		session, err := as.Register(r.Context(), data.Username, data.Email, data.Password)
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		case err != nil:
			l.Error("Register failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		default:
			renderSession(w, session)
		}
	}
}

func handleLogin(as authService, l logger.Logger) http.HandlerFunc {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		session, err := as.Login(r.Context(), data.Email, data.Password)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		case err != nil:
			l.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		default:
			renderSession(w, session)
		}
	}
}

func handleRefresh(as authService, l logger.Logger) http.HandlerFunc {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RefreshRequest](w, r)
		if err != nil {
			return
		}

		session, err := as.Refresh(r.Context(), data.RefreshToken)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case err != nil:
			l.Debug("Refresh rejected", "error", err)
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			renderSession(w, session)
		}
	}
}

func handleUserMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.User(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		render.JSON(w, models.Profile{
			ID:       user.ID.String(),
			Username: user.Username,
			Email:    user.Email,
		})
	}
}

// pathUser parses {userId} and allows only the authenticated user
func pathUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	user, ok := userctx.User(r.Context())
	if !ok || user.ID != userID {
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
		return uuid.Nil, false
	}
	return userID, true
}

func handleListNotifications(ns notificationService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUser(w, r)
		if !ok {
			return
		}

		items, err := ns.List(r.Context(), userID)
		if err != nil {
			l.Error("List notifications failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, items)
	}
}

func handleMarkRead(ns notificationService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ns.MarkRead(r.Context(), models.ID(r.PathValue("id"))); err != nil {
			l.Error("Mark read failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleMarkAllRead(ns notificationService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUser(w, r)
		if !ok {
			return
		}

		if err := ns.MarkAllRead(r.Context(), userID); err != nil {
			l.Error("Mark all read failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Dev helper: any authenticated user may notify any user
func handleCreateNotification(ns notificationService, l logger.Logger) http.HandlerFunc {
	type CreateRequest struct {
		Title   string `json:"title" validate:"required,max=200"`
		Content string `json:"content" validate:"max=2000"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("userId"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[CreateRequest](w, r)
		if err != nil {
			return
		}

		n, err := ns.Notify(r.Context(), userID, data.Title, data.Content)
		if err != nil {
			l.Error("Create notification failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSONWithStatus(w, n, http.StatusCreated)
	}
}
