package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/taskbell/internal/devserver/render"
	"github.com/nkiryanov/taskbell/internal/devserver/userctx"
	"github.com/nkiryanov/taskbell/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Auth(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(userctx.WithUser(r.Context(), user)))
		})
	}
}
