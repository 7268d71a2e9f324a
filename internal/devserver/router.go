package devserver

import (
	"net/http"

	"github.com/nkiryanov/taskbell/internal/devserver/middleware"
	"github.com/nkiryanov/taskbell/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter serves the API under /api; ws is the STOMP endpoint mounted at /api/ws
func NewRouter(as authService, ns notificationService, ws http.Handler, l logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(as)

	api := http.NewServeMux()
	api.Handle("POST /auth/register", handleRegister(as, l))
	api.Handle("POST /auth/login", handleLogin(as, l))
	api.Handle("POST /auth/refresh", handleRefresh(as, l))

	api.Handle("GET /user/me", withAuth(handleUserMe()))
	api.Handle("GET /notifications/{userId}", withAuth(handleListNotifications(ns, l)))
	api.Handle("PUT /notifications/{id}/read", withAuth(handleMarkRead(ns, l)))
	api.Handle("PUT /notifications/{userId}/mark-all-read", withAuth(handleMarkAllRead(ns, l)))
	api.Handle("POST /notifications/{userId}", withAuth(handleCreateNotification(ns, l)))
	api.Handle("GET /ws", withAuth(ws))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}
