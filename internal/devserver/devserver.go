package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/taskbell/internal/devserver/auth"
	"github.com/nkiryanov/taskbell/internal/devserver/memstore"
	"github.com/nkiryanov/taskbell/internal/devserver/notifier"
	"github.com/nkiryanov/taskbell/internal/devserver/tokenmanager"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/stompws"
)

const (
	defaultJanitorInterval = time.Hour
	shutdownTimeout        = 5 * time.Second
)

type Config struct {
	// Required: signs access tokens
	SecretKey string

	// Token lifetimes, token manager defaults if zero
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Reminder is disabled if zero
	ReminderInterval time.Duration

	// STOMP heart-beat offered by the broker
	HeartBeat time.Duration

	// Password hasher, bcrypt if nil
	Hasher auth.PasswordHasher
}

// Server is an in-memory backend: auth, notifications and STOMP broker
type Server struct {
	handler  http.Handler
	broker   *stompws.Broker
	reminder *notifier.Reminder
	janitor  *notifier.Janitor
	logger   logger.Logger

	// Services are exposed for tests and seeding
	Auth          *auth.AuthService
	Notifications *notifier.Service
}

func New(cfg Config, l logger.Logger) (*Server, error) {
	users := memstore.NewUserRepo()

	tokens, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  cfg.SecretKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, memstore.NewRefreshTokenRepo())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	authService, err := auth.NewService(auth.Config{Hasher: cfg.Hasher}, tokens, users)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service: %w", err)
	}

	broker := stompws.NewBroker(l, cfg.HeartBeat)
	notifications := notifier.NewService(memstore.NewNotificationRepo(), broker, l)

	s := &Server{
		handler:       NewRouter(authService, notifications, broker, l),
		broker:        broker,
		logger:        l,
		Auth:          authService,
		Notifications: notifications,
		janitor: &notifier.Janitor{
			Interval: defaultJanitorInterval,
			Tokens:   tokens,
			Logger:   l,
		},
	}

	if cfg.ReminderInterval > 0 {
		s.reminder = &notifier.Reminder{
			Interval: cfg.ReminderInterval,
			Users:    users,
			Notifier: notifications,
			Logger:   l,
		}
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs background jobs until ctx is done; the returned channel is closed when they stop
func (s *Server) Start(ctx context.Context) <-chan struct{} {
	jobs := []<-chan struct{}{s.janitor.Run(ctx)}
	if s.reminder != nil {
		jobs = append(jobs, s.reminder.Run(ctx))
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for _, job := range jobs {
			<-job
		}
	}()
	return stopped
}

func (s *Server) Close() error {
	return s.broker.Close()
}

// ListenAndServe serves on addr and closes gracefully on context cancellation
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}

	jobsStopped := s.Start(ctx)
	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		defer close(idleConnsClosed)
		<-srvCtx.Done()

		// Broker first: hijacked websocket conns are not tracked by Shutdown
		if err := s.Close(); err != nil {
			s.logger.Warn("Broker close failed", "error", err)
		}

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
	}()

	s.logger.Info("Starting server", "address", addr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-jobsStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
