package stompws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"

	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/notification"
)

type Config struct {
	// API base url, e.g. http://localhost:8080/api
	BaseURL string

	// Websocket endpoint relative to BaseURL, DefaultPath if not set
	Path string

	// Heart-beat interval offered in both directions
	HeartBeat time.Duration
}

// Client is a STOMP over websocket publish/subscribe client
type Client struct {
	cfg     Config
	logger  logger.Logger
	headers func(ctx context.Context) http.Header
}

// NewClient creates client. headers is called before every handshake,
// it usually returns the session's bearer token
func NewClient(cfg Config, l logger.Logger, headers func(ctx context.Context) http.Header) *Client {
	if cfg.HeartBeat == 0 {
		cfg.HeartBeat = defaultHeartBeat
	}
	if headers == nil {
		headers = func(context.Context) http.Header { return http.Header{} }
	}

	return &Client{
		cfg:     cfg,
		logger:  l.With("component", "stompws"),
		headers: headers,
	}
}

// session is one websocket with a STOMP connection on top
type session struct {
	ws     *websocket.Conn
	conn   *stomp.Conn
	cancel context.CancelFunc
}

func (c *Client) dial(ctx context.Context) (*session, error) {
	wsURL, err := WebSocketURL(c.cfg.BaseURL, c.cfg.Path)
	if err != nil {
		return nil, err
	}

	header := c.headers(ctx)
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: Subprotocols,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}

	// Lives as long as the session, not the dial
	connCtx, cancel := context.WithCancel(context.Background())
	netConn := websocket.NetConn(connCtx, ws, websocket.MessageText)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(c.cfg.HeartBeat, c.cfg.HeartBeat),
	}
	if host := hostOf(wsURL); host != "" {
		opts = append(opts, stomp.ConnOpt.Host(host))
	}
	if auth := header.Get("Authorization"); auth != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", auth))
	}

	conn, err := connectWithContext(ctx, netConn, opts)
	if err != nil {
		cancel()
		_ = ws.Close(websocket.StatusProtocolError, "stomp connect failed")
		return nil, fmt.Errorf("stomp connect: %w", err)
	}

	return &session{ws: ws, conn: conn, cancel: cancel}, nil
}

// connectWithContext aborts the STOMP handshake when ctx is done
func connectWithContext(ctx context.Context, netConn net.Conn, opts []func(*stomp.Conn) error) (*stomp.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	defer stop()

	conn, err := stomp.Connect(netConn, opts...)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}

func (s *session) close(l logger.Logger) {
	done := make(chan error, 1)
	go func() { done <- s.conn.Disconnect() }()

	select {
	case err := <-done:
		if err != nil {
			l.Debug("Graceful disconnect failed", "error", err)
		}
	case <-time.After(closeTimeout):
		l.Debug("Graceful disconnect timed out")
		_ = s.conn.MustDisconnect()
	}

	_ = s.ws.Close(websocket.StatusNormalClosure, "")
	s.cancel()
}

// subscription implements notification.Handle
type subscription struct {
	session *session
	sub     *stomp.Subscription
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

// Connect dials the broker and subscribes to topic.
// Message bodies are passed to onMessage one at a time, in arrival order
func (c *Client) Connect(ctx context.Context, topic string, onMessage func([]byte)) (notification.Handle, error) {
	sess, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := sess.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		sess.close(c.logger)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &subscription{session: sess, sub: sub, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for msg := range sub.C {
			if msg.Err != nil {
				c.logger.Warn("Subscription error", "topic", topic, "error", msg.Err)
				continue
			}
			onMessage(msg.Body)
		}
	}()

	c.logger.Debug("Subscribed", "topic", topic)
	return s, nil
}

// Disconnect unsubscribes, sends DISCONNECT and closes the socket
func (c *Client) Disconnect(h notification.Handle) error {
	s, ok := h.(*subscription)
	if !ok {
		return errors.New("handle is not created by this client")
	}

	var err error
	s.once.Do(func() {
		if uerr := s.sub.Unsubscribe(); uerr != nil && !errors.Is(uerr, stomp.ErrCompletedSubscription) {
			err = fmt.Errorf("unsubscribe: %w", uerr)
		}
		s.session.close(c.logger)

		select {
		case <-s.done:
		case <-time.After(closeTimeout):
			c.logger.Warn("Subscription pump did not stop in time")
		}
	})
	return err
}

// Send publishes payload to topic on a short-lived connection
func (c *Client) Send(ctx context.Context, topic string, payload []byte) error {
	sess, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer sess.close(c.logger)

	if err := sess.conn.Send(topic, contentTypeJSON, payload, stomp.SendOpt.Receipt); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}
