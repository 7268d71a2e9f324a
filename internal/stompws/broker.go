package stompws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"

	"github.com/nkiryanov/taskbell/internal/logger"
)

// Broker is an in-process STOMP broker reachable over websocket.
// Destinations starting with /queue are queues, everything else is a topic.
type Broker struct {
	logger   logger.Logger
	listener *connListener
	server   *server.Server
}

func NewBroker(l logger.Logger, heartBeat time.Duration) *Broker {
	if heartBeat == 0 {
		heartBeat = defaultHeartBeat
	}

	b := &Broker{
		logger:   l.With("component", "broker"),
		listener: newConnListener(),
		server:   &server.Server{HeartBeat: heartBeat},
	}

	go func() {
		if err := b.server.Serve(b.listener); err != nil {
			b.logger.Debug("Broker stopped", "error", err)
		}
	}()

	return b
}

// ServeHTTP upgrades the request to a websocket and hands it to the broker.
// It returns when the broker closes the connection.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   Subprotocols,
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	// The request context ends with the handler, the connection must outlive it
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := newTrackedConn(websocket.NetConn(ctx, ws, websocket.MessageText))
	if err := b.listener.push(conn); err != nil {
		_ = ws.Close(websocket.StatusGoingAway, "broker is closed")
		return
	}

	b.logger.Debug("Client connected", "remote", r.RemoteAddr, "subprotocol", ws.Subprotocol())
	select {
	case <-conn.done:
	case <-b.listener.closed:
		_ = conn.Close()
	}
	b.logger.Debug("Client disconnected", "remote", r.RemoteAddr)
}

// Publish sends payload to destination through an in-memory connection
func (b *Broker) Publish(ctx context.Context, destination string, payload []byte) error {
	client, srv := net.Pipe()
	if err := b.listener.push(newTrackedConn(srv)); err != nil {
		_ = client.Close()
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	conn, err := stomp.Connect(client, stomp.ConnOpt.HeartBeat(0, 0))
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("broker connect: %w", err)
	}

	if err := conn.Send(destination, contentTypeJSON, payload, stomp.SendOpt.Receipt); err != nil {
		_ = conn.MustDisconnect()
		return fmt.Errorf("publish to %s: %w", destination, err)
	}

	return conn.Disconnect()
}

// Close stops accepting connections and closes the open ones
func (b *Broker) Close() error {
	return b.listener.Close()
}

// connListener is a net.Listener fed with already accepted connections
type connListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newConnListener() *connListener {
	return &connListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

func (l *connListener) push(conn net.Conn) error {
	select {
	case l.conns <- conn:
		return nil
	case <-l.closed:
		return net.ErrClosed
	}
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *connListener) Addr() net.Addr {
	return brokerAddr{}
}

type brokerAddr struct{}

func (brokerAddr) Network() string { return "websocket" }
func (brokerAddr) String() string  { return "stomp-broker" }

// trackedConn signals when the broker is done with the connection
type trackedConn struct {
	net.Conn
	done chan struct{}
	once sync.Once
}

func newTrackedConn(conn net.Conn) *trackedConn {
	return &trackedConn{Conn: conn, done: make(chan struct{})}
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.Conn.Close()
}
