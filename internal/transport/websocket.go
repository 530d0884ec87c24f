package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/smoothsync/internal/channel"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Client is a websocket transport to a relay hub. Each connection gets one
// reader and one writer goroutine; when either fails the connection is
// dropped and redialled with exponential backoff. After maxReconnect failed
// attempts the client closes itself and Receive's channel is closed.
type Client struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool

	sendCh chan []byte
	inbox  *channel.Buffered[Message]
	done   chan struct{}

	wsURL   string
	backoff time.Duration
	logger  *slog.Logger
}

// Dial connects to the hub at rawURL.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}

	c := &Client{
		conn:    conn,
		sendCh:  make(chan []byte, sendChSize),
		inbox:   channel.New[Message](defaultInboxSize),
		done:    make(chan struct{}),
		wsURL:   rawURL,
		backoff: time.Second,
		logger:  logger,
	}
	go c.run(conn)
	return c, nil
}

// Send queues m for the writer. It never blocks; a full queue drops m.
func (c *Client) Send(m Message) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("Relay send queue full, dropping message", "kind", m.Kind)
	}
	return nil
}

// Receive yields messages relayed from other peers.
func (c *Client) Receive() <-chan Message {
	return c.inbox.Receive()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) run(conn *ws.Conn) {
	for conn != nil {
		c.serve(conn)
		conn = c.redial()
	}
	if _, ok := c.shutdown(); ok {
		c.logger.Error("Giving up on relay", "url", c.wsURL, "attempts", maxReconnect)
	}
}

// serve pumps frames over conn until the link fails or the client closes.
func (c *Client) serve(conn *ws.Conn) {
	failed := make(chan struct{})
	var once sync.Once
	fail := func(op string, err error) {
		once.Do(func() {
			if !c.isClosed() {
				c.logger.Warn("Relay "+op+" failed", "error", err)
			}
			close(failed)
			_ = conn.Close()
		})
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.read(conn, fail)
	}()
	c.write(conn, failed, fail)
	<-readerDone
}

func (c *Client) write(conn *ws.Conn, failed <-chan struct{}, fail func(string, error)) {
	for {
		select {
		case <-c.done:
			return
		case <-failed:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				fail("write", err)
				return
			}
			if err := conn.WriteMessage(ws.BinaryMessage, data); err != nil {
				fail("write", err)
				return
			}
		}
	}
}

func (c *Client) read(conn *ws.Conn, fail func(string, error)) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			fail("read", err)
			return
		}
		if kind != ws.BinaryMessage {
			continue
		}

		var m Message
		if err := m.UnmarshalBinary(data); err != nil {
			c.logger.Debug("Dropping undecodable frame", "len", len(data), "error", err)
			continue
		}
		if !c.inbox.Offer(m) {
			c.logger.Debug("Inbox full, dropping message", "kind", m.Kind)
		}
	}
}

// redial returns a fresh connection, or nil once the client is closed or
// every attempt failed.
func (c *Client) redial() *ws.Conn {
	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to relay", "attempt", attempt)
		conn, _, err := ws.DefaultDialer.Dial(c.wsURL, nil)
		if err != nil {
			c.logger.Warn("Relay dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("Reconnected to relay", "attempt", attempt)
		return conn
	}
	return nil
}

// shutdown marks the client closed and returns its last connection. ok is
// false if it was already closed.
func (c *Client) shutdown() (conn *ws.Conn, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	c.closed = true
	close(c.done)
	c.inbox.Close()
	conn, c.conn = c.conn, nil
	return conn, true
}

// Close says goodbye to the relay and stops both goroutines.
func (c *Client) Close() error {
	conn, ok := c.shutdown()
	if !ok || conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

var _ Transport = (*Client)(nil)
