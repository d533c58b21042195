package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/live_blur/pkg/logger"
)

// Default connection settings.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultCloseGracePeriod = 2 * time.Second
	DefaultMaxMessageSize   = 8 * 1024 * 1024
)

// Config configures websocket channels.
type Config struct {
	// Header is sent with the handshake request.
	Header http.Header

	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration

	// WriteWait is the write deadline for each message.
	WriteWait time.Duration

	// CloseGracePeriod is how long Close waits for the peer's close frame
	// before dropping the connection.
	CloseGracePeriod time.Duration

	// MaxMessageSize is the read limit for inbound messages.
	MaxMessageSize int64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	c.Logger = logger.OrDefault(c.Logger)
}

// WSDialer opens websocket channels.
type WSDialer struct {
	cfg Config
}

// NewDialer creates a websocket dialer.
func NewDialer(cfg Config) *WSDialer {
	cfg.defaults()
	return &WSDialer{cfg: cfg}
}

// Config returns the settings channels are opened with, defaults applied.
func (d *WSDialer) Config() Config {
	return d.cfg
}

// Open implements Dialer.
func (d *WSDialer) Open(ctx context.Context, url string, h Handler) Channel {
	dialCtx, cancel := context.WithCancel(ctx)
	ch := &wsChannel{
		cfg:        d.cfg,
		url:        url,
		handler:    h,
		log:        d.cfg.Logger.With("component", "transport", "url", url),
		cancelDial: cancel,
	}
	go ch.run(ctx, dialCtx)
	return ch
}

// wsChannel is a Channel over a gorilla websocket connection.
type wsChannel struct {
	cfg     Config
	url     string
	handler Handler
	log     *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	open        bool
	closed      bool // Close was called
	closeCode   int
	closeReason string
	cancelDial  context.CancelFunc

	writeMu   sync.Mutex // serializes writes (gorilla/websocket requirement)
	closeOnce sync.Once
}

func (c *wsChannel) run(ctx, dialCtx context.Context) {
	defer c.cancelDial()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	c.log.Debug("connecting")
	conn, resp, err := dialer.DialContext(dialCtx, c.url, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if code, reason, ok := c.clientClose(); ok {
			c.fireClose(code, reason)
			return
		}
		c.log.Warn("dial failed", "error", err)
		c.handler.OnError(fmt.Errorf("failed to connect: %w", err))
		c.fireClose(CloseAbnormal, "")
		return
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	if c.closed {
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()
		c.writeClose(conn, code, reason)
		_ = conn.Close()
		c.fireClose(code, reason)
		return
	}
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.Close(CloseGoingAway, "client shutting down")
	})
	defer stop()

	c.log.Info("connected")
	c.handler.OnOpen()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, err)
			return
		}
		if mt != websocket.TextMessage {
			c.log.Debug("ignoring non-text message", "type", mt)
			continue
		}
		c.handler.OnMessage(data)
	}
}

// finish tears down after the read loop ended with err.
func (c *wsChannel) finish(conn *websocket.Conn, err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	_ = conn.Close()

	if code, reason, ok := c.clientClose(); ok {
		c.fireClose(code, reason)
		return
	}

	// A connection that ends without a close frame surfaces as 1006 and is
	// reported like any other transport failure.
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		c.log.Info("closed by server", "code", ce.Code, "reason", ce.Text)
		c.fireClose(ce.Code, ce.Text)
		return
	}

	c.log.Warn("connection lost", "error", err)
	c.handler.OnError(fmt.Errorf("connection lost: %w", err))
	c.fireClose(CloseAbnormal, "")
}

// clientClose returns the code passed to Close, if Close was called.
func (c *wsChannel) clientClose() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, c.closed
}

func (c *wsChannel) fireClose(code int, reason string) {
	c.closeOnce.Do(func() {
		c.handler.OnClose(code, reason)
	})
}

// Send implements Channel.
func (c *wsChannel) Send(data []byte) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// IsOpen implements Channel.
func (c *wsChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close implements Channel.
func (c *wsChannel) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.open = false
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// Still dialing; run reports the close once the dial returns.
		c.cancelDial()
		return
	}

	c.log.Debug("closing", "code", code, "reason", reason)
	c.writeClose(conn, code, reason)

	// The read loop ends on the peer's close frame or when the grace period
	// drops the connection.
	time.AfterFunc(c.cfg.CloseGracePeriod, func() {
		_ = conn.Close()
	})
}

func (c *wsChannel) writeClose(conn *websocket.Conn, code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		c.log.Debug("failed to write close frame", "error", err)
	}
}
