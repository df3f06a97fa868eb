// Package websocket provides the exchange-facing WebSocket client used by
// the stream producer.
//
// The client owns one connection for its lifetime: it dials, hands every
// inbound frame to the configured handler on the read goroutine, keeps the
// connection alive with protocol-level pings, and closes gracefully on
// cancellation. Reconnection policy lives with the caller; a closed client is
// never reused.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPingPeriod is the interval between outbound ping frames.
	defaultPingPeriod = 15 * time.Second

	// defaultSendTimeout bounds control-frame writes.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit bounds inbound message size.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout bounds the opening handshake.
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrHandshakeRejected indicates the server refused the upgrade with a 4xx
// response; the endpoint or symbol is wrong and a retry cannot help.
var ErrHandshakeRejected = errors.New("websocket handshake rejected")

// Config defines settings for one connection.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is invoked on the read goroutine for every text or binary
	// frame. Required. A handler error is logged and the stream continues;
	// the handler aborts the connection by cancelling the context it
	// captured.
	Handler func(payload []byte) error

	// PingPeriod overrides the outbound ping interval.
	PingPeriod time.Duration

	// SendTimeout overrides the control-frame write deadline.
	SendTimeout time.Duration
}

// Client wraps one websocket.Conn with lifecycle management.
type Client struct {
	conn *websocket.Conn
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc

	disconnect chan struct{}
	errChan    chan error

	once sync.Once
	wg   sync.WaitGroup
}

// Dial connects and starts the read and ping goroutines. The returned client
// is live until the context is cancelled, Close is called, or the peer drops
// the connection.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("frame handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: status %d", ErrHandshakeRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		conn:       conn,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
	}

	conn.SetReadLimit(defaultReadLimit)
	// The exchange disconnects peers that do not answer its pings; gorilla
	// replies with pongs from the read loop through this handler.
	conn.SetPingHandler(func(appData string) error {
		deadline := time.Now().Add(cfg.SendTimeout)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PingPeriod * 2))
	})

	client.wg.Add(2)
	go func() {
		defer client.wg.Done()
		client.readLoop()
	}()
	go func() {
		defer client.wg.Done()
		client.pingLoop()
	}()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	return client, nil
}

// readLoop reads frames until the connection drops or the context is
// cancelled, delegating payloads to the handler.
func (c *Client) readLoop() {
	logger := log.With().
		Str("endpoint", c.cfg.Endpoint).
		Str("component", "ws-read").
		Logger()

	defer func() {
		close(c.disconnect)
		c.cancel()
	}()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Err(err).Msg("websocket closed by peer")
			} else {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			select {
			case c.errChan <- err:
			default:
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if err := c.cfg.Handler(payload); err != nil {
			logger.Warn().Err(err).Msg("frame handler error")
		}
	}
}

// pingLoop keeps the connection alive with periodic pings.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.SendTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("ping write failed")
			}
		}
	}
}

// Close sends a close frame, tears down the connection and waits briefly for
// the goroutines to finish. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()

		deadline := time.Now().Add(time.Second)
		if err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		); err != nil {
			log.Debug().Err(err).Msg("close frame write failed")
		}
		if err := c.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("websocket close failed")
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			log.Warn().Str("endpoint", c.cfg.Endpoint).Msg("timeout waiting for websocket goroutines")
		}
	})
}

// DisconnectChan is closed when the read loop exits for any reason.
func (c *Client) DisconnectChan() <-chan struct{} {
	return c.disconnect
}

// ErrChan delivers the terminal read error, if any.
func (c *Client) ErrChan() <-chan error {
	return c.errChan
}
