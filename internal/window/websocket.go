package window

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 5 * time.Second
	maxMessageBytes  = 512 * 1024
)

// WebSocket carries window datagrams as binary WebSocket messages.
type WebSocket struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	listeners listeners

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocket(conn *websocket.Conn, logger zerolog.Logger) *WebSocket {
	conn.SetReadLimit(maxMessageBytes)
	w := &WebSocket{
		conn: conn,
		log:  logger.With().Str("window", "websocket").Str("remote", conn.RemoteAddr().String()).Logger(),
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

// Accept upgrades an HTTP request from an embedded frame after the
// trust checks pass.
func Accept(rw http.ResponseWriter, r *http.Request, trust Trust, logger zerolog.Logger) (*WebSocket, error) {
	if !trust.CheckOrigin(r) {
		http.Error(rw, "origin not allowed", http.StatusForbidden)
		return nil, fmt.Errorf("%w: %q", ErrOriginNotAllowed, r.Header.Get("Origin"))
	}
	if err := trust.Authorize(r); err != nil {
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return nil, err
	}
	upgrader := websocket.Upgrader{
		CheckOrigin:     trust.CheckOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, logger), nil
}

// DialOptions configures Dial. The zero value dials once without TLS.
type DialOptions struct {
	Header  http.Header
	Backoff BackoffConfig
	TLS     *tls.Config
}

// Dial connects to a host endpoint, retrying with backoff until ctx is
// done or Backoff.MaxAttempts is exhausted.
func Dial(ctx context.Context, url string, opts DialOptions, logger zerolog.Logger) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  opts.TLS,
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 && backoff.InitialDelay == 0 {
		backoff.MaxAttempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; backoff.MaxAttempts <= 0 || attempt <= backoff.MaxAttempts; attempt++ {
		conn, _, err := dialer.DialContext(ctx, url, opts.Header)
		if err == nil {
			return NewWebSocket(conn, logger), nil
		}
		lastErr = err
		if backoff.MaxAttempts > 0 && attempt == backoff.MaxAttempts {
			break
		}
		delay := NextBackoffDelay(backoff, attempt, rng)
		logger.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Str("url", url).Msg("window dial failed")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("window: dial %s: %w", url, lastErr)
}

func (w *WebSocket) PostMessage(data []byte) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *WebSocket) Listen(fn func([]byte)) func() {
	return w.listeners.add(fn)
}

// Done is closed once the connection stops reading.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocket) readLoop() {
	defer close(w.done)
	defer w.listeners.clear()
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Debug().Err(err).Msg("websocket read stopped")
			}
			_ = w.Close()
			return
		}
		if kind != websocket.BinaryMessage {
			w.log.Debug().Int("message_type", kind).Msg("ignoring non-binary websocket message")
			continue
		}
		w.listeners.dispatch(data)
	}
}
