/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package session is the bidirectional message transport between a collar and
// its clients: one JSON document per WebSocket text frame, with keepalive.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/collarlink/pkg/logger"
)

const (
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second

	// messages that arrive before any handler is registered
	backlogLimit = 64
	readLimit    = 64 << 10
)

// State is the lifecycle of a Transport.
type State string

const (
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosed  State = "closed"
)

// Options tune a Transport. Zero values take the defaults.
type Options struct {
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	Header           http.Header
	CheckOrigin      func(r *http.Request) bool
	Logger           logger.Logger
}

func (o *Options) withDefaults() Options {
	out := *o

	if out.PingInterval <= 0 {
		out.PingInterval = DefaultPingInterval
	}

	if out.PongTimeout <= 0 {
		out.PongTimeout = DefaultPongTimeout
	}

	if out.WriteTimeout <= 0 {
		out.WriteTimeout = DefaultWriteTimeout
	}

	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if out.Logger == nil {
		out.Logger = logger.NewTestLogger()
	}

	return out
}

// Transport is one open session. It never reconnects; once closed it stays closed.
type Transport struct {
	conn *websocket.Conn
	opts Options
	log  logger.Logger

	writeMu   sync.Mutex
	deliverMu sync.Mutex

	mu        sync.Mutex
	state     State
	closeErr  error
	onMessage []func([]byte)
	onClose   []func(error)
	backlog   [][]byte
	// messages discarded because the backlog was full
	backlogDropped int

	done chan struct{}
}

// Dial opens a client session to url.
func Dial(ctx context.Context, url string, opts Options) (*Transport, error) {
	opts = opts.withDefaults()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, url, err)
	}

	opts.Logger.Debug().Str("url", url).Msg("Session opened")

	return newTransport(conn, opts), nil
}

// Accept upgrades an HTTP request into a server-side session.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Transport, error) {
	opts = opts.withDefaults()

	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      opts.CheckOrigin,
	}

	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpgradeFailed, err)
	}

	opts.Logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Session accepted")

	return newTransport(conn, opts), nil
}

func newTransport(conn *websocket.Conn, opts Options) *Transport {
	t := &Transport{
		conn:  conn,
		opts:  opts,
		log:   opts.Logger,
		state: StateOpen,
		done:  make(chan struct{}),
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(t.readWindow()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.readWindow()))
	})

	go t.readLoop()
	go t.pingLoop()

	return t
}

func (t *Transport) readWindow() time.Duration {
	return t.opts.PingInterval + t.opts.PongTimeout
}

func (t *Transport) readLoop() {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			t.closeWith(classify(err))
			return
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.readWindow()))

		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		t.deliver(data)
	}
}

func classify(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("keepalive timeout: %w", err)
	}

	return err
}

func (t *Transport) deliver(data []byte) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	handlers := t.onMessage

	if len(handlers) == 0 {
		if len(t.backlog) < backlogLimit {
			t.backlog = append(t.backlog, data)
		} else {
			t.backlogDropped++
		}
		t.mu.Unlock()

		return
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (t *Transport) pingLoop() {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.opts.WriteTimeout))
			t.writeMu.Unlock()

			if err != nil {
				t.log.Debug().Err(err).Msg("Keepalive ping failed")
				t.closeWith(fmt.Errorf("ping failed: %w", err))

				return
			}
		}
	}
}

// OnMessage registers a handler for inbound payloads. Payloads received before
// the first handler was registered are replayed to it.
func (t *Transport) OnMessage(h func([]byte)) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	t.onMessage = append(t.onMessage, h)
	backlog := t.backlog
	t.backlog = nil
	t.mu.Unlock()

	for _, data := range backlog {
		h(data)
	}
}

// OnClose registers a handler fired once when the session closes. A nil error
// means the session was closed locally. Handlers registered after close run
// immediately.
func (t *Transport) OnClose(h func(error)) {
	t.mu.Lock()

	if t.state == StateClosed {
		err := t.closeErr
		t.mu.Unlock()
		h(err)

		return
	}

	t.onClose = append(t.onClose, h)
	t.mu.Unlock()
}

// Send marshals msg to JSON and writes it as a single text frame.
func (t *Transport) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return t.SendRaw(data)
}

// SendRaw writes an already encoded payload.
func (t *Transport) SendRaw(data []byte) error {
	if t.State() != StateOpen {
		return ErrClosed
	}

	t.writeMu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	err := t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()

	if err != nil {
		t.closeWith(fmt.Errorf("write failed: %w", err))
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return nil
}

// Close sends a close frame and tears the connection down.
func (t *Transport) Close() error {
	if t.State() == StateClosed {
		return nil
	}

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.opts.WriteTimeout))
	t.writeMu.Unlock()

	t.closeWith(nil)

	return nil
}

func (t *Transport) closeWith(err error) {
	t.mu.Lock()

	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}

	t.state = StateClosed
	t.closeErr = err
	handlers := t.onClose
	t.onClose = nil
	close(t.done)
	t.mu.Unlock()

	_ = t.conn.Close()

	if err != nil {
		t.log.Debug().Err(err).Msg("Session closed")
	}

	for _, h := range handlers {
		h(err)
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Done is closed once the session is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the close cause, nil while open or after a local close.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closeErr
}

func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
