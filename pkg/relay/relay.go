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

// Package relay listens for collar broadcast announcements and forwards each
// valid one to every connected WebSocket subscriber.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/session"
)

const readHeaderTimeout = 5 * time.Second

// Stats are the relay's running counters.
type Stats struct {
	Received    uint64 `json:"received"`
	Invalid     uint64 `json:"invalid"`
	Forwarded   uint64 `json:"forwarded"`
	Dropped     uint64 `json:"dropped_subscribers"`
	Subscribers int    `json:"subscribers"`
}

// Relay is a lifecycle.Service.
type Relay struct {
	cfg *Config
	log logger.Logger
	hub *Hub

	received  atomic.Uint64
	invalid   atomic.Uint64
	forwarded atomic.Uint64

	mu       sync.Mutex
	started  bool
	udp      net.PacketConn
	httpLn   net.Listener
	httpSrv  *http.Server
	ready    chan struct{}
	stopOnce sync.Once
}

// New validates cfg and builds a relay. Sockets are bound by Start.
func New(cfg *Config, log logger.Logger) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Relay{
		cfg:   cfg,
		log:   log,
		hub:   NewHub(cfg.QueueSize, log),
		ready: make(chan struct{}),
	}, nil
}

// Start binds both sockets and serves until ctx is cancelled. A bind failure
// is returned immediately.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.bind(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- r.serveUDP(ctx)
	}()

	go func() {
		if err := r.httpSrv.Serve(r.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}

		errCh <- nil
	}()

	r.log.Info().
		Str("udp", r.udp.LocalAddr().String()).
		Str("http", r.httpLn.Addr().String()).
		Str("path", r.cfg.Path).
		Msg("Relay listening")

	close(r.ready)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Run is Start followed by Stop once ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	err := r.Start(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if stopErr := r.Stop(stopCtx); stopErr != nil && err == nil {
		err = stopErr
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (r *Relay) bind(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig

	udp, err := lc.ListenPacket(ctx, "udp", r.cfg.ListenUDP)
	if err != nil {
		return fmt.Errorf("failed to bind broadcast port %s: %w", r.cfg.ListenUDP, err)
	}

	ln, err := lc.Listen(ctx, "tcp", r.cfg.ListenHTTP)
	if err != nil {
		_ = udp.Close()
		return fmt.Errorf("failed to bind subscriber port %s: %w", r.cfg.ListenHTTP, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(r.cfg.Path, r.handleSubscribe)
	mux.HandleFunc("/healthz", r.handleHealth)

	r.udp = udp
	r.httpLn = ln
	r.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	r.started = true

	return nil
}

func (r *Relay) serveUDP(ctx context.Context) error {
	buf := make([]byte, maxDatagram)

	for {
		n, addr, err := r.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			r.log.Warn().Err(err).Msg("Broadcast read failed")

			continue
		}

		r.handleDatagram(ctx, buf[:n], addr)
	}
}

func (r *Relay) handleDatagram(ctx context.Context, data []byte, from net.Addr) {
	r.received.Add(1)
	recordReceived(ctx)

	ann, err := models.ParseAnnouncement(data)
	if err != nil {
		r.invalid.Add(1)
		recordInvalid(ctx)

		r.log.Debug().
			Err(fmt.Errorf("%w: %w", ErrInvalidAnnouncement, err)).
			Str("from", addrString(from)).
			Int("bytes", len(data)).
			Msg("Discarding datagram")

		return
	}

	payload := append([]byte(nil), data...)
	n := r.hub.Broadcast(ctx, payload)
	r.forwarded.Add(uint64(n))

	r.log.Debug().
		Str("device_id", ann.DeviceID).
		Str("endpoint", ann.SessionEndpoint).
		Int("subscribers", n).
		Msg("Announcement forwarded")
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}

	return a.String()
}

func (r *Relay) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	tr, err := session.Accept(w, req, session.Options{
		WriteTimeout: r.cfg.WriteTimeout.Std(),
		PingInterval: r.cfg.PingInterval.Std(),
		PongTimeout:  r.cfg.PongTimeout.Std(),
		Logger:       r.log,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("remote_addr", req.RemoteAddr).Msg("Subscriber upgrade failed")
		return
	}

	// inbound frames are only read to observe close
	tr.OnMessage(func([]byte) {})
	r.hub.Add(tr)

	r.log.Debug().Str("remote_addr", req.RemoteAddr).Str("user_agent", req.UserAgent()).Msg("Subscriber added")
}

func (r *Relay) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"stats":  r.Stats(),
	})
}

// Stop closes both sockets and disconnects all subscribers.
func (r *Relay) Stop(ctx context.Context) error {
	var err error

	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if !r.started {
			return
		}

		_ = r.udp.Close()

		if shutdownErr := r.httpSrv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown: %w", shutdownErr)
		}

		r.hub.Close()
		r.log.Info().Msg("Relay stopped")
	})

	return err
}

// Ready is closed once both sockets are bound.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// UDPAddr returns the bound broadcast address, nil before Start.
func (r *Relay) UDPAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.udp == nil {
		return nil
	}

	return r.udp.LocalAddr()
}

// HTTPAddr returns the bound subscriber address, nil before Start.
func (r *Relay) HTTPAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.httpLn == nil {
		return nil
	}

	return r.httpLn.Addr()
}

func (r *Relay) Stats() Stats {
	return Stats{
		Received:    r.received.Load(),
		Invalid:     r.invalid.Load(),
		Forwarded:   r.forwarded.Load(),
		Dropped:     r.hub.Dropped(),
		Subscribers: r.hub.Len(),
	}
}
