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

// Package connection keeps a client attached to a collar whose address may
// change: it finds an endpoint (cache, relay announcement, direct probe),
// connects, and starts over whenever the session is lost.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

const subscriberBuffer = 8

// Snapshot is the observable state of a Manager.
type Snapshot struct {
	State         models.ConnectionState `json:"state"`
	Endpoint      string                 `json:"endpoint,omitempty"`
	Method        models.DiscoveryMethod `json:"method,omitempty"`
	ConnectedAt   time.Time              `json:"connected_at,omitempty"`
	LastMessageAt time.Time              `json:"last_message_at,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
}

type candidate struct {
	url    string
	method models.DiscoveryMethod
}

type attemptResult struct {
	cand candidate
	sess Session
	err  error
}

type probeResult struct {
	url string
	err error
}

type sessionLost struct {
	sess Session
	err  error
}

// Option customises a Manager.
type Option func(*Manager)

func WithSource(src AnnouncementSource) Option {
	return func(m *Manager) { m.source = src }
}

func WithProber(p Prober) Option {
	return func(m *Manager) { m.prober = p }
}

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager owns the single session to a collar. All state transitions happen
// on the goroutine running Start.
type Manager struct {
	cfg    Config
	store  EndpointStore
	dialer Dialer
	source AnnouncementSource
	prober Prober
	clock  clock.Clock
	log    logger.Logger
	tracer trace.Tracer

	attempts chan attemptResult
	probes   chan probeResult
	lost     chan sessionLost
	retry    chan struct{}

	mu            sync.Mutex
	snap          Snapshot
	session       Session
	handlers      []func([]byte)
	subs          map[chan Snapshot]struct{}
	running       bool
	finished      bool
	stopRequested bool
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewManager(cfg Config, store EndpointStore, dialer Dialer, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if dialer == nil {
		return nil, ErrNoDialer
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		store:    store,
		dialer:   dialer,
		clock:    clock.Real(),
		log:      logger.NewTestLogger(),
		tracer:   logger.GetTracer(tracerName),
		attempts: make(chan attemptResult),
		probes:   make(chan probeResult),
		lost:     make(chan sessionLost),
		retry:    make(chan struct{}, 1),
		snap:     Snapshot{State: models.StateIdle},
		subs:     make(map[chan Snapshot]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Start runs the manager until ctx is cancelled or Stop is called. A stopped
// manager cannot be restarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()

	if m.finished {
		m.mu.Unlock()
		return ErrStopped
	}

	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.running = true
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	defer close(done)
	defer cancel()

	return m.run(ctx, runCtx)
}

// Stop cancels any in-flight attempt, closes the session and waits for the
// run loop to exit.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()

	if !m.running {
		m.finished = true
		m.mu.Unlock()

		return nil
	}

	m.stopRequested = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type runner struct {
	m          *Manager
	ctx        context.Context
	attempting bool
	probing    bool
	next       *candidate
	timer      clock.Timer
}

func (m *Manager) run(parent, ctx context.Context) error {
	announcements := make(chan models.DeviceAnnouncement)

	if m.source != nil {
		go func() {
			if err := m.source.Run(ctx, announcements); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn().Err(err).Msg("Announcement source stopped")
			}
		}()
	}

	r := &runner{m: m, ctx: ctx}
	r.discover()

	for {
		select {
		case <-ctx.Done():
			return m.shutdown(r, parent)
		case ann := <-announcements:
			r.onAnnouncement(ann)
		case res := <-m.attempts:
			r.onAttempt(res)
		case res := <-m.probes:
			r.onProbe(res)
		case l := <-m.lost:
			r.onLost(l)
		case <-m.retry:
			r.onRetry()
		}
	}
}

func (m *Manager) shutdown(r *runner, parent context.Context) error {
	r.stopRetry()

	m.mu.Lock()
	sess := m.session
	m.session = nil

	final := models.StateIdle
	if r.attempting || (parent.Err() != nil && !errors.Is(parent.Err(), context.Canceled)) {
		final = models.StateFailed
	}

	stopped := m.stopRequested
	m.running = false
	m.finished = true

	m.snap = Snapshot{State: final, LastError: m.snap.LastError}
	m.publishLocked()

	for ch := range m.subs {
		close(ch)
		delete(m.subs, ch)
	}
	m.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}

	m.log.Info().Str("state", string(final)).Msg("Connection manager stopped")

	if stopped {
		return nil
	}

	return parent.Err()
}

func (r *runner) discover() {
	m := r.m
	m.setState(models.StateDiscovering, candidate{})

	if e, ok := m.store.Get(); ok && e.Usable() {
		r.attempt(candidate{url: e.URL, method: models.DiscoveryCached})
		return
	}

	if r.next != nil {
		c := *r.next
		r.next = nil
		r.attempt(c)

		return
	}

	r.startProbe()
	r.armRetry()
}

func (r *runner) attempt(c candidate) {
	m := r.m

	r.stopRetry()
	r.attempting = true
	m.setState(models.StateConnecting, c)

	m.log.Debug().Str("endpoint", c.url).Str("method", string(c.method)).Msg("Connecting")

	actx, cancel := context.WithTimeout(r.ctx, m.cfg.AttemptTimeout.Std())

	go func() {
		defer cancel()

		actx, span := m.tracer.Start(actx, "connection.attempt", trace.WithAttributes(
			attribute.String("endpoint", c.url),
			attribute.String("method", string(c.method)),
		))

		sess, err := m.dialer.Dial(actx, c.url)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()

		select {
		case m.attempts <- attemptResult{cand: c, sess: sess, err: err}:
		case <-r.ctx.Done():
			if sess != nil {
				_ = sess.Close()
			}
		}
	}()
}

func (r *runner) onAttempt(res attemptResult) {
	m := r.m
	r.attempting = false

	if r.ctx.Err() != nil {
		if res.sess != nil {
			_ = res.sess.Close()
		}

		return
	}

	if res.err != nil {
		recordAttempt(r.ctx, string(res.cand.method), "failure")
		r.fail(res.cand, res.err)
		r.discover()

		return
	}

	recordAttempt(r.ctx, string(res.cand.method), "success")

	if err := m.store.RecordSuccess(res.cand.url, res.cand.method); err != nil {
		m.log.Warn().Err(err).Msg("Failed to cache endpoint")
	}

	r.next = nil
	sess := res.sess

	m.mu.Lock()
	m.session = sess
	now := m.clock.Now()
	m.snap = Snapshot{
		State:       models.StateConnected,
		Endpoint:    res.cand.url,
		Method:      res.cand.method,
		ConnectedAt: now,
	}
	m.publishLocked()
	m.mu.Unlock()

	m.log.Info().Str("endpoint", res.cand.url).Str("method", string(res.cand.method)).Msg("Connected")

	sess.OnMessage(m.dispatch)
	sess.OnClose(func(err error) {
		go func() {
			select {
			case m.lost <- sessionLost{sess: sess, err: err}:
			case <-r.ctx.Done():
			}
		}()
	})
}

func (r *runner) fail(c candidate, cause error) {
	m := r.m

	m.log.Info().Err(cause).Str("endpoint", c.url).Str("method", string(c.method)).Msg("Connection attempt failed")

	n, err := m.store.RecordFailure(c.url)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to record endpoint failure")
	}

	if n >= models.EndpointEvictionThreshold {
		if err := m.store.Evict(c.url); err != nil {
			m.log.Warn().Err(err).Msg("Failed to evict endpoint")
		}

		recordEviction(r.ctx)
		m.log.Info().Str("endpoint", c.url).Int("failures", n).Msg("Cached endpoint evicted")
	}

	m.mu.Lock()
	m.snap.LastError = cause.Error()
	m.mu.Unlock()
}

func (r *runner) onLost(l sessionLost) {
	m := r.m

	m.mu.Lock()
	if m.session != l.sess {
		m.mu.Unlock()
		return
	}

	m.session = nil
	if l.err != nil {
		m.snap.LastError = l.err.Error()
	}
	m.mu.Unlock()

	m.log.Info().Err(l.err).Msg("Session lost")
	r.discover()
}

func (r *runner) onAnnouncement(ann models.DeviceAnnouncement) {
	c := candidate{url: ann.SessionEndpoint, method: models.DiscoveryRelay}

	if created, err := r.m.store.RecordCandidate(c.url, c.method); err != nil {
		r.m.log.Warn().Err(err).Msg("Failed to cache announced endpoint")
	} else if created {
		r.m.log.Debug().Str("endpoint", c.url).Msg("Cached announced endpoint")
	}

	switch {
	case r.attempting:
		r.next = &c
	case r.m.State() == models.StateConnected:
		r.m.log.Debug().Str("endpoint", c.url).Msg("Announcement ignored while connected")
	default:
		r.attempt(c)
	}
}

func (r *runner) startProbe() {
	m := r.m

	if m.prober == nil || r.probing {
		return
	}

	r.probing = true

	go func() {
		url, err := m.prober.Probe(r.ctx)

		select {
		case m.probes <- probeResult{url: url, err: err}:
		case <-r.ctx.Done():
		}
	}()
}

func (r *runner) onProbe(res probeResult) {
	r.probing = false

	if res.err != nil {
		r.m.log.Debug().Err(res.err).Msg("Probe found nothing")
		return
	}

	c := candidate{url: res.url, method: models.DiscoveryProbe}

	switch {
	case r.attempting:
		if r.next == nil {
			r.next = &c
		}
	case r.m.State() == models.StateConnected:
	default:
		r.attempt(c)
	}
}

func (r *runner) onRetry() {
	r.timer = nil

	if r.attempting || r.m.State() != models.StateDiscovering {
		return
	}

	r.discover()
}

func (r *runner) armRetry() {
	r.stopRetry()

	m := r.m
	r.timer = m.clock.AfterFunc(m.cfg.RetryInterval.Std(), func() {
		select {
		case m.retry <- struct{}{}:
		default:
		}
	})
}

func (r *runner) stopRetry() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	select {
	case <-r.m.retry:
	default:
	}
}

func (m *Manager) setState(state models.ConnectionState, c candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.State = state
	m.snap.Endpoint = c.url
	m.snap.Method = c.method
	m.snap.ConnectedAt = time.Time{}
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	s := m.snap

	for ch := range m.subs {
		select {
		case ch <- s:
			continue
		default:
		}

		// keep the newest snapshot when the subscriber lags
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- s:
		default:
		}
	}
}

func (m *Manager) dispatch(data []byte) {
	m.mu.Lock()
	m.snap.LastMessageAt = m.clock.Now()
	handlers := append([]func([]byte){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

// OnMessage registers a handler for messages from the collar. Handlers
// survive reconnects.
func (m *Manager) OnMessage(h func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = append(m.handlers, h)
}

// Send forwards msg to the live session.
func (m *Manager) Send(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		return ErrNotConnected
	}

	if err := sess.Send(msg); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	return nil
}

// Subscribe returns a channel of state snapshots, starting with the current
// one, and a function that unsubscribes. The channel is closed when the
// manager stops.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	ch <- m.snap

	if m.finished {
		close(ch)
		return ch, func() {}
	}

	m.subs[ch] = struct{}{}

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snap
}

func (m *Manager) State() models.ConnectionState {
	return m.Snapshot().State
}
