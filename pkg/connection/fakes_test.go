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

package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/models"
)

var errRefused = errors.New("connection refused")

type fakeSession struct {
	mu      sync.Mutex
	sent    []any
	onMsg   []func([]byte)
	onClose []func(error)
	closed  bool
	err     error
}

func (f *fakeSession) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)

	return nil
}

func (f *fakeSession) OnMessage(h func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onMsg = append(f.onMsg, h)
}

func (f *fakeSession) OnClose(h func(error)) {
	f.mu.Lock()

	if f.closed {
		err := f.err
		f.mu.Unlock()
		h(err)

		return
	}

	f.onClose = append(f.onClose, h)
	f.mu.Unlock()
}

func (f *fakeSession) Close() error {
	f.drop(nil)
	return nil
}

// drop closes the session as if the transport failed with err.
func (f *fakeSession) drop(err error) {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		return
	}

	f.closed = true
	f.err = err
	handlers := f.onClose
	f.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}

func (f *fakeSession) push(data []byte) {
	f.mu.Lock()
	handlers := append([]func([]byte){}, f.onMsg...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeSession) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.onMsg)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// scriptDialer answers per URL and counts dials.
type scriptDialer struct {
	mu      sync.Mutex
	calls   map[string]int
	answers map[string]func(ctx context.Context) (Session, error)
}

func newScriptDialer() *scriptDialer {
	return &scriptDialer{
		calls:   make(map[string]int),
		answers: make(map[string]func(ctx context.Context) (Session, error)),
	}
}

func (d *scriptDialer) on(url string, fn func(ctx context.Context) (Session, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.answers[url] = fn
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (Session, error) {
	d.mu.Lock()
	d.calls[url]++
	fn := d.answers[url]
	d.mu.Unlock()

	if fn == nil {
		return nil, errRefused
	}

	return fn(ctx)
}

func (d *scriptDialer) count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls[url]
}

// testSource forwards announcements pushed by the test and acknowledges each
// once the manager has received it.
type testSource struct {
	in  chan models.DeviceAnnouncement
	ack chan struct{}
}

func newTestSource() *testSource {
	return &testSource{in: make(chan models.DeviceAnnouncement), ack: make(chan struct{})}
}

func (s *testSource) Run(ctx context.Context, out chan<- models.DeviceAnnouncement) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ann := <-s.in:
			select {
			case out <- ann:
			case <-ctx.Done():
				return ctx.Err()
			}

			s.ack <- struct{}{}
		}
	}
}

func (s *testSource) announce(t *testing.T, url string) {
	t.Helper()

	select {
	case s.in <- models.DeviceAnnouncement{DeviceID: "collar-1", SessionEndpoint: url}:
	case <-time.After(2 * time.Second):
		t.Fatal("source not running")
	}

	select {
	case <-s.ack:
	case <-time.After(2 * time.Second):
		t.Fatal("announcement not consumed")
	}
}

type scriptProber struct {
	mu      sync.Mutex
	calls   int
	results []probeResult
}

func (p *scriptProber) Probe(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++

	if len(p.results) == 0 {
		return "", ErrNoCandidate
	}

	r := p.results[0]
	p.results = p.results[1:]

	return r.url, r.err
}

func runManager(t *testing.T, m *Manager) {
	t.Helper()

	done := make(chan error, 1)

	go func() { done <- m.Start(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, m.Stop(ctx))
		require.NoError(t, <-done)
	})
}

func waitState(t *testing.T, m *Manager, want models.ConnectionState) {
	t.Helper()

	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s (is %s)", want, m.State())
}
