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

package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/carverauto/collarlink/pkg/logger"
)

const (
	dropQueueFull   = "queue_full"
	dropWriteFailed = "write_failed"
	dropClosed      = "closed"
	dropShutdown    = "shutdown"
)

// Conn is the subscriber side of a relay connection. *session.Transport
// satisfies it.
type Conn interface {
	SendRaw(data []byte) error
	OnClose(h func(error))
	Close() error
}

// Hub fans announcements out to subscribers. Each subscriber has its own
// bounded queue and writer, so a slow subscriber never stalls the others.
type Hub struct {
	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	queueSize int
	closed    bool
	log       logger.Logger
	dropped   atomic.Uint64
}

type subscriber struct {
	conn  Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func NewHub(queueSize int, log logger.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Hub{
		subs:      make(map[*subscriber]struct{}),
		queueSize: queueSize,
		log:       log,
	}
}

// Add registers conn and starts its writer. Connections added after Close are
// closed immediately.
func (h *Hub) Add(conn Conn) {
	s := &subscriber{
		conn:  conn,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()

		_ = conn.Close()

		return
	}

	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	recordSubscriberDelta(context.Background(), 1)
	h.log.Info().Int("subscribers", n).Msg("Subscriber connected")

	go h.writeLoop(s)

	conn.OnClose(func(error) { h.remove(s, dropClosed) })
}

func (h *Hub) writeLoop(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.conn.SendRaw(msg); err != nil {
				h.log.Debug().Err(err).Msg("Subscriber write failed")
				h.remove(s, dropWriteFailed)

				return
			}
		}
	}
}

// Broadcast enqueues data for every subscriber without blocking. Subscribers
// whose queue is full are dropped. It returns the number of subscribers the
// message was enqueued for.
func (h *Hub) Broadcast(ctx context.Context, data []byte) int {
	var full []*subscriber

	delivered := 0

	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.queue <- data:
			delivered++
		default:
			full = append(full, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range full {
		h.remove(s, dropQueueFull)
	}

	recordForwarded(ctx, delivered)

	return delivered
}

func (h *Hub) remove(s *subscriber, reason string) {
	h.mu.Lock()
	if _, ok := h.subs[s]; !ok {
		h.mu.Unlock()
		return
	}

	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()

	s.stop()
	_ = s.conn.Close()

	recordSubscriberDelta(context.Background(), -1)

	if reason != dropClosed && reason != dropShutdown {
		h.dropped.Add(1)
		recordDropped(context.Background(), reason)
	}

	h.log.Info().Str("reason", reason).Int("subscribers", n).Msg("Subscriber removed")
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns how many subscribers were dropped for being slow or broken.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s, dropShutdown)
	}
}
