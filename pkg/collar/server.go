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

package collar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/session"
)

const (
	outboundQueue  = 32
	commandTimeout = 5 * time.Second
)

// CommandHandler executes session commands on behalf of the Server.
type CommandHandler interface {
	TriggerAlert(ctx context.Context, cmd models.TriggerAlertCommand) error
	StopAlert(ctx context.Context) error
	SetProximityConfig(ctx context.Context, cmd models.SetProximityConfigCommand) error
	Status(ctx context.Context) models.Telemetry
}

// Server accepts client sessions, answers their commands and fans pushed
// messages out to every connected client.
type Server struct {
	handler CommandHandler
	opts    session.Options
	log     logger.Logger

	mu      sync.RWMutex
	clients map[*session.Transport]struct{}

	outbound chan *models.Envelope
	dropped  atomic.Uint64
}

func NewServer(handler CommandHandler, opts session.Options, log logger.Logger) *Server {
	if opts.Logger == nil {
		opts.Logger = log
	}

	return &Server{
		handler:  handler,
		opts:     opts,
		log:      log,
		clients:  make(map[*session.Transport]struct{}),
		outbound: make(chan *models.Envelope, outboundQueue),
	}
}

// ServeHTTP upgrades the request to a session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tr, err := session.Accept(w, r, s.opts)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Session upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[tr] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()

	s.log.Info().Str("remote", tr.RemoteAddr()).Str("user_agent", r.UserAgent()).Int("clients", n).Msg("Client connected")

	tr.OnClose(func(err error) {
		s.mu.Lock()
		delete(s.clients, tr)
		s.mu.Unlock()

		s.log.Info().Err(err).Str("remote", tr.RemoteAddr()).Msg("Client disconnected")
	})

	tr.OnMessage(func(data []byte) { s.handle(tr, data) })
}

// handle runs on the session's read goroutine, so replies are ordered.
func (s *Server) handle(tr *session.Transport, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reply(tr, s.errorEnvelope("", fmt.Errorf("%w: %w", ErrInvalidCommand, err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error

	switch env.Type {
	case models.MessageTriggerAlert:
		var cmd models.TriggerAlertCommand
		if err = decode(&env, &cmd); err == nil {
			err = s.handler.TriggerAlert(ctx, cmd)
		}
	case models.MessageStopAlert:
		err = s.handler.StopAlert(ctx)
	case models.MessageSetProximityConfig:
		var cmd models.SetProximityConfigCommand
		if err = decode(&env, &cmd); err == nil {
			err = s.handler.SetProximityConfig(ctx, cmd)
		}
	case models.MessageGetStatus:
		out, encErr := models.NewEnvelope(models.MessageTelemetry, s.handler.Status(ctx))
		if encErr != nil {
			s.reply(tr, s.errorEnvelope(env.Type, encErr))
			return
		}

		s.reply(tr, out)

		return
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}

	if err != nil {
		s.log.Debug().Err(err).Str("command", string(env.Type)).Msg("Command rejected")
		s.reply(tr, s.errorEnvelope(env.Type, err))

		return
	}

	ack, _ := models.NewEnvelope(models.MessageAck, models.CommandAck{Command: env.Type})
	s.reply(tr, ack)
}

func decode(env *models.Envelope, dst interface{}) error {
	if err := env.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	return nil
}

func (s *Server) errorEnvelope(cmd models.MessageType, err error) *models.Envelope {
	env, _ := models.NewEnvelope(models.MessageError, models.CommandAck{Command: cmd})
	env.Error = err.Error()

	return env
}

func (s *Server) reply(tr *session.Transport, env *models.Envelope) {
	if err := tr.Send(env); err != nil {
		s.log.Debug().Err(err).Msg("Reply failed")
	}
}

// Push queues env for every connected client. It never blocks; when the
// queue is full the message is dropped.
func (s *Server) Push(env *models.Envelope) bool {
	select {
	case s.outbound <- env:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Run delivers pushed messages until ctx is done.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.outbound:
			s.broadcast(env)
		}
	}
}

func (s *Server) broadcast(env *models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode push")
		return
	}

	s.mu.RLock()
	clients := make([]*session.Transport, 0, len(s.clients))

	for tr := range s.clients {
		clients = append(clients, tr)
	}
	s.mu.RUnlock()

	for _, tr := range clients {
		if err := tr.SendRaw(data); err != nil {
			s.log.Debug().Err(err).Str("remote", tr.RemoteAddr()).Msg("Push failed")
		}
	}
}

// Clients is the number of open sessions.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// Dropped counts pushes lost to a full queue.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

// Close ends every session.
func (s *Server) Close() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*session.Transport]struct{})
	s.mu.Unlock()

	for tr := range clients {
		_ = tr.Close()
	}
}
