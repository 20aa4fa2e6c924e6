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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/lifecycle"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/session"
	"github.com/carverauto/collarlink/pkg/version"
)

var (
	errNoDiscovery    = errors.New("no discovery method: set --relay, --candidate or --mdns, or keep a cached endpoint")
	errCommandFailed  = errors.New("collar rejected command")
	errConnectTimeout = errors.New("timed out waiting for a connection")
)

// client runs a Connection Manager for the lifetime of one command.
type client struct {
	mgr     *connection.Manager
	log     logger.Logger
	replies chan models.Envelope
	done    chan error
}

// logConfig keeps stdout for command output; OTEL_* variables still apply.
func logConfig(s *settings) *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = s.v.GetString("log-level")
	cfg.Debug = false
	cfg.Output = "stderr"

	return cfg
}

func commandLogger(cmd *cobra.Command, s *settings) (logger.Logger, error) {
	return lifecycle.CreateComponentLogger(cmd.Context(), "collarctl", logConfig(s))
}

func sessionOptions(log logger.Logger) session.Options {
	return session.Options{
		Header: http.Header{"User-Agent": {version.UserAgent("collarctl")}},
		Logger: log,
	}
}

func openClient(cmd *cobra.Command, s *settings) (*client, error) {
	cfg := s.connectionConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := commandLogger(cmd, s)
	if err != nil {
		return nil, err
	}

	// Connection attempts are traced; spans are only exported when OTel is configured.
	if _, err := logger.InitializeTracing(cmd.Context(), logger.TracingConfig{
		ServiceName:    "collarctl",
		ServiceVersion: version.GetVersion(),
		OTel:           &logConfig(s).OTel,
	}); err != nil {
		log.Warn().Err(err).Msg("Tracing unavailable")
	}

	var store connection.EndpointStore = connection.NewMemoryStore()

	if cfg.CachePath != "" {
		fs, err := connection.NewFileStore(cfg.CachePath)
		if err != nil {
			return nil, err
		}

		store = fs
	}

	_, cached := store.Get()
	if cfg.RelayURL == "" && len(cfg.Candidates) == 0 && !cfg.MDNS && !cached {
		return nil, errNoDiscovery
	}

	sessOpts := sessionOptions(log)
	dialer := &connection.SessionDialer{Options: sessOpts}
	opts := []connection.Option{connection.WithLogger(log)}

	if cfg.RelayURL != "" {
		opts = append(opts, connection.WithSource(&connection.RelaySource{
			URL:     cfg.RelayURL,
			Options: sessOpts,
			Logger:  log,
		}))
	}

	if len(cfg.Candidates) > 0 || cfg.MDNS {
		opts = append(opts, connection.WithProber(&connection.DirectProber{
			Dialer:      dialer,
			Candidates:  cfg.Candidates,
			MDNS:        cfg.MDNS,
			Timeout:     cfg.ProbeTimeout.Std(),
			Concurrency: cfg.ProbeConcurrency,
			Logger:      log,
		}))
	}

	mgr, err := connection.NewManager(cfg, store, dialer, opts...)
	if err != nil {
		return nil, err
	}

	c := &client{
		mgr:     mgr,
		log:     log,
		replies: make(chan models.Envelope, 16),
		done:    make(chan error, 1),
	}

	mgr.OnMessage(func(data []byte) {
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed message")
			return
		}

		select {
		case c.replies <- env:
		default:
			log.Debug().Str("type", string(env.Type)).Msg("Reply buffer full, dropping message")
		}
	})

	go func() { c.done <- mgr.Start(cmd.Context()) }()

	return c, nil
}

func (c *client) waitConnected(ctx context.Context, timeout time.Duration) (connection.Snapshot, error) {
	updates, unsubscribe := c.mgr.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var last connection.Snapshot

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return last, errConnectTimeout
			}

			last = snap

			if snap.State == models.StateConnected {
				return snap, nil
			}
		case <-timer.C:
			if last.LastError != "" {
				return last, fmt.Errorf("%w (last error: %s)", errConnectTimeout, last.LastError)
			}

			return last, errConnectTimeout
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

// request sends a command and waits for the collar's answer to it.
func (c *client) request(ctx context.Context, t models.MessageType, data interface{}, timeout time.Duration) (models.Envelope, error) {
	env, err := models.NewEnvelope(t, data)
	if err != nil {
		return models.Envelope{}, err
	}

	if err := c.mgr.Send(ctx, env); err != nil {
		return models.Envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case reply := <-c.replies:
			if t == models.MessageGetStatus && reply.Type == models.MessageTelemetry {
				return reply, nil
			}

			if reply.Type != models.MessageAck && reply.Type != models.MessageError {
				continue
			}

			var ack models.CommandAck
			if err := reply.Decode(&ack); err != nil || ack.Command != t {
				continue
			}

			if reply.Type == models.MessageError {
				return reply, fmt.Errorf("%w: %s", errCommandFailed, reply.Error)
			}

			return reply, nil
		case <-timer.C:
			return models.Envelope{}, fmt.Errorf("no reply to %s", t)
		case <-ctx.Done():
			return models.Envelope{}, ctx.Err()
		}
	}
}

func (c *client) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defer func() { _ = lifecycle.ShutdownLogger() }()

	if err := c.mgr.Stop(ctx); err != nil {
		c.log.Debug().Err(err).Msg("Connection manager stop timed out")
		return
	}

	<-c.done
}

// withConnection connects, runs fn, and tears the connection down.
func withConnection(cmd *cobra.Command, s *settings, fn func(ctx context.Context, c *client, snap connection.Snapshot) error) error {
	c, err := openClient(cmd, s)
	if err != nil {
		return err
	}
	defer c.close()

	snap, err := c.waitConnected(cmd.Context(), s.v.GetDuration("wait"))
	if err != nil {
		return err
	}

	return fn(cmd.Context(), c, snap)
}
