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

// Package natsutil connects to NATS and publishes collar events to JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

const (
	DefaultAlertStream   = "COLLAR_ALERTS"
	AlertSubjectPrefix   = "collar.alerts."
	alertEventType       = "com.carverauto.collarlink.alert"
	cloudEventsVersion   = "1.0"
	defaultPublishSource = "collarlink/collar"
)

var (
	ErrURLRequired = errors.New("nats url is required")
	ErrNoPhase     = errors.New("alert event phase is required")
)

// Config selects the NATS server and the JetStream resources collars use.
type Config struct {
	URL    string     `json:"url"`
	Stream string     `json:"stream,omitempty"`
	Domain string     `json:"domain,omitempty"`
	Bucket string     `json:"bucket,omitempty"`
	TLS    *TLSConfig `json:"tls,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.Stream == "" {
		c.Stream = DefaultAlertStream
	}

	return nil
}

// EventPublisher provides methods for publishing CloudEvents to NATS JetStream.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	source string
}

// NewEventPublisher creates a new EventPublisher for the specified stream.
// Events are stamped with source, e.g. "collarlink/collar/<device id>".
func NewEventPublisher(js jetstream.JetStream, streamName, source string) *EventPublisher {
	if source == "" {
		source = defaultPublishSource
	}

	return &EventPublisher{
		js:     js,
		stream: streamName,
		source: source,
	}
}

// AlertSubject returns the subject alert events of the given phase go to.
func AlertSubject(phase string) string {
	return AlertSubjectPrefix + phase
}

// PublishAlertEvent publishes an alert lifecycle event to the alerts stream
// and returns the stream sequence it was stored at.
func (p *EventPublisher) PublishAlertEvent(ctx context.Context, data models.AlertEventData) (uint64, error) {
	if data.Phase == "" {
		return 0, ErrNoPhase
	}

	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now()
	}

	event := models.CloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            alertEventType + "." + data.Phase,
		DataContentType: "application/json",
		Subject:         AlertSubject(data.Phase),
		Time:            &data.Timestamp,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert event: %w", err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to publish alert event: %w", err)
	}

	return ack.Sequence, nil
}

// Connect opens a NATS connection, with mTLS when cfg.TLS is set, and logs
// connection state changes through log.
func Connect(ctx context.Context, cfg *Config, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []nats.Option{nats.Name("collarlink")}

	if cfg.TLS != nil {
		tlsConf, err := cfg.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

// CreateEventPublisher creates an EventPublisher for an existing NATS
// connection, creating the alerts stream if it does not exist yet.
func CreateEventPublisher(ctx context.Context, nc *nats.Conn, cfg *Config, source string) (*EventPublisher, error) {
	var (
		js  jetstream.JetStream
		err error
	)

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context with domain %s: %w", cfg.Domain, err)
		}
	} else {
		js, err = jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultAlertStream
	}

	if _, err = js.Stream(ctx, stream); err != nil {
		if !isStreamMissingErr(err) {
			return nil, fmt.Errorf("failed to look up stream %s: %w", stream, err)
		}

		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     stream,
			Subjects: []string{AlertSubjectPrefix + "*"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create or get stream %s: %w", stream, err)
		}
	}

	return NewEventPublisher(js, stream, source), nil
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse)
}
