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
	"sync/atomic"
	"time"

	"github.com/carverauto/collarlink/pkg/alert"
	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

const (
	eventQueueSize      = 64
	eventPublishTimeout = 5 * time.Second
	phaseStarted        = "started"
	phaseStopped        = "stopped"
)

// EventSink stores alert lifecycle events, e.g. natsutil.EventPublisher.
type EventSink interface {
	PublishAlertEvent(ctx context.Context, data models.AlertEventData) (uint64, error)
}

// alertEvents is an alert.Listener that hands events to a sink from its own
// goroutine, dropping them when the queue is full.
type alertEvents struct {
	sink     EventSink
	deviceID string
	clock    clock.Clock
	log      logger.Logger
	queue    chan models.AlertEventData
	dropped  atomic.Uint64
}

func newAlertEvents(sink EventSink, deviceID string, clk clock.Clock, log logger.Logger) *alertEvents {
	return &alertEvents{
		sink:     sink,
		deviceID: deviceID,
		clock:    clk,
		log:      log,
		queue:    make(chan models.AlertEventData, eventQueueSize),
	}
}

func (e *alertEvents) AlertStarted(a alert.Active) {
	e.enqueue(e.data(a, phaseStarted, "", a.StartedAt))
}

func (e *alertEvents) AlertStopped(a alert.Active, reason string) {
	e.enqueue(e.data(a, phaseStopped, reason, e.clock.Now()))
}

func (e *alertEvents) data(a alert.Active, phase, reason string, at time.Time) models.AlertEventData {
	return models.AlertEventData{
		DeviceID:   e.deviceID,
		BeaconID:   a.BeaconID,
		Phase:      phase,
		Modality:   a.Modality,
		Intensity:  a.Intensity,
		DurationMs: a.Duration.Milliseconds(),
		Reason:     reason,
		Timestamp:  at,
	}
}

func (e *alertEvents) enqueue(d models.AlertEventData) {
	select {
	case e.queue <- d:
	default:
		e.dropped.Add(1)
		e.log.Warn().Str("beacon_id", d.BeaconID).Str("phase", d.Phase).Msg("Alert event queue full, dropping event")
	}
}

func (e *alertEvents) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-e.queue:
			pctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
			seq, err := e.sink.PublishAlertEvent(pctx, d)
			cancel()

			if err != nil {
				e.log.Warn().Err(err).Str("beacon_id", d.BeaconID).Msg("Failed to publish alert event")
				continue
			}

			e.log.Debug().Uint64("seq", seq).Str("phase", d.Phase).Msg("Alert event published")
		}
	}
}

// sessionPush forwards alert notifications to connected session clients.
type sessionPush struct {
	server *Server
}

func (p sessionPush) AlertStarted(a alert.Active) {
	p.push(models.MessageAlertStarted, a, "")
}

func (p sessionPush) AlertStopped(a alert.Active, reason string) {
	p.push(models.MessageAlertStopped, a, reason)
}

func (p sessionPush) push(t models.MessageType, a alert.Active, reason string) {
	env, err := models.NewEnvelope(t, models.AlertNotice{
		BeaconID:   a.BeaconID,
		Modality:   a.Modality,
		Intensity:  a.Intensity,
		DurationMs: a.Duration.Milliseconds(),
		Reason:     reason,
	})
	if err != nil {
		return
	}

	p.server.Push(env)
}
