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
	"time"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/session"
)

const defaultRelayRetry = 3 * time.Second

// RelaySource subscribes to a discovery relay and reconnects to it whenever
// the subscription drops.
type RelaySource struct {
	URL           string
	RetryInterval time.Duration
	Options       session.Options
	Logger        logger.Logger
}

// Run implements AnnouncementSource.
func (r *RelaySource) Run(ctx context.Context, out chan<- models.DeviceAnnouncement) error {
	log := r.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	retry := r.RetryInterval
	if retry <= 0 {
		retry = defaultRelayRetry
	}

	for {
		tr, err := session.Dial(ctx, r.URL, r.Options)
		if err != nil {
			log.Debug().Err(err).Str("relay", r.URL).Msg("Relay unavailable")
		} else {
			log.Info().Str("relay", r.URL).Msg("Subscribed to relay")
			r.consume(ctx, tr, out, log)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func (r *RelaySource) consume(ctx context.Context, tr *session.Transport, out chan<- models.DeviceAnnouncement, log logger.Logger) {
	defer func() { _ = tr.Close() }()

	tr.OnMessage(func(data []byte) {
		ann, err := models.ParseAnnouncement(data)
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring relay message")
			return
		}

		select {
		case out <- *ann:
		case <-ctx.Done():
		}
	})

	select {
	case <-ctx.Done():
	case <-tr.Done():
		log.Info().Err(tr.Err()).Str("relay", r.URL).Msg("Relay subscription lost")
	}
}
