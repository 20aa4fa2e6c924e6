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

//go:generate mockgen -destination=mock_connection.go -package=connection github.com/carverauto/collarlink/pkg/connection Dialer,EndpointStore,Session

import (
	"context"

	"github.com/carverauto/collarlink/pkg/models"
)

// Session is an open bidirectional session. *session.Transport satisfies it.
type Session interface {
	Send(msg any) error
	OnMessage(h func([]byte))
	OnClose(h func(error))
	Close() error
}

// Dialer opens sessions to collar endpoints.
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

// EndpointStore persists the last known good endpoint.
type EndpointStore interface {
	Get() (*models.CachedEndpoint, bool)
	// RecordCandidate creates an unverified entry for url when the cache is
	// empty and reports whether it did. An existing entry is left untouched.
	RecordCandidate(url string, method models.DiscoveryMethod) (bool, error)
	// RecordSuccess stores url as the cached endpoint with a zero failure count.
	RecordSuccess(url string, method models.DiscoveryMethod) error
	// RecordFailure bumps the failure count of url if it is the cached
	// endpoint and returns the new count.
	RecordFailure(url string) (int, error)
	Evict(url string) error
}

// AnnouncementSource delivers device announcements until ctx is cancelled.
type AnnouncementSource interface {
	Run(ctx context.Context, out chan<- models.DeviceAnnouncement) error
}

// Prober looks for a responsive endpoint without any announcement.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}
