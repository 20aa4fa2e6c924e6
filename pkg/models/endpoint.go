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

package models

import "time"

// EndpointEvictionThreshold is the number of consecutive failed connection
// attempts after which a cached endpoint is evicted.
const EndpointEvictionThreshold = 2

// DiscoveryMethod records how a session endpoint was found.
type DiscoveryMethod string

const (
	DiscoveryCached DiscoveryMethod = "cached"
	DiscoveryRelay  DiscoveryMethod = "relay"
	DiscoveryProbe  DiscoveryMethod = "probe"
)

// CachedEndpoint is the client-side record of the last known good session endpoint.
type CachedEndpoint struct {
	URL                 string          `json:"url"`
	Method              DiscoveryMethod `json:"method"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastSuccess         time.Time       `json:"last_success,omitempty"`
}

// Usable reports whether the endpoint is still below the eviction threshold.
func (c *CachedEndpoint) Usable() bool {
	return c != nil && c.URL != "" && c.ConsecutiveFailures < EndpointEvictionThreshold
}

// ConnectionState is the Connection Manager's session state.
type ConnectionState string

const (
	StateIdle        ConnectionState = "idle"
	StateDiscovering ConnectionState = "discovering"
	StateConnecting  ConnectionState = "connecting"
	StateConnected   ConnectionState = "connected"
	StateFailed      ConnectionState = "failed"
)
