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

package alert

import (
	"time"

	"github.com/carverauto/collarlink/pkg/models"
)

// Request asks the dispatcher to run an alert for a beacon.
type Request struct {
	BeaconID   string
	DistanceCm float64
	Modality   models.AlertModality
	Intensity  int
	Duration   time.Duration
	Pattern    models.AlertPattern
}

// Active is the alert currently driving the outputs.
type Active struct {
	Request
	Level     uint8
	StartedAt time.Time
}

// DistanceFunc returns a beacon's current distance, or false when unknown.
type DistanceFunc func(beaconID string) (float64, bool)

// Decision is the outcome of arbitrating a request against the active alert.
type Decision int

const (
	Accept Decision = iota
	Queue
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Queue:
		return "queue"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Arbitrate decides what to do with candidate given the active alert. A busy
// dispatcher only queues a candidate that is currently closer than the beacon
// being alerted; anything with an unknown distance is rejected.
func Arbitrate(candidate Request, active *Active, distanceOf DistanceFunc) Decision {
	if active == nil {
		return Accept
	}

	if candidate.BeaconID == active.BeaconID || distanceOf == nil {
		return Reject
	}

	cd, ok := distanceOf(candidate.BeaconID)
	if !ok {
		return Reject
	}

	ad, ok := distanceOf(active.BeaconID)
	if !ok {
		return Reject
	}

	if cd < ad {
		return Queue
	}

	return Reject
}
