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
	"sync"
)

// Reading is one raw advertisement heard during a scan.
type Reading struct {
	BeaconID string
	RSSI     int
}

// Scanner returns the beacons heard since the previous call.
type Scanner interface {
	Scan(ctx context.Context) ([]Reading, error)
}

// SimScanner replays per-beacon rssi scripts, looping each script once it
// runs out. It stands in for the radio on development hosts.
type SimScanner struct {
	mu      sync.Mutex
	beacons []SimulatedBeacon
	pos     []int
}

func NewSimScanner(beacons []SimulatedBeacon) *SimScanner {
	return &SimScanner{beacons: beacons, pos: make([]int, len(beacons))}
}

// Scan implements Scanner.
func (s *SimScanner) Scan(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Reading, 0, len(s.beacons))

	for i, b := range s.beacons {
		if len(b.RSSI) == 0 {
			continue
		}

		rssi := b.RSSI[s.pos[i]%len(b.RSSI)]
		s.pos[i]++

		if rssi == 0 {
			continue
		}

		out = append(out, Reading{BeaconID: b.ID, RSSI: rssi})
	}

	return out, nil
}
