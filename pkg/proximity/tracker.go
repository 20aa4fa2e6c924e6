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

// Package proximity turns per-cycle beacon observations into debounced,
// rate-limited alert starts.
package proximity

import (
	"sort"
	"sync"
	"time"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

// DefaultStaleness is how long a beacon may go unheard before it is forgotten.
const DefaultStaleness = 30 * time.Second

// BeaconState is the tracker's view of one beacon.
type BeaconState struct {
	BeaconID    string
	State       models.ProximityStateKind
	EnteredAt   time.Time
	LastAlertAt time.Time
	LastSeen    time.Time
	Last        models.BeaconObservation
	HasDistance bool
	// HoldUntil is set when the beacon lost a pass to a closer one; it may
	// not trigger before the winner's cooldown ends.
	HoldUntil time.Time
}

// AlertStart is emitted when a beacon wins a pass and moves to Triggered.
type AlertStart struct {
	BeaconID   string
	DistanceCm float64
	Modality   models.AlertModality
	Intensity  int
	Duration   time.Duration
	Pattern    models.AlertPattern
	At         time.Time
}

type Config struct {
	Staleness time.Duration
	// Default applies to beacons the store has no entry for.
	Default models.ProximityConfig
}

// Tracker runs the per-beacon proximity state machines. Evaluate is the only
// mutator and is expected to be called once per scan cycle.
type Tracker struct {
	mu        sync.RWMutex
	beacons   map[string]*BeaconState
	store     ConfigStore
	defaults  models.ProximityConfig
	staleness time.Duration
	log       logger.Logger
}

// NewTracker creates a tracker reading per-beacon config from store, which may be nil.
func NewTracker(cfg Config, store ConfigStore, log logger.Logger) *Tracker {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}

	if cfg.Default.Validate() != nil {
		cfg.Default = models.DefaultProximityConfig()
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Tracker{
		beacons:   make(map[string]*BeaconState),
		store:     store,
		defaults:  cfg.Default,
		staleness: cfg.Staleness,
		log:       log,
	}
}

func (t *Tracker) configFor(beaconID string) models.ProximityConfig {
	if t.store != nil {
		if cfg, ok := t.store.Get(beaconID); ok {
			return cfg
		}
	}

	return t.defaults
}

type candidate struct {
	state *BeaconState
	cfg   models.ProximityConfig
}

// Evaluate records one scan cycle of observations and advances every beacon.
// All observations are applied before the winner is chosen, so the result
// holds at most one AlertStart.
func (t *Tracker) Evaluate(now time.Time, observations []models.BeaconObservation) []AlertStart {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make(map[string]bool, len(observations))

	for i := range observations {
		obs := observations[i]
		if obs.BeaconID == "" {
			continue
		}

		b, ok := t.beacons[obs.BeaconID]
		if !ok {
			b = &BeaconState{BeaconID: obs.BeaconID, State: models.ProximityOutOfRange, EnteredAt: now}
			t.beacons[obs.BeaconID] = b
		}

		seen := obs.Timestamp
		if seen.IsZero() {
			seen = now
		}

		b.LastSeen = seen

		if !obs.Known {
			continue
		}

		b.Last = obs
		b.HasDistance = true
		fresh[obs.BeaconID] = true
	}

	t.evictStale(now)

	var candidates []candidate

	for _, id := range t.sortedIDs() {
		if !fresh[id] {
			continue
		}

		b := t.beacons[id]
		cfg := t.configFor(id)

		if t.advance(now, b, cfg) {
			candidates = append(candidates, candidate{state: b, cfg: cfg})
		}
	}

	winner, ok := t.pick(candidates)
	if !ok {
		return nil
	}

	b := winner.state
	b.State = models.ProximityTriggered
	b.HoldUntil = time.Time{}

	start := AlertStart{
		BeaconID:   b.BeaconID,
		DistanceCm: b.Last.DistanceCm,
		Modality:   winner.cfg.Modality,
		Intensity:  winner.cfg.Intensity,
		Duration:   winner.cfg.Duration.Std(),
		Pattern:    winner.cfg.Pattern,
		At:         now,
	}

	b.State = models.ProximityCooldown
	b.EnteredAt = now
	b.LastAlertAt = now

	release := now.Add(winner.cfg.Cooldown.Std())

	for _, c := range candidates {
		if c.state != b {
			c.state.HoldUntil = release
		}
	}

	t.log.Debug().
		Str("beacon_id", b.BeaconID).
		Float64("distance_cm", b.Last.DistanceCm).
		Int("held", len(candidates)-1).
		Msg("Beacon triggered")

	return []AlertStart{start}
}

// advance applies the distance-driven transitions for one beacon and reports
// whether it is ready to trigger.
func (t *Tracker) advance(now time.Time, b *BeaconState, cfg models.ProximityConfig) bool {
	inRange := b.Last.DistanceCm <= cfg.TriggerDistanceCm

	switch b.State {
	case models.ProximityCooldown:
		if now.Sub(b.LastAlertAt) < cfg.Cooldown.Std() {
			return false
		}

		if !inRange {
			t.transition(b, models.ProximityOutOfRange, now)
			return false
		}

		t.transition(b, models.ProximityInRangePending, now)
	case models.ProximityOutOfRange:
		if !inRange {
			return false
		}

		t.transition(b, models.ProximityInRangePending, now)
	case models.ProximityInRangePending:
		if !inRange {
			t.transition(b, models.ProximityOutOfRange, now)
			return false
		}
	case models.ProximityTriggered:
		// not reachable between passes
		return false
	}

	if cfg.Modality == models.ModalityNone {
		return false
	}

	if cfg.DelayEnabled && now.Sub(b.EnteredAt) < cfg.Delay.Std() {
		return false
	}

	return !now.Before(b.HoldUntil)
}

func (t *Tracker) transition(b *BeaconState, to models.ProximityStateKind, now time.Time) {
	t.log.Debug().
		Str("beacon_id", b.BeaconID).
		Str("from", string(b.State)).
		Str("to", string(to)).
		Float64("distance_cm", b.Last.DistanceCm).
		Msg("Proximity transition")

	b.State = to
	b.EnteredAt = now

	if to == models.ProximityOutOfRange {
		b.HoldUntil = time.Time{}
	}
}

// pick selects the closest ready beacon, breaking ties by id.
func (t *Tracker) pick(candidates []candidate) (candidate, bool) {
	if len(candidates) == 0 {
		return candidate{}, false
	}

	best := candidates[0]

	for _, c := range candidates[1:] {
		d, bestD := c.state.Last.DistanceCm, best.state.Last.DistanceCm
		if d < bestD || (d == bestD && c.state.BeaconID < best.state.BeaconID) {
			best = c
		}
	}

	return best, true
}

func (t *Tracker) evictStale(now time.Time) {
	for id, b := range t.beacons {
		if now.Sub(b.LastSeen) > t.staleness {
			t.log.Debug().Str("beacon_id", id).Msg("Removing stale beacon")
			delete(t.beacons, id)
		}
	}
}

func (t *Tracker) sortedIDs() []string {
	ids := make([]string, 0, len(t.beacons))
	for id := range t.beacons {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Snapshot returns a copy of every tracked beacon, ordered by id.
func (t *Tracker) Snapshot() []BeaconState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]BeaconState, 0, len(t.beacons))
	for _, id := range t.sortedIDs() {
		out = append(out, *t.beacons[id])
	}

	return out
}

// DistanceOf returns the latest known distance of a beacon.
func (t *Tracker) DistanceOf(beaconID string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.beacons[beaconID]
	if !ok || !b.HasDistance {
		return 0, false
	}

	return b.Last.DistanceCm, true
}

// State returns a copy of one beacon's state.
func (t *Tracker) State(beaconID string) (BeaconState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.beacons[beaconID]
	if !ok {
		return BeaconState{}, false
	}

	return *b, true
}
