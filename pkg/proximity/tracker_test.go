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

package proximity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/alert"
	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

//nolint:gochecknoglobals // fixed test epoch
var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func obs(id string, cm float64, at time.Time) models.BeaconObservation {
	return models.BeaconObservation{BeaconID: id, DistanceCm: cm, Known: true, Timestamp: at}
}

func newTestTracker(t *testing.T, configs map[string]models.ProximityConfig) *Tracker {
	t.Helper()

	store := NewMemoryConfigStore()
	for id, cfg := range configs {
		require.NoError(t, store.Set(id, cfg))
	}

	return NewTracker(Config{}, store, logger.NewTestLogger())
}

func immediateConfig() models.ProximityConfig {
	cfg := models.DefaultProximityConfig()
	cfg.TriggerDistanceCm = 5
	cfg.Modality = models.ModalityBoth
	cfg.Intensity = 3
	cfg.Duration = models.Duration(2 * time.Second)

	return cfg
}

func TestImmediateTriggerWithoutDelay(t *testing.T) {
	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": immediateConfig()})

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 40, t0)}))

	starts := tr.Evaluate(t0.Add(time.Second), []models.BeaconObservation{obs("b1", 3, t0.Add(time.Second))})
	require.Len(t, starts, 1)

	assert.Equal(t, "b1", starts[0].BeaconID)
	assert.Equal(t, models.ModalityBoth, starts[0].Modality)
	assert.Equal(t, 3, starts[0].Intensity)
	assert.Equal(t, 2*time.Second, starts[0].Duration)

	st, ok := tr.State("b1")
	require.True(t, ok)
	assert.Equal(t, models.ProximityCooldown, st.State)
}

func TestDelayModeRespectsDwell(t *testing.T) {
	cfg := immediateConfig()
	cfg.DelayEnabled = true
	cfg.Delay = models.Duration(3 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": cfg})

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 2, t0)}))

	st, _ := tr.State("b1")
	assert.Equal(t, models.ProximityInRangePending, st.State)

	assert.Empty(t, tr.Evaluate(t0.Add(2*time.Second), []models.BeaconObservation{obs("b1", 2, t0.Add(2*time.Second))}))

	starts := tr.Evaluate(t0.Add(3*time.Second), []models.BeaconObservation{obs("b1", 2, t0.Add(3*time.Second))})
	require.Len(t, starts, 1)
}

func TestDwellAbortedWhenBeaconLeaves(t *testing.T) {
	cfg := immediateConfig()
	cfg.TriggerDistanceCm = 20
	cfg.DelayEnabled = true
	cfg.Delay = models.Duration(3 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": cfg})

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 10, t0)}))

	at := t0.Add(2 * time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 30, at)}))

	st, _ := tr.State("b1")
	assert.Equal(t, models.ProximityOutOfRange, st.State)

	// Re-entry restarts the dwell from scratch.
	at = t0.Add(4 * time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 10, at)}))
}

func TestClosestCandidateWinsAndOthersAreHeld(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(5 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"near": cfg, "far": cfg})

	starts := tr.Evaluate(t0, []models.BeaconObservation{obs("far", 4, t0), obs("near", 1, t0)})
	require.Len(t, starts, 1)
	assert.Equal(t, "near", starts[0].BeaconID)

	far, _ := tr.State("far")
	assert.Equal(t, models.ProximityInRangePending, far.State)

	at := t0.Add(2 * time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("far", 4, at), obs("near", 30, at)}))

	at = t0.Add(5 * time.Second)
	starts = tr.Evaluate(at, []models.BeaconObservation{obs("far", 4, at), obs("near", 30, at)})
	require.Len(t, starts, 1)
	assert.Equal(t, "far", starts[0].BeaconID)
}

func TestTieBrokenByBeaconID(t *testing.T) {
	cfg := immediateConfig()
	tr := newTestTracker(t, map[string]models.ProximityConfig{"b": cfg, "a": cfg})

	starts := tr.Evaluate(t0, []models.BeaconObservation{obs("b", 2, t0), obs("a", 2, t0)})
	require.Len(t, starts, 1)
	assert.Equal(t, "a", starts[0].BeaconID)
}

func TestCooldownReevaluatesAgainstDistance(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(5 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": cfg})

	require.Len(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 2, t0)}), 1)

	at := t0.Add(4 * time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 2, at)}))

	at = t0.Add(6 * time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 50, at)}))

	st, _ := tr.State("b1")
	assert.Equal(t, models.ProximityOutOfRange, st.State)
}

func TestStillInRangeAfterCooldownRetriggers(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(5 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": cfg})

	require.Len(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 2, t0)}), 1)

	at := t0.Add(5 * time.Second)
	assert.Len(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 2, at)}), 1)
}

func TestUnknownObservationDoesNotAdvance(t *testing.T) {
	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": immediateConfig()})

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 40, t0)}))

	unknown := models.BeaconObservation{BeaconID: "b1", DistanceCm: -1, Timestamp: t0.Add(time.Second)}
	assert.Empty(t, tr.Evaluate(t0.Add(time.Second), []models.BeaconObservation{unknown}))

	st, ok := tr.State("b1")
	require.True(t, ok)
	assert.Equal(t, models.ProximityOutOfRange, st.State)
	assert.InDelta(t, 40.0, st.Last.DistanceCm, 0)
	assert.Equal(t, t0.Add(time.Second), st.LastSeen)
}

func TestModalityNoneNeverTriggers(t *testing.T) {
	cfg := immediateConfig()
	cfg.Modality = models.ModalityNone

	tr := newTestTracker(t, map[string]models.ProximityConfig{"b1": cfg})

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 1, t0)}))

	st, _ := tr.State("b1")
	assert.Equal(t, models.ProximityInRangePending, st.State)
}

func TestStaleBeaconsAreRemoved(t *testing.T) {
	tr := newTestTracker(t, nil)

	tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 100, t0)})
	require.Len(t, tr.Snapshot(), 1)

	tr.Evaluate(t0.Add(DefaultStaleness+time.Second), nil)
	assert.Empty(t, tr.Snapshot())
}

func TestConfigChangeAppliesNextCycle(t *testing.T) {
	store := NewMemoryConfigStore()
	cfg := immediateConfig()
	cfg.TriggerDistanceCm = 1
	require.NoError(t, store.Set("b1", cfg))

	tr := NewTracker(Config{}, store, nil)

	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 3, t0)}))

	cfg.TriggerDistanceCm = 5
	require.NoError(t, store.Set("b1", cfg))

	at := t0.Add(time.Second)
	assert.Len(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 3, at)}), 1)
}

func TestBeaconEnteringDuringCooldownTriggersImmediately(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(5 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"a": cfg, "b": cfg})

	at := t0.Add(time.Second)
	starts := tr.Evaluate(at, []models.BeaconObservation{obs("a", 2, at)})
	require.Len(t, starts, 1)
	assert.Equal(t, "a", starts[0].BeaconID)

	// b was not a candidate when a won, so a's cooldown does not hold it.
	at = t0.Add(4 * time.Second)
	starts = tr.Evaluate(at, []models.BeaconObservation{obs("a", 2, at), obs("b", 2, at)})
	require.Len(t, starts, 1)
	assert.Equal(t, "b", starts[0].BeaconID)

	b, _ := tr.State("b")
	assert.Equal(t, models.ProximityCooldown, b.State)

	a, _ := tr.State("a")
	assert.Equal(t, models.ProximityCooldown, a.State)
}

func TestHoldClearedWhenLoserLeavesRange(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(5 * time.Second)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"near": cfg, "far": cfg})

	require.Len(t, tr.Evaluate(t0, []models.BeaconObservation{obs("near", 1, t0), obs("far", 4, t0)}), 1)

	far, _ := tr.State("far")
	assert.Equal(t, t0.Add(5*time.Second), far.HoldUntil)

	at := t0.Add(time.Second)
	assert.Empty(t, tr.Evaluate(at, []models.BeaconObservation{obs("far", 40, at)}))

	at = t0.Add(2 * time.Second)
	starts := tr.Evaluate(at, []models.BeaconObservation{obs("far", 4, at)})
	require.Len(t, starts, 1)
	assert.Equal(t, "far", starts[0].BeaconID)
}

type concurrencyListener struct {
	mu      sync.Mutex
	running int
	peak    int
	started int
}

func (l *concurrencyListener) AlertStarted(alert.Active) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.running++
	l.started++

	if l.running > l.peak {
		l.peak = l.running
	}
}

func (l *concurrencyListener) AlertStopped(alert.Active, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.running--
}

func TestAtMostOneAlertAcrossBeacons(t *testing.T) {
	cfg := immediateConfig()
	cfg.Cooldown = models.Duration(time.Second)
	cfg.Duration = models.Duration(1500 * time.Millisecond)

	tr := newTestTracker(t, map[string]models.ProximityConfig{"a": cfg, "b": cfg, "c": cfg})
	clk := clock.NewFake(t0)
	listener := &concurrencyListener{}

	d, err := alert.NewDispatcher(alert.Config{}, alert.NewLogActuator(logger.NewTestLogger()), tr.DistanceOf,
		alert.WithClock(clk), alert.WithListener(listener))
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		clk.Advance(250 * time.Millisecond)
		at := clk.Now()

		starts := tr.Evaluate(at, []models.BeaconObservation{
			obs("a", float64(1+i%3), at),
			obs("b", float64(1+(i+1)%3), at),
			obs("c", float64(1+(i+2)%3), at),
		})
		require.LessOrEqual(t, len(starts), 1, "pass %d", i)

		for _, s := range starts {
			d.OnAlertStart(alert.Request{
				BeaconID:   s.BeaconID,
				DistanceCm: s.DistanceCm,
				Modality:   s.Modality,
				Intensity:  s.Intensity,
				Duration:   s.Duration,
				Pattern:    s.Pattern,
			})
		}

		for _, b := range tr.Snapshot() {
			require.NotEqual(t, models.ProximityTriggered, b.State)
		}
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()

	assert.Equal(t, 1, listener.peak)
	assert.Greater(t, listener.started, 1)
}

func TestDefaultConfigUsedWhenStoreEmpty(t *testing.T) {
	tr := NewTracker(Config{}, nil, nil)

	// default trigger distance is 2cm
	assert.Empty(t, tr.Evaluate(t0, []models.BeaconObservation{obs("b1", 3, t0)}))

	at := t0.Add(time.Second)
	assert.Len(t, tr.Evaluate(at, []models.BeaconObservation{obs("b1", 1.5, at)}), 1)

	d, ok := tr.DistanceOf("b1")
	require.True(t, ok)
	assert.InDelta(t, 1.5, d, 0)
}
