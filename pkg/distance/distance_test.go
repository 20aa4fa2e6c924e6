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

package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateUnknown(t *testing.T) {
	est := Estimate(0)

	assert.False(t, est.Known)
	assert.InDelta(t, Unknown, est.DistanceCm, 0)
}

func TestEstimateAtTxPowerIsAboutOneMetre(t *testing.T) {
	est := Estimate(DefaultTxPower)

	require.True(t, est.Known)
	// ratio == 1 takes the far branch: 0.89976 + 0.111 metres
	assert.InDelta(t, 101.076, est.DistanceCm, 0.01)
}

func TestEstimateFiniteAndMonotonic(t *testing.T) {
	prev := math.Inf(1)

	for rssi := -200; rssi <= 40; rssi++ {
		if rssi == 0 {
			continue
		}

		est := Estimate(rssi)
		require.True(t, est.Known, "rssi %d", rssi)
		require.False(t, math.IsNaN(est.DistanceCm) || math.IsInf(est.DistanceCm, 0), "rssi %d", rssi)
		require.GreaterOrEqual(t, est.DistanceCm, 0.0, "rssi %d", rssi)
		require.LessOrEqual(t, est.DistanceCm, prev, "distance must not grow as rssi rises (rssi %d)", rssi)

		prev = est.DistanceCm
	}
}

func TestEstimateCloseRangeIsCentimetres(t *testing.T) {
	near := Estimate(-30)
	far := Estimate(-90)

	assert.Less(t, near.DistanceCm, 5.0)
	assert.Greater(t, far.DistanceCm, 1000.0)
}

func TestQuality(t *testing.T) {
	tests := []struct {
		rssi int
		want float64
	}{
		{rssi: -120, want: 0},
		{rssi: -100, want: 0},
		{rssi: -65, want: 0.5},
		{rssi: -30, want: 1},
		{rssi: -10, want: 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Quality(tt.rssi), 0.0001, "rssi %d", tt.rssi)
	}
}

func TestNewEstimatorDefaultsTxPower(t *testing.T) {
	assert.Equal(t, DefaultTxPower, NewEstimator(0).TxPower)

	custom := NewEstimator(-65)
	assert.InDelta(t, 101.076, custom.Estimate(-65).DistanceCm, 0.01)
}
