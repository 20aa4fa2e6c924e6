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

// Package distance converts received signal strength into a distance estimate.
package distance

import "math"

const (
	// Unknown is the DistanceCm reported when no estimate is possible.
	Unknown = -1.0

	// DefaultTxPower is the calibrated RSSI at one metre, in dBm.
	DefaultTxPower = -59

	// Physical RSSI range of the radio, in dBm.
	MinRSSI = -127
	MaxRSSI = -1

	qualityFloor   = -100.0
	qualityCeiling = -30.0

	cmPerMetre = 100.0
)

// Result is the result of converting one RSSI sample.
type Result struct {
	DistanceCm float64
	Quality    float64
	Known      bool
}

// Estimator applies the log-distance model for a given transmit power.
type Estimator struct {
	TxPower int
}

// NewEstimator returns an Estimator using txPower, or DefaultTxPower when txPower is 0.
func NewEstimator(txPower int) *Estimator {
	if txPower == 0 {
		txPower = DefaultTxPower
	}

	return &Estimator{TxPower: txPower}
}

//nolint:gochecknoglobals // shared default estimator
var defaultEstimator = NewEstimator(DefaultTxPower)

// Estimate converts rssi using the default transmit power.
func Estimate(rssi int) Result {
	return defaultEstimator.Estimate(rssi)
}

// Estimate converts rssi (dBm) into a distance in centimetres. An rssi of 0
// means "no reading" and yields an unknown estimate. Other inputs are clamped
// to [MinRSSI, MaxRSSI], so the result is finite, non-negative and
// non-increasing as rssi grows.
func (e *Estimator) Estimate(rssi int) Result {
	if rssi == 0 {
		return Result{DistanceCm: Unknown}
	}

	rssi = clamp(rssi, MinRSSI, MaxRSSI)

	txPower := e.TxPower
	if txPower >= 0 {
		txPower = DefaultTxPower
	}

	ratio := float64(rssi) / float64(txPower)

	var metres float64
	if ratio < 1.0 {
		metres = math.Pow(ratio, 10)
	} else {
		metres = 0.89976*math.Pow(ratio, 7.7095) + 0.111
	}

	return Result{
		DistanceCm: metres * cmPerMetre,
		Quality:    Quality(rssi),
		Known:      true,
	}
}

// Quality maps rssi linearly from [-100, -30] dBm onto [0, 1].
func Quality(rssi int) float64 {
	q := (float64(rssi) - qualityFloor) / (qualityCeiling - qualityFloor)

	return math.Max(0, math.Min(1, q))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
