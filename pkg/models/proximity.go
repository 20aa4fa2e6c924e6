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

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidIntensity       = errors.New("intensity must be between 1 and 5")
	ErrInvalidTriggerDistance = errors.New("trigger distance must be positive")
	ErrInvalidModality        = errors.New("unknown alert modality")
	ErrInvalidPattern         = errors.New("unknown alert pattern")
	ErrNegativeDuration       = errors.New("durations must not be negative")
)

const (
	MinIntensity = 1
	MaxIntensity = 5
)

// AlertModality selects which actuator outputs an alert drives.
type AlertModality string

const (
	ModalityNone      AlertModality = "none"
	ModalityPrimary   AlertModality = "primary"
	ModalitySecondary AlertModality = "secondary"
	ModalityBoth      AlertModality = "both"
)

// UsesPrimary reports whether the primary (buzzer) output is driven.
func (m AlertModality) UsesPrimary() bool {
	return m == ModalityPrimary || m == ModalityBoth
}

// UsesSecondary reports whether the secondary (vibration) output is driven.
func (m AlertModality) UsesSecondary() bool {
	return m == ModalitySecondary || m == ModalityBoth
}

func (m AlertModality) valid() bool {
	switch m {
	case ModalityNone, ModalityPrimary, ModalitySecondary, ModalityBoth:
		return true
	default:
		return false
	}
}

// AlertPattern is the on/off shape of an alert.
type AlertPattern string

const (
	PatternContinuous AlertPattern = "continuous"
	PatternPulse      AlertPattern = "pulse"
	PatternRapid      AlertPattern = "rapid"
	PatternSOS        AlertPattern = "sos"
)

func (p AlertPattern) valid() bool {
	switch p {
	case PatternContinuous, PatternPulse, PatternRapid, PatternSOS:
		return true
	default:
		return false
	}
}

// ProximityConfig is the per-beacon alerting configuration. It is owned by
// the configuration store and read fresh on every evaluation pass.
type ProximityConfig struct {
	TriggerDistanceCm float64       `json:"trigger_distance_cm"`
	DelayEnabled      bool          `json:"delay_enabled"`
	Delay             Duration      `json:"delay"`
	Modality          AlertModality `json:"modality"`
	Intensity         int           `json:"intensity"`
	Duration          Duration      `json:"duration"`
	Cooldown          Duration      `json:"cooldown"`
	Pattern           AlertPattern  `json:"pattern,omitempty"`
}

// DefaultProximityConfig mirrors the collar firmware defaults.
func DefaultProximityConfig() ProximityConfig {
	return ProximityConfig{
		TriggerDistanceCm: 2,
		Modality:          ModalityBoth,
		Intensity:         3,
		Duration:          Duration(time.Second),
		Cooldown:          Duration(5 * time.Second),
		Pattern:           PatternPulse,
	}
}

// Validate implements config.Validator.
func (c *ProximityConfig) Validate() error {
	if c.TriggerDistanceCm <= 0 {
		return ErrInvalidTriggerDistance
	}

	if c.Intensity < MinIntensity || c.Intensity > MaxIntensity {
		return fmt.Errorf("%w: got %d", ErrInvalidIntensity, c.Intensity)
	}

	if c.Delay < 0 || c.Duration < 0 || c.Cooldown < 0 {
		return ErrNegativeDuration
	}

	if !c.Modality.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidModality, c.Modality)
	}

	if c.Pattern != "" && !c.Pattern.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, c.Pattern)
	}

	return nil
}

// BeaconObservation is a single signal reading from one scan cycle.
type BeaconObservation struct {
	BeaconID   string    `json:"beacon_id"`
	RSSI       int       `json:"rssi"`
	DistanceCm float64   `json:"distance_cm"`
	Quality    float64   `json:"quality"`
	Known      bool      `json:"known"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProximityStateKind is the state of a beacon's proximity state machine.
type ProximityStateKind string

const (
	ProximityOutOfRange     ProximityStateKind = "out_of_range"
	ProximityInRangePending ProximityStateKind = "in_range_pending"
	ProximityTriggered      ProximityStateKind = "triggered"
	ProximityCooldown       ProximityStateKind = "cooldown"
)
