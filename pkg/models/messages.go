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
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a session message.
type MessageType string

// Client to device.
const (
	MessageTriggerAlert       MessageType = "trigger_alert"
	MessageStopAlert          MessageType = "stop_alert"
	MessageSetProximityConfig MessageType = "set_proximity_config"
	MessageGetStatus          MessageType = "get_status"
)

// Device to client.
const (
	MessageTelemetry    MessageType = "telemetry"
	MessageAlertStarted MessageType = "alert_started"
	MessageAlertStopped MessageType = "alert_stopped"
	MessageAck          MessageType = "ack"
	MessageError        MessageType = "error"
)

// Envelope is the JSON object exchanged over a session, one per message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(t MessageType, data interface{}) (*Envelope, error) {
	env := &Envelope{Type: t, Timestamp: time.Now()}

	if data == nil {
		return env, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	env.Data = raw

	return env, nil
}

// Decode unmarshals the envelope payload into dst.
func (e *Envelope) Decode(dst interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}

	return json.Unmarshal(e.Data, dst)
}

// TriggerAlertCommand asks the collar to run a manual alert.
type TriggerAlertCommand struct {
	BeaconID  string        `json:"beacon_id,omitempty"`
	Modality  AlertModality `json:"modality"`
	Intensity int           `json:"intensity"`
	Duration  Duration      `json:"duration"`
	Pattern   AlertPattern  `json:"pattern,omitempty"`
}

// SetProximityConfigCommand replaces a beacon's proximity configuration.
type SetProximityConfigCommand struct {
	BeaconID string          `json:"beacon_id"`
	Config   ProximityConfig `json:"config"`
}

// BeaconTelemetry is a beacon as reported in telemetry.
type BeaconTelemetry struct {
	BeaconID   string             `json:"beacon_id"`
	RSSI       int                `json:"rssi"`
	DistanceCm float64            `json:"distance_cm"`
	Quality    float64            `json:"quality"`
	State      ProximityStateKind `json:"state"`
	LastSeen   time.Time          `json:"last_seen"`
}

// AlertStats summarises the dispatcher.
type AlertStats struct {
	Active         bool   `json:"active"`
	ActiveBeaconID string `json:"active_beacon_id,omitempty"`
	TotalAlerts    uint64 `json:"total_alerts"`
	TotalAlertMs   int64  `json:"total_alert_ms"`
	Dropped        uint64 `json:"dropped"`
	Queued         uint64 `json:"queued"`
}

// SystemStatus is the collar's host status block.
type SystemStatus struct {
	UptimeMs        uint64     `json:"uptime_ms"`
	MemoryUsedPct   float64    `json:"memory_used_pct"`
	CPUPercent      float64    `json:"cpu_percent"`
	FirmwareVersion string     `json:"firmware_version"`
	SessionClients  int        `json:"session_clients"`
	Alerts          AlertStats `json:"alerts"`
}

// Telemetry is pushed periodically from collar to client.
type Telemetry struct {
	DeviceID       string            `json:"device_id"`
	BatteryPercent int               `json:"battery_percent"`
	Beacons        []BeaconTelemetry `json:"beacons"`
	System         SystemStatus      `json:"system"`
}

// AlertNotice accompanies alert_started and alert_stopped messages.
type AlertNotice struct {
	BeaconID   string        `json:"beacon_id"`
	Modality   AlertModality `json:"modality"`
	Intensity  int           `json:"intensity"`
	DurationMs int64         `json:"duration_ms"`
	Reason     string        `json:"reason,omitempty"`
}

// CommandAck names the command an ack or error envelope answers.
type CommandAck struct {
	Command MessageType `json:"command"`
}
