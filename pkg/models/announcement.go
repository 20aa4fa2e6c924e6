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
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrSessionEndpointRequired is returned when an announcement carries no session endpoint.
	ErrSessionEndpointRequired = errors.New("session endpoint is required")
	// ErrInvalidSessionEndpoint is returned when the session endpoint is not a ws:// or wss:// URL.
	ErrInvalidSessionEndpoint = errors.New("invalid session endpoint")
)

// DeviceTypeCollar is the device type tag collars put on their announcements.
const DeviceTypeCollar = "pet_collar"

// DeviceAnnouncement is emitted by a collar on every broadcast tick. It is a
// value type; a newer announcement supersedes an older one.
type DeviceAnnouncement struct {
	DeviceID        string    `json:"device_id,omitempty"`
	DeviceType      string    `json:"device_type,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
	SessionEndpoint string    `json:"session_endpoint"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	WiFiRSSI        int       `json:"wifi_rssi,omitempty"`
	BatteryPercent  int       `json:"battery_percent,omitempty"`
	UptimeMs        uint64    `json:"uptime_ms,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// Validate checks the fields a client needs to open a session.
// Metadata fields are optional.
func (a *DeviceAnnouncement) Validate() error {
	if a.SessionEndpoint == "" {
		return ErrSessionEndpointRequired
	}

	if err := ValidateSessionEndpoint(a.SessionEndpoint); err != nil {
		return err
	}

	return nil
}

// ValidateSessionEndpoint checks that raw is an absolute ws:// or wss:// URL with a host.
func ValidateSessionEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSessionEndpoint, err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSessionEndpoint, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSessionEndpoint)
	}

	return nil
}

// ParseAnnouncement decodes and validates a raw broadcast datagram. Only the
// session endpoint is required to be well formed. Metadata fields are decoded
// best-effort: a field of an unexpected type is left at its zero value rather
// than rejecting the announcement.
func ParseAnnouncement(data []byte) (*DeviceAnnouncement, error) {
	var fields map[string]json.RawMessage

	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode announcement: %w", err)
	}

	var a DeviceAnnouncement

	if raw, ok := fields["session_endpoint"]; ok {
		if err := json.Unmarshal(raw, &a.SessionEndpoint); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSessionEndpoint, err)
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	a.decodeMetadata(fields)

	return &a, nil
}

func (a *DeviceAnnouncement) decodeMetadata(fields map[string]json.RawMessage) {
	a.DeviceID = lenientString(fields["device_id"])
	a.DeviceType = lenientString(fields["device_type"])
	a.IPAddress = lenientString(fields["ip_address"])
	a.FirmwareVersion = lenientString(fields["firmware_version"])
	a.WiFiRSSI = int(lenientNumber(fields["wifi_rssi"]))
	a.BatteryPercent = int(lenientNumber(fields["battery_percent"]))

	if up := lenientNumber(fields["uptime_ms"]); up > 0 {
		a.UptimeMs = uint64(up)
	}

	raw := fields["timestamp"]
	if len(raw) == 0 {
		return
	}

	var ts time.Time
	if err := json.Unmarshal(raw, &ts); err == nil {
		a.Timestamp = ts
		return
	}

	// firmware stamps announcements with millis() since boot
	if ms := lenientNumber(raw); ms > 0 && a.UptimeMs == 0 {
		a.UptimeMs = uint64(ms)
	}
}

// lenientString accepts a JSON string, or the literal text of a number.
func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// lenientNumber accepts a JSON number, or a string holding one.
func lenientNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	return 0
}
