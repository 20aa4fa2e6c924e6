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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnouncement(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		wantURL string
	}{
		{
			name:    "full announcement",
			payload: `{"device_id":"collar-1","device_type":"pet_collar","ip_address":"192.168.1.20","session_endpoint":"ws://192.168.1.20:8080/ws","firmware_version":"1.2.0","wifi_rssi":-61,"battery_percent":80,"uptime_ms":12000}`,
			wantURL: "ws://192.168.1.20:8080/ws",
		},
		{
			name:    "only session endpoint",
			payload: `{"session_endpoint":"wss://collar.local/ws"}`,
			wantURL: "wss://collar.local/ws",
		},
		{
			name:    "missing session endpoint",
			payload: `{"device_id":"collar-1"}`,
			wantErr: ErrSessionEndpointRequired,
		},
		{
			name:    "http scheme rejected",
			payload: `{"session_endpoint":"http://192.168.1.20:8080"}`,
			wantErr: ErrInvalidSessionEndpoint,
		},
		{
			name:    "missing host rejected",
			payload: `{"session_endpoint":"ws:///ws"}`,
			wantErr: ErrInvalidSessionEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnnouncement([]byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, a)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, a.SessionEndpoint)
		})
	}
}

func TestParseAnnouncementMalformed(t *testing.T) {
	_, err := ParseAnnouncement([]byte("not json"))
	require.Error(t, err)
}

func TestAnnouncementRoundTripKeepsEndpoint(t *testing.T) {
	a := DeviceAnnouncement{
		DeviceID:        "collar-7",
		DeviceType:      DeviceTypeCollar,
		SessionEndpoint: "ws://10.0.0.4:8080/ws",
		Timestamp:       time.Unix(1700000000, 0).UTC(),
	}

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"session_endpoint":"ws://10.0.0.4:8080/ws"`)

	parsed, err := ParseAnnouncement(raw)
	require.NoError(t, err)
	assert.Equal(t, a, *parsed)
}

func TestParseAnnouncementToleratesMetadataTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, a *DeviceAnnouncement)
	}{
		{
			name:    "numeric firmware timestamp",
			payload: `{"session_endpoint":"ws://10.0.0.2/ws","timestamp":123456}`,
			check: func(t *testing.T, a *DeviceAnnouncement) {
				t.Helper()
				assert.True(t, a.Timestamp.IsZero())
				assert.Equal(t, uint64(123456), a.UptimeMs)
			},
		},
		{
			name:    "fractional battery",
			payload: `{"session_endpoint":"ws://10.0.0.2/ws","battery_percent":87.5}`,
			check: func(t *testing.T, a *DeviceAnnouncement) {
				t.Helper()
				assert.Equal(t, 87, a.BatteryPercent)
			},
		},
		{
			name:    "numeric device id",
			payload: `{"session_endpoint":"ws://10.0.0.2/ws","device_id":42}`,
			check: func(t *testing.T, a *DeviceAnnouncement) {
				t.Helper()
				assert.Equal(t, "42", a.DeviceID)
			},
		},
		{
			name:    "unusable metadata left empty",
			payload: `{"session_endpoint":"ws://10.0.0.2/ws","ip_address":{"v4":"10.0.0.2"},"wifi_rssi":"weak","uptime_ms":true}`,
			check: func(t *testing.T, a *DeviceAnnouncement) {
				t.Helper()
				assert.Empty(t, a.IPAddress)
				assert.Zero(t, a.WiFiRSSI)
				assert.Zero(t, a.UptimeMs)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnnouncement([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, "ws://10.0.0.2/ws", a.SessionEndpoint)
			tt.check(t, a)
		})
	}
}

func TestParseAnnouncementEndpointMustBeString(t *testing.T) {
	_, err := ParseAnnouncement([]byte(`{"session_endpoint":8080}`))
	require.ErrorIs(t, err, ErrInvalidSessionEndpoint)
}
