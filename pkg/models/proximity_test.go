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

func TestDefaultProximityConfigIsValid(t *testing.T) {
	cfg := DefaultProximityConfig()

	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 2.0, cfg.TriggerDistanceCm, 0.0001)
	assert.False(t, cfg.DelayEnabled)
	assert.Equal(t, time.Second, cfg.Duration.Std())
	assert.Equal(t, 5*time.Second, cfg.Cooldown.Std())
}

func TestProximityConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ProximityConfig)
		wantErr error
	}{
		{name: "zero trigger", mutate: func(c *ProximityConfig) { c.TriggerDistanceCm = 0 }, wantErr: ErrInvalidTriggerDistance},
		{name: "intensity too low", mutate: func(c *ProximityConfig) { c.Intensity = 0 }, wantErr: ErrInvalidIntensity},
		{name: "intensity too high", mutate: func(c *ProximityConfig) { c.Intensity = 6 }, wantErr: ErrInvalidIntensity},
		{name: "negative cooldown", mutate: func(c *ProximityConfig) { c.Cooldown = Duration(-time.Second) }, wantErr: ErrNegativeDuration},
		{name: "bad modality", mutate: func(c *ProximityConfig) { c.Modality = "loud" }, wantErr: ErrInvalidModality},
		{name: "bad pattern", mutate: func(c *ProximityConfig) { c.Pattern = "morse" }, wantErr: ErrInvalidPattern},
		{name: "empty pattern allowed", mutate: func(c *ProximityConfig) { c.Pattern = "" }},
		{name: "modality none allowed", mutate: func(c *ProximityConfig) { c.Modality = ModalityNone }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultProximityConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProximityConfigJSONDurations(t *testing.T) {
	var cfg ProximityConfig

	raw := `{"trigger_distance_cm":30,"delay_enabled":true,"delay":"2s","modality":"primary","intensity":5,"duration":1500,"cooldown":"10s"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, 2*time.Second, cfg.Delay.Std())
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration.Std())
	assert.Equal(t, 10*time.Second, cfg.Cooldown.Std())
	assert.True(t, cfg.Modality.UsesPrimary())
	assert.False(t, cfg.Modality.UsesSecondary())
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration

	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	require.Error(t, json.Unmarshal([]byte(`true`), &d))
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Zero(t, d)
}

func TestDurationMilliseconds(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`250.5`), &d))
	assert.Equal(t, 250500*time.Microsecond, d.Std())
	assert.Equal(t, int64(250), d.Milliseconds())

	raw, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(raw))
}

func TestEnvelopeDecode(t *testing.T) {
	env, err := NewEnvelope(MessageTriggerAlert, TriggerAlertCommand{Modality: ModalityBoth, Intensity: 2, Duration: Duration(time.Second)})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, MessageTriggerAlert, decoded.Type)

	var cmd TriggerAlertCommand
	require.NoError(t, decoded.Decode(&cmd))
	assert.Equal(t, 2, cmd.Intensity)
	assert.Equal(t, time.Second, cmd.Duration.Std())
}

func TestCachedEndpointUsable(t *testing.T) {
	var nilEndpoint *CachedEndpoint
	assert.False(t, nilEndpoint.Usable())

	ep := &CachedEndpoint{URL: "ws://10.0.0.2:8080/ws", ConsecutiveFailures: 1}
	assert.True(t, ep.Usable())

	ep.ConsecutiveFailures = EndpointEvictionThreshold
	assert.False(t, ep.Usable())
}
