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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLevels(t *testing.T) {
	l, err := Build(context.Background(), &Config{Level: "warn", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l, err = Build(context.Background(), &Config{Level: "info", Debug: true, Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := Build(context.Background(), &Config{Level: "chatty"})
	require.Error(t, err)
}

func TestWrapAddsComponent(t *testing.T) {
	var buf bytes.Buffer

	l := Wrap(zerolog.New(&buf))
	c := l.WithComponent("relay")
	c.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "relay", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestWrapSetLevel(t *testing.T) {
	var buf bytes.Buffer

	l := Wrap(zerolog.New(&buf))
	l.SetLevel(zerolog.ErrorLevel)
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.SetDebug(true)
	l.Debug().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewTestLoggerDiscards(t *testing.T) {
	l := NewTestLogger()
	l.Error().Msg("nothing happens")
	assert.NotNil(t, l.With())
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_HEADERS", "x-api-key=abc, tenant = home")

	config := DefaultConfig()

	assert.Equal(t, "debug", config.Level)
	assert.Equal(t, "stdout", config.Output)
	assert.Equal(t, "abc", config.OTel.Headers["x-api-key"])
	assert.Equal(t, "home", config.OTel.Headers["tenant"])
	assert.Equal(t, Duration(5*time.Second), config.OTel.BatchTimeout)
	assert.Equal(t, "collarlink", config.OTel.ServiceName)
}

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Duration
		wantErr  bool
	}{
		{name: "string duration", input: `"5s"`, expected: Duration(5 * time.Second)},
		{name: "numeric nanoseconds", input: `5000000000`, expected: Duration(5 * time.Second)},
		{name: "compound string", input: `"1h30m"`, expected: Duration(90 * time.Minute)},
		{name: "invalid string", input: `"invalid"`, wantErr: true},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}
