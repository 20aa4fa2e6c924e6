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

package collar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimScannerReplaysScripts(t *testing.T) {
	s := NewSimScanner([]SimulatedBeacon{
		{ID: "a", RSSI: []int{-40, 0, -60}},
		{ID: "b", RSSI: []int{-70}},
	})

	ctx := context.Background()

	var got [][]Reading

	for i := 0; i < 4; i++ {
		r, err := s.Scan(ctx)
		require.NoError(t, err)

		got = append(got, r)
	}

	assert.Equal(t, [][]Reading{
		{{"a", -40}, {"b", -70}},
		{{"b", -70}},
		{{"a", -60}, {"b", -70}},
		{{"a", -40}, {"b", -70}},
	}, got)
}

func TestSimScannerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimScanner(nil).Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
