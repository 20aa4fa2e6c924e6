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

package connection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.Get()
	assert.False(t, ok)

	require.ErrorIs(t, s.RecordSuccess("", models.DiscoveryRelay), ErrEndpointURL)
	require.NoError(t, s.RecordSuccess(collarURL, models.DiscoveryRelay))

	n, err := s.RecordFailure("ws://other:8080/ws")
	require.NoError(t, err)
	assert.Zero(t, n, "failures against another url are not counted")

	n, err = s.RecordFailure(collarURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := s.Get()
	require.True(t, ok)
	assert.True(t, e.Usable())

	// Get hands out copies
	e.ConsecutiveFailures = 99
	e, _ = s.Get()
	assert.Equal(t, 1, e.ConsecutiveFailures)

	require.NoError(t, s.RecordSuccess(collarURL, models.DiscoveryProbe))
	e, _ = s.Get()
	assert.Zero(t, e.ConsecutiveFailures)
	assert.Equal(t, models.DiscoveryProbe, e.Method)

	require.NoError(t, s.Evict("ws://other:8080/ws"))
	_, ok = s.Get()
	assert.True(t, ok)

	require.NoError(t, s.Evict(collarURL))
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "endpoint.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok := s.Get()
	assert.False(t, ok)

	require.NoError(t, s.RecordSuccess(collarURL, models.DiscoveryRelay))

	n, err := s.RecordFailure(collarURL)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	e, ok := reloaded.Get()
	require.True(t, ok)
	assert.Equal(t, collarURL, e.URL)
	assert.Equal(t, models.DiscoveryRelay, e.Method)
	assert.Equal(t, 1, e.ConsecutiveFailures)

	require.NoError(t, reloaded.Evict(collarURL))

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestFileStoreRejectsCorruptCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path)
	require.Error(t, err)
}

func TestFileStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok := s.Get()
	assert.False(t, ok)
}

func TestFileStorePersistsAnnouncedCandidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoint.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	created, err := s.RecordCandidate(collarURL, models.DiscoveryRelay)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.RecordCandidate(staleURL, models.DiscoveryRelay)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.RecordCandidate("", models.DiscoveryRelay)
	require.ErrorIs(t, err, ErrEndpointURL)

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	e, ok := reloaded.Get()
	require.True(t, ok)
	assert.Equal(t, collarURL, e.URL)
	assert.Equal(t, models.DiscoveryRelay, e.Method)
	assert.Zero(t, e.ConsecutiveFailures)
	assert.True(t, e.LastSuccess.IsZero())
}
