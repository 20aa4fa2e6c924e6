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

package proximity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/carverauto/collarlink/pkg/config"
	"github.com/carverauto/collarlink/pkg/config/kv"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

// DefaultKVPrefix is where per-beacon configs live in the KV bucket.
const DefaultKVPrefix = "proximity/"

// ConfigStore supplies per-beacon configuration. It is read on every
// evaluation pass, so implementations must be safe for concurrent use.
type ConfigStore interface {
	Get(beaconID string) (models.ProximityConfig, bool)
}

// MemoryConfigStore is a lock-guarded in-memory ConfigStore.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]models.ProximityConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]models.ProximityConfig)}
}

func (s *MemoryConfigStore) Get(beaconID string) (models.ProximityConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[beaconID]

	return cfg, ok
}

// Set validates and stores cfg for beaconID, replacing any previous value.
func (s *MemoryConfigStore) Set(beaconID string, cfg models.ProximityConfig) error {
	if beaconID == "" {
		return ErrBeaconIDRequired
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidConfig, beaconID, err)
	}

	s.mu.Lock()
	s.configs[beaconID] = cfg
	s.mu.Unlock()

	return nil
}

func (s *MemoryConfigStore) Delete(beaconID string) {
	s.mu.Lock()
	delete(s.configs, beaconID)
	s.mu.Unlock()
}

// All returns a copy of every stored config keyed by beacon id.
func (s *MemoryConfigStore) All() map[string]models.ProximityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.ProximityConfig, len(s.configs))
	for id, cfg := range s.configs {
		out[id] = cfg
	}

	return out
}

// IDs returns the configured beacon ids in lexical order.
func (s *MemoryConfigStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.configs))

	for id := range s.configs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)

	return ids
}

// DecodeConfig overlays raw JSON onto the default config and validates it.
func DecodeConfig(raw []byte) (models.ProximityConfig, error) {
	cfg := models.DefaultProximityConfig()

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// WatchKV keeps store in sync with the <prefix><beacon_id> keys of a KV
// bucket. Existing keys are applied first, then live changes; deletes remove
// the beacon's config. It returns once the watch is established.
func WatchKV(ctx context.Context, kvStore kv.KVStore, prefix string, store *MemoryConfigStore, log logger.Logger) error {
	if prefix == "" {
		prefix = DefaultKVPrefix
	}

	return config.StartKVPrefixWatch(ctx, kvStore, prefix, log, func(key string, value []byte, deleted bool) error {
		beaconID := strings.TrimPrefix(key, prefix)
		if beaconID == "" {
			return ErrBeaconIDRequired
		}

		if deleted {
			store.Delete(beaconID)
			return nil
		}

		cfg, err := DecodeConfig(value)
		if err != nil {
			return err
		}

		return store.Set(beaconID, cfg)
	})
}

// SaveKV writes cfg for beaconID under prefix so other collars and tools see it.
func SaveKV(ctx context.Context, kvStore kv.KVStore, prefix, beaconID string, cfg models.ProximityConfig) error {
	if prefix == "" {
		prefix = DefaultKVPrefix
	}

	if beaconID == "" {
		return ErrBeaconIDRequired
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	return kvStore.Put(ctx, prefix+beaconID, raw, 0)
}
