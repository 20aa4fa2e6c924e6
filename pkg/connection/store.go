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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carverauto/collarlink/pkg/models"
)

// MemoryStore keeps the cached endpoint in memory.
type MemoryStore struct {
	mu    sync.Mutex
	entry *models.CachedEndpoint
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Get() (*models.CachedEndpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil {
		return nil, false
	}

	e := *s.entry

	return &e, true
}

func (s *MemoryStore) RecordSuccess(url string, method models.DiscoveryMethod) error {
	if url == "" {
		return ErrEndpointURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry = &models.CachedEndpoint{URL: url, Method: method, LastSuccess: s.now()}

	return nil
}

func (s *MemoryStore) RecordCandidate(url string, method models.DiscoveryMethod) (bool, error) {
	if url == "" {
		return false, ErrEndpointURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != nil {
		return false, nil
	}

	s.entry = &models.CachedEndpoint{URL: url, Method: method}

	return true, nil
}

func (s *MemoryStore) RecordFailure(url string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == nil || s.entry.URL != url {
		return 0, nil
	}

	s.entry.ConsecutiveFailures++

	return s.entry.ConsecutiveFailures, nil
}

func (s *MemoryStore) Evict(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != nil && s.entry.URL == url {
		s.entry = nil
	}

	return nil
}

// FileStore persists the cached endpoint as a JSON file, replaced atomically
// on every change.
type FileStore struct {
	mem  MemoryStore
	path string
}

// NewFileStore loads path if it exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{mem: MemoryStore{now: time.Now}, path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint cache: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var e models.CachedEndpoint
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint cache %s: %w", path, err)
	}

	if e.URL != "" {
		s.mem.entry = &e
	}

	return s, nil
}

func (s *FileStore) Get() (*models.CachedEndpoint, bool) {
	return s.mem.Get()
}

func (s *FileStore) RecordSuccess(url string, method models.DiscoveryMethod) error {
	if err := s.mem.RecordSuccess(url, method); err != nil {
		return err
	}

	return s.flush()
}

func (s *FileStore) RecordCandidate(url string, method models.DiscoveryMethod) (bool, error) {
	created, err := s.mem.RecordCandidate(url, method)
	if err != nil || !created {
		return created, err
	}

	return true, s.flush()
}

func (s *FileStore) RecordFailure(url string) (int, error) {
	n, err := s.mem.RecordFailure(url)
	if err != nil || n == 0 {
		return n, err
	}

	return n, s.flush()
}

func (s *FileStore) Evict(url string) error {
	if err := s.mem.Evict(url); err != nil {
		return err
	}

	return s.flush()
}

func (s *FileStore) flush() error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if s.mem.entry == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove endpoint cache: %w", err)
		}

		return nil
	}

	data, err := json.MarshalIndent(s.mem.entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode endpoint cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".endpoint-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write endpoint cache: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close endpoint cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace endpoint cache: %w", err)
	}

	return nil
}
