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

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/carverauto/collarlink/pkg/config/kv"
)

const defaultKVConfigPrefix = "config/"

var errKVKeyNotFound = errors.New("key not found in KV store")

// KVConfigLoader reads a service's config document from the KV bucket. The key
// is the prefix followed by the config file's base name, so a collar started
// with -config /etc/collarlink/collar.toml reads config/collar.toml.
type KVConfigLoader struct {
	store  kv.KVStore
	prefix string
}

func NewKVConfigLoader(store kv.KVStore) *KVConfigLoader {
	return &KVConfigLoader{store: store, prefix: defaultKVConfigPrefix}
}

// KeyForPath maps a config file path to its KV key.
func KeyForPath(path string) string {
	return defaultKVConfigPrefix + filepath.Base(path)
}

func (k *KVConfigLoader) Load(ctx context.Context, path string, dst interface{}) error {
	key := k.prefix + filepath.Base(path)

	data, found, err := k.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if !found {
		return fmt.Errorf("%w: %q", errKVKeyNotFound, key)
	}

	return decodeDocument(key, data, dst)
}
