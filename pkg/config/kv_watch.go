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

	"github.com/carverauto/collarlink/pkg/config/kv"
	"github.com/carverauto/collarlink/pkg/logger"
)

// KVApplyFunc receives one KV change. value is nil when deleted is true.
type KVApplyFunc func(key string, value []byte, deleted bool) error

// StartKVPrefixWatch streams every entry under prefix into apply until ctx is
// cancelled. Apply errors are logged and the watch continues.
func StartKVPrefixWatch(ctx context.Context, store kv.KVStore, prefix string, log logger.Logger, apply KVApplyFunc) error {
	ch, err := store.WatchPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-ch:
				if !ok {
					return
				}

				if err := apply(entry.Key, entry.Value, entry.Deleted); err != nil {
					log.Warn().Err(err).Str("key", entry.Key).Msg("Failed to apply KV update")
					continue
				}

				log.Debug().Str("key", entry.Key).Bool("deleted", entry.Deleted).Msg("Applied KV update")
			}
		}
	}()

	return nil
}
