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

//go:generate mockgen -destination=mock_kv.go -package=kv github.com/carverauto/collarlink/pkg/config/kv KVStore

// Package kv defines the key-value store used for live configuration.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyExists is returned by Create when the key already has a value.
	ErrKeyExists = errors.New("key already exists")
)

// Entry is a single change observed by WatchPrefix. Value is nil when Deleted.
type Entry struct {
	Key     string
	Value   []byte
	Deleted bool
}

// KVStore is the configuration key-value store.
type KVStore interface {
	// Get returns the value, whether the key was found, and any transport error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. A zero ttl keeps it until deleted.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Create stores value only if key is absent, returning ErrKeyExists otherwise.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Watch streams new values of key (nil on delete) until ctx is cancelled.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	// WatchPrefix streams every current and future entry whose key starts with
	// prefix. The channel is closed when ctx is cancelled.
	WatchPrefix(ctx context.Context, prefix string) (<-chan Entry, error)

	Close() error
}
