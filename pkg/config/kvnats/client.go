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

// Package kvnats implements kv.KVStore on a NATS JetStream key-value bucket.
package kvnats

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/collarlink/pkg/config/kv"
)

const bucketSetupTimeout = 5 * time.Second

// Client is a kv.KVStore backed by a JetStream KV bucket.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	bucket string
}

var _ kv.KVStore = (*Client)(nil)

// New binds to bucket on nc, creating it if it does not exist. The client
// takes ownership of nc and closes it on Close.
func New(ctx context.Context, nc *nats.Conn, bucket string) (*Client, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, bucketSetupTimeout)
	defer cancel()

	store, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		nc:     nc,
		js:     js,
		kv:     store,
		bucket: bucket,
	}, nil
}

// Connect dials url and binds to bucket.
func Connect(ctx context.Context, url, bucket string, opts ...nats.Option) (*Client, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	c, err := New(ctx, nc, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return entry.Value(), true, nil
}

// Put ignores ttl; JetStream KV expiry is configured per bucket.
func (c *Client) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

func (c *Client) Create(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return kv.ErrKeyExists
		}

		return err
	}

	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.kv.Delete(ctx, key)
}

func (c *Client) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := c.kv.Watch(ctx, key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)

	go func() {
		defer close(ch)
		defer func() { _ = watcher.Stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-watcher.Updates():
				if !ok {
					return
				}

				if update == nil {
					continue
				}

				var value []byte
				if !isDelete(update) {
					value = update.Value()
				}

				select {
				case ch <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// WatchPrefix replays the current values under prefix and then streams changes.
func (c *Client) WatchPrefix(ctx context.Context, prefix string) (<-chan kv.Entry, error) {
	watcher, err := c.kv.WatchAll(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan kv.Entry, 16)

	go func() {
		defer close(ch)
		defer func() { _ = watcher.Stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-watcher.Updates():
				if !ok {
					return
				}

				// nil marks the end of the initial replay
				if update == nil || !strings.HasPrefix(update.Key(), prefix) {
					continue
				}

				entry := kv.Entry{Key: update.Key(), Deleted: isDelete(update)}
				if !entry.Deleted {
					entry.Value = update.Value()
				}

				select {
				case ch <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func isDelete(update jetstream.KeyValueEntry) bool {
	op := update.Operation()

	return op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge
}

func (c *Client) Close() error {
	c.nc.Close()
	return nil
}
