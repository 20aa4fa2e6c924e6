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

package kvnats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/config/kv"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, srv.JetStreamEnabled, 5*time.Second, 50*time.Millisecond)

	t.Cleanup(srv.Shutdown)

	return srv
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	srv := runJetStreamServer(t)

	c, err := Connect(context.Background(), srv.ClientURL(), "collar-config")
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClientPutGetDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newTestClient(t)

	_, found, err := c.Get(ctx, "proximity/missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "proximity/b1", []byte(`{"intensity":2}`), 0))

	value, found, err := c.Get(ctx, "proximity/b1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"intensity":2}`, string(value))

	require.ErrorIs(t, c.Create(ctx, "proximity/b1", []byte("{}"), 0), kv.ErrKeyExists)

	require.NoError(t, c.Delete(ctx, "proximity/b1"))

	_, found, err = c.Get(ctx, "proximity/b1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientWatchPrefix(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newTestClient(t)

	require.NoError(t, c.Put(ctx, "proximity/existing", []byte("1"), 0))
	require.NoError(t, c.Put(ctx, "other/key", []byte("x"), 0))

	ch, err := c.WatchPrefix(ctx, "proximity/")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "proximity/existing", first.Key)
	assert.Equal(t, []byte("1"), first.Value)

	require.NoError(t, c.Put(ctx, "proximity/new", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "proximity/existing"))

	second := <-ch
	assert.Equal(t, "proximity/new", second.Key)

	third := <-ch
	assert.Equal(t, "proximity/existing", third.Key)
	assert.True(t, third.Deleted)
	assert.Nil(t, third.Value)
}

func TestClientWatchKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newTestClient(t)

	ch, err := c.Watch(ctx, "config/collar.json")
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "config/collar.json", []byte(`{"device_id":"c1"}`), 0))

	select {
	case value := <-ch:
		assert.JSONEq(t, `{"device_id":"c1"}`, string(value))
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
