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

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/models"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoServer accepts sessions and echoes every payload back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Accept(w, r, Options{})
		if err != nil {
			return
		}

		tr.OnMessage(func(data []byte) {
			_ = tr.SendRaw(data)
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestDialSendReceive(t *testing.T) {
	srv := echoServer(t)

	tr, err := Dial(context.Background(), wsURL(srv), Options{})
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	assert.Equal(t, StateOpen, tr.State())

	got := make(chan []byte, 1)
	tr.OnMessage(func(data []byte) { got <- data })

	env, err := models.NewEnvelope(models.MessageGetStatus, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(env))

	select {
	case data := <-got:
		assert.Contains(t, string(data), "get_status")
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestMessagesBeforeHandlerAreReplayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Accept(w, r, Options{})
		if err != nil {
			return
		}

		_ = tr.SendRaw([]byte("first"))
		_ = tr.SendRaw([]byte("second"))
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), Options{})
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	var (
		mu  sync.Mutex
		got []string
	)

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()

		return len(tr.backlog) == 2
	}, 2*time.Second, 10*time.Millisecond)

	tr.OnMessage(func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBacklogKeepsEarliestMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Accept(w, r, Options{})
		if err != nil {
			return
		}

		for i := 0; i < backlogLimit+6; i++ {
			_ = tr.SendRaw([]byte(strconv.Itoa(i)))
		}
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), Options{})
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()

		return tr.backlogDropped == 6
	}, 2*time.Second, 10*time.Millisecond)

	var got []string

	tr.OnMessage(func(data []byte) { got = append(got, string(data)) })

	require.Len(t, got, backlogLimit)
	assert.Equal(t, "0", got[0])
	assert.Equal(t, strconv.Itoa(backlogLimit-1), got[backlogLimit-1])
}

func TestPeerCloseFiresOnCloseOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Accept(w, r, Options{})
		if err != nil {
			return
		}

		_ = tr.Close()
	}))
	defer srv.Close()

	tr, err := Dial(context.Background(), wsURL(srv), Options{})
	require.NoError(t, err)

	var calls atomic.Int32

	closed := make(chan error, 2)

	tr.OnClose(func(err error) {
		calls.Add(1)
		closed <- err
	})

	select {
	case err := <-closed:
		require.ErrorIs(t, err, ErrPeerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("close handler not called")
	}

	assert.Equal(t, StateClosed, tr.State())
	require.ErrorIs(t, tr.Send("x"), ErrClosed)

	late := make(chan error, 1)
	tr.OnClose(func(err error) { late <- err })

	select {
	case err := <-late:
		require.ErrorIs(t, err, ErrPeerClosed)
	default:
		t.Fatal("late close handler was not invoked immediately")
	}

	_ = tr.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocalCloseReportsNil(t *testing.T) {
	srv := echoServer(t)

	tr, err := Dial(context.Background(), wsURL(srv), Options{})
	require.NoError(t, err)

	closed := make(chan error, 1)
	tr.OnClose(func(err error) { closed <- err })

	require.NoError(t, tr.Close())
	require.NoError(t, <-closed)

	select {
	case <-tr.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), Options{})
	require.ErrorIs(t, err, ErrDialFailed)
}

func TestPongTimeoutClosesSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// never reads, so pings are never answered
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr, err := Dial(context.Background(), wsURL(srv), Options{
		PingInterval: 20 * time.Millisecond,
		PongTimeout:  20 * time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session was not closed after missing pongs")
	}

	require.Error(t, tr.Err())
}
