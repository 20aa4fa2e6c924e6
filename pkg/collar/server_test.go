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
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/session"
)

type runningAgent struct {
	agent *Agent
	clock interface{ Advance(time.Duration) }
	udp   net.PacketConn
}

func startAgent(t *testing.T) runningAgent {
	t.Helper()

	udp, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = udp.Close() })

	cfg := testConfig()
	cfg.Announce.Target = udp.LocalAddr().String()

	a, clk, _ := newTestAgent(t, cfg)

	done := make(chan error, 1)

	go func() { done <- a.Start(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, a.Stop(ctx))
		require.NoError(t, <-done)
	})

	select {
	case <-a.Ready():
	case err := <-done:
		t.Fatalf("agent failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not start")
	}

	return runningAgent{agent: a, clock: clk, udp: udp}
}

func dialAgent(t *testing.T, a *Agent) (*session.Transport, <-chan models.Envelope) {
	t.Helper()

	tr, err := session.Dial(context.Background(), a.SessionEndpoint(), session.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	msgs := make(chan models.Envelope, 32)

	tr.OnMessage(func(data []byte) {
		var env models.Envelope
		if json.Unmarshal(data, &env) == nil {
			msgs <- env
		}
	})

	require.Eventually(t, func() bool { return a.server.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	return tr, msgs
}

// collect reads until one envelope of every wanted type has arrived.
func collect(t *testing.T, msgs <-chan models.Envelope, types ...models.MessageType) map[models.MessageType]models.Envelope {
	t.Helper()

	got := make(map[models.MessageType]models.Envelope)
	deadline := time.After(3 * time.Second)

	for len(got) < len(types) {
		select {
		case env := <-msgs:
			for _, want := range types {
				if env.Type == want {
					if _, dup := got[want]; !dup {
						got[want] = env
					}
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, have %d", types, len(got))
		}
	}

	return got
}

func send(t *testing.T, tr *session.Transport, typ models.MessageType, data interface{}) {
	t.Helper()

	env, err := models.NewEnvelope(typ, data)
	require.NoError(t, err)
	require.NoError(t, tr.Send(env))
}

func TestAgentAnnouncesSessionEndpoint(t *testing.T) {
	ra := startAgent(t)

	buf := make([]byte, 2048)

	require.NoError(t, ra.udp.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := ra.udp.ReadFrom(buf)
	require.NoError(t, err)

	ann, err := models.ParseAnnouncement(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "collar-test", ann.DeviceID)
	assert.Equal(t, models.DeviceTypeCollar, ann.DeviceType)
	assert.Equal(t, ra.agent.SessionEndpoint(), ann.SessionEndpoint)
	assert.Equal(t, "127.0.0.1", ann.IPAddress)
	assert.Equal(t, 87, ann.BatteryPercent)
}

func TestSessionCommands(t *testing.T) {
	ra := startAgent(t)
	tr, msgs := dialAgent(t, ra.agent)

	send(t, tr, models.MessageGetStatus, nil)

	status := collect(t, msgs, models.MessageTelemetry)[models.MessageTelemetry]

	var tel models.Telemetry
	require.NoError(t, status.Decode(&tel))
	assert.Equal(t, "collar-test", tel.DeviceID)
	assert.Equal(t, 1, tel.System.SessionClients)

	send(t, tr, models.MessageTriggerAlert, models.TriggerAlertCommand{
		Modality:  models.ModalitySecondary,
		Intensity: 2,
		Duration:  models.Duration(time.Minute),
	})

	got := collect(t, msgs, models.MessageAck, models.MessageAlertStarted)

	var ack models.CommandAck
	ackEnv := got[models.MessageAck]
	require.NoError(t, ackEnv.Decode(&ack))
	assert.Equal(t, models.MessageTriggerAlert, ack.Command)

	var notice models.AlertNotice
	startedEnv := got[models.MessageAlertStarted]
	require.NoError(t, startedEnv.Decode(&notice))
	assert.Equal(t, manualBeaconID, notice.BeaconID)
	assert.Equal(t, int64(60000), notice.DurationMs)

	send(t, tr, models.MessageStopAlert, nil)

	got = collect(t, msgs, models.MessageAck, models.MessageAlertStopped)
	stoppedEnv := got[models.MessageAlertStopped]
	require.NoError(t, stoppedEnv.Decode(&notice))
	assert.Equal(t, "emergency_stop", notice.Reason)

	send(t, tr, models.MessageSetProximityConfig, models.SetProximityConfigCommand{BeaconID: "b-9", Config: leashConfig()})
	collect(t, msgs, models.MessageAck)

	_, ok := ra.agent.ProximityConfigs().Get("b-9")
	assert.True(t, ok)

	send(t, tr, models.MessageType("self_destruct"), nil)

	errEnv := collect(t, msgs, models.MessageError)[models.MessageError]
	assert.Contains(t, errEnv.Error, "unknown command")

	require.NoError(t, tr.SendRaw([]byte("{broken")))

	errEnv = collect(t, msgs, models.MessageError)[models.MessageError]
	assert.Contains(t, errEnv.Error, "invalid command payload")
}

func TestTelemetryIsPushed(t *testing.T) {
	ra := startAgent(t)
	_, msgs := dialAgent(t, ra.agent)

	require.Eventually(t, func() bool {
		ra.clock.Advance(DefaultTelemetryInterval)

		for {
			select {
			case env := <-msgs:
				if env.Type == models.MessageTelemetry {
					return true
				}
			default:
				return false
			}
		}
	}, 3*time.Second, 20*time.Millisecond)
}

func TestAgentStartsOnce(t *testing.T) {
	ra := startAgent(t)

	require.ErrorIs(t, ra.agent.Start(context.Background()), ErrAlreadyStarted)
}
