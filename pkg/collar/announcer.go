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
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

// Announcer broadcasts the collar's DeviceAnnouncement on a schedule that is
// fast right after boot and slow afterwards.
type Announcer struct {
	cfg   AnnounceConfig
	build func(context.Context) models.DeviceAnnouncement
	clock clock.Clock
	log   logger.Logger
	sent  atomic.Uint64
}

func NewAnnouncer(cfg AnnounceConfig, build func(context.Context) models.DeviceAnnouncement, clk clock.Clock, log logger.Logger) *Announcer {
	if clk == nil {
		clk = clock.Real()
	}

	return &Announcer{cfg: cfg, build: build, clock: clk, log: log}
}

// Interval returns the broadcast period after running for sinceBoot.
func (a *Announcer) Interval(sinceBoot time.Duration) time.Duration {
	if sinceBoot < a.cfg.FastPeriod.Std() {
		return a.cfg.FastInterval.Std()
	}

	return a.cfg.SlowInterval.Std()
}

// Sent is the number of datagrams written so far.
func (a *Announcer) Sent() uint64 {
	return a.sent.Load()
}

// Run broadcasts immediately and then on every tick until ctx is done.
func (a *Announcer) Run(ctx context.Context) error {
	target, err := net.ResolveUDPAddr("udp4", a.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast target %s: %w", a.cfg.Target, err)
	}

	lc := broadcastListenConfig()

	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open broadcast socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	boot := a.clock.Now()
	tick := make(chan struct{}, 1)

	for {
		a.send(ctx, conn, target)

		wait := a.Interval(a.clock.Now().Sub(boot))
		timer := a.clock.AfterFunc(wait, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-tick:
		}
	}
}

func (a *Announcer) send(ctx context.Context, conn net.PacketConn, target net.Addr) {
	ann := a.build(ctx)

	data, err := json.Marshal(ann)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to encode announcement")
		return
	}

	if _, err := conn.WriteTo(data, target); err != nil {
		a.log.Debug().Err(err).Str("target", target.String()).Msg("Broadcast failed")
		return
	}

	a.sent.Add(1)
	a.log.Trace().Str("endpoint", ann.SessionEndpoint).Msg("Announcement sent")
}

// advertiseIP picks the address clients should reach the collar on.
func advertiseIP(ctx context.Context) string {
	if ip := firstUsableIPv4(); ip != "" {
		return ip
	}

	dialer := &net.Dialer{Timeout: time.Second}

	conn, err := dialer.DialContext(ctx, "udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}

	return "127.0.0.1"
}

func firstUsableIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			if ip := ipNet.IP.To4(); ip != nil && !ip.IsLinkLocalUnicast() {
				return ip.String()
			}
		}
	}

	return ""
}
