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
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/proximity"
)

// systemProbe samples host resources. The collectors are swapped out in tests.
type systemProbe struct {
	log     logger.Logger
	memory  func(context.Context) (*mem.VirtualMemoryStat, error)
	usage   func(context.Context, time.Duration, bool) ([]float64, error)
	uptimeS func(context.Context) (uint64, error)
}

func newSystemProbe(log logger.Logger) *systemProbe {
	return &systemProbe{
		log:     log,
		memory:  mem.VirtualMemoryWithContext,
		usage:   cpu.PercentWithContext,
		uptimeS: host.UptimeWithContext,
	}
}

func (p *systemProbe) sample(ctx context.Context) models.SystemStatus {
	var st models.SystemStatus

	if vm, err := p.memory(ctx); err != nil {
		p.log.Debug().Err(err).Msg("memory collection failed; reporting zero")
	} else {
		st.MemoryUsedPct = vm.UsedPercent
	}

	// interval 0 compares against the previous call and does not block
	if pct, err := p.usage(ctx, 0, false); err != nil {
		p.log.Debug().Err(err).Msg("cpu.PercentWithContext failed; usage will be zero")
	} else if len(pct) > 0 {
		st.CPUPercent = pct[0]
	}

	if up, err := p.uptimeS(ctx); err != nil {
		p.log.Debug().Err(err).Msg("uptime collection failed")
	} else {
		st.UptimeMs = up * 1000
	}

	return st
}

func beaconTelemetry(states []proximity.BeaconState) []models.BeaconTelemetry {
	out := make([]models.BeaconTelemetry, 0, len(states))

	for _, b := range states {
		out = append(out, models.BeaconTelemetry{
			BeaconID:   b.BeaconID,
			RSSI:       b.Last.RSSI,
			DistanceCm: b.Last.DistanceCm,
			Quality:    b.Last.Quality,
			State:      b.State,
			LastSeen:   b.LastSeen,
		})
	}

	return out
}
