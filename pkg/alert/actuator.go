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

package alert

import (
	"context"
	"sync"

	"github.com/carverauto/collarlink/pkg/logger"
)

// LogActuator records drive levels and logs every change. It stands in for
// the PWM hardware on hosts without one.
type LogActuator struct {
	mu     sync.Mutex
	levels map[Output]uint8
	log    logger.Logger
}

func NewLogActuator(log logger.Logger) *LogActuator {
	return &LogActuator{levels: make(map[Output]uint8), log: log}
}

func (a *LogActuator) Drive(_ context.Context, out Output, level uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.levels[out] == level {
		return nil
	}

	a.levels[out] = level
	a.log.Debug().Str("output", out.String()).Uint8("level", level).Msg("Output on")

	return nil
}

func (a *LogActuator) Off(_ context.Context, out Output) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.levels[out] == 0 {
		return nil
	}

	a.levels[out] = 0
	a.log.Debug().Str("output", out.String()).Msg("Output off")

	return nil
}

// Level returns the current drive level of an output, 0 when off.
func (a *LogActuator) Level(out Output) uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.levels[out]
}
