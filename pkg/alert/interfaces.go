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

//go:generate mockgen -destination=mock_actuator.go -package=alert github.com/carverauto/collarlink/pkg/alert Actuator

import "context"

// Output is a physical alert channel.
type Output int

const (
	// Primary is the buzzer.
	Primary Output = iota
	// Secondary is the vibration motor.
	Secondary
)

func (o Output) String() string {
	switch o {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Actuator drives the collar's alert outputs.
type Actuator interface {
	Drive(ctx context.Context, out Output, level uint8) error
	Off(ctx context.Context, out Output) error
}

// Listener observes alert lifecycle changes. Calls are made outside the
// dispatcher lock and must not block for long.
type Listener interface {
	AlertStarted(a Active)
	AlertStopped(a Active, reason string)
}
