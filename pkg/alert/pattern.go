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
	"math"
	"time"

	"github.com/carverauto/collarlink/pkg/models"
)

const (
	pulseOn   = 500 * time.Millisecond
	pulseOff  = 500 * time.Millisecond
	sosShort  = 200 * time.Millisecond
	sosLong   = 600 * time.Millisecond
	sosSteps  = 18
	sosLetter = 6
)

// Step is one segment of an alert pattern.
type Step struct {
	On     bool
	Length time.Duration
}

// Schedule returns the repeating on/off steps of a pattern. Continuous (and
// unset) patterns return nil: the outputs stay on for the whole alert.
func Schedule(p models.AlertPattern) []Step {
	switch p {
	case models.PatternPulse:
		return []Step{{On: true, Length: pulseOn}, {On: false, Length: pulseOff}}
	case models.PatternRapid:
		return []Step{{On: true, Length: pulseOn / 2}, {On: false, Length: pulseOff / 2}}
	case models.PatternSOS:
		return sosSchedule()
	case models.PatternContinuous:
		return nil
	default:
		return nil
	}
}

// sosSchedule is three short, three long, three short, each letter followed
// by a long gap.
func sosSchedule() []Step {
	steps := make([]Step, 0, sosSteps)

	for i := 0; i < sosSteps; i++ {
		if i%2 == 0 {
			length := sosShort
			if i >= sosLetter && i < 2*sosLetter {
				length = sosLong
			}

			steps = append(steps, Step{On: true, Length: length})

			continue
		}

		gap := sosShort
		if (i+1)%sosLetter == 0 {
			gap = sosLong
		}

		steps = append(steps, Step{On: false, Length: gap})
	}

	return steps
}

// DriveLevel maps intensity 1..5 linearly onto [minLevel, maxLevel].
func DriveLevel(intensity int, minLevel, maxLevel uint8) uint8 {
	if intensity < models.MinIntensity {
		intensity = models.MinIntensity
	}

	if intensity > models.MaxIntensity {
		intensity = models.MaxIntensity
	}

	span := float64(maxLevel) - float64(minLevel)
	frac := float64(intensity-models.MinIntensity) / float64(models.MaxIntensity-models.MinIntensity)

	return uint8(math.Round(float64(minLevel) + span*frac))
}
