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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/models"
)

func newConfigCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the collar's per-beacon proximity configuration",
	}

	cmd.AddCommand(newConfigSetCmd(s))

	return cmd
}

func newConfigSetCmd(s *settings) *cobra.Command {
	def := models.DefaultProximityConfig()

	var (
		triggerCm float64
		delay     time.Duration
		modality  string
		intensity int
		duration  time.Duration
		cooldown  time.Duration
		pattern   string
	)

	cmd := &cobra.Command{
		Use:   "set <beacon-id>",
		Short: "Replace the proximity configuration of one beacon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc := models.ProximityConfig{
				TriggerDistanceCm: triggerCm,
				DelayEnabled:      delay > 0,
				Delay:             models.Duration(delay),
				Modality:          models.AlertModality(modality),
				Intensity:         intensity,
				Duration:          models.Duration(duration),
				Cooldown:          models.Duration(cooldown),
				Pattern:           models.AlertPattern(pattern),
			}

			// Reject locally what the collar would reject anyway.
			if err := pc.Validate(); err != nil {
				return err
			}

			body := models.SetProximityConfigCommand{BeaconID: args[0], Config: pc}

			return withConnection(cmd, s, func(ctx context.Context, c *client, _ connection.Snapshot) error {
				if _, err := c.request(ctx, models.MessageSetProximityConfig, body, replyTimeout); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "ack %s %s\n", models.MessageSetProximityConfig, args[0])

				return err
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&triggerCm, "trigger-cm", def.TriggerDistanceCm, "Trigger distance in centimetres")
	f.DurationVar(&delay, "delay", 0, "Dwell time before alerting (0 alerts immediately)")
	f.StringVar(&modality, "modality", string(def.Modality), "none, primary, secondary or both")
	f.IntVar(&intensity, "intensity", def.Intensity, "Intensity from 1 to 5")
	f.DurationVar(&duration, "duration", def.Duration.Std(), "Alert duration")
	f.DurationVar(&cooldown, "cooldown", def.Cooldown.Std(), "Minimum time between alerts")
	f.StringVar(&pattern, "pattern", string(def.Pattern), "continuous, pulse, rapid or sos")

	return cmd
}
