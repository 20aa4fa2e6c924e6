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

func newAlertCmd(s *settings) *cobra.Command {
	var (
		beaconID  string
		modality  string
		intensity int
		duration  time.Duration
		pattern   string
		stop      bool
	)

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Trigger (or stop) a manual alert on the collar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				t    = models.MessageTriggerAlert
				body interface{}
			)

			if stop {
				t = models.MessageStopAlert
			} else {
				body = models.TriggerAlertCommand{
					BeaconID:  beaconID,
					Modality:  models.AlertModality(modality),
					Intensity: intensity,
					Duration:  models.Duration(duration),
					Pattern:   models.AlertPattern(pattern),
				}
			}

			return withConnection(cmd, s, func(ctx context.Context, c *client, _ connection.Snapshot) error {
				if _, err := c.request(ctx, t, body, replyTimeout); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "ack %s\n", t)

				return err
			})
		},
	}

	cmd.Flags().StringVar(&beaconID, "beacon", "", "Beacon the alert is attributed to")
	cmd.Flags().StringVar(&modality, "modality", string(models.ModalityBoth), "primary, secondary or both")
	cmd.Flags().IntVar(&intensity, "intensity", 3, "Intensity from 1 to 5")
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "Alert duration")
	cmd.Flags().StringVar(&pattern, "pattern", string(models.PatternContinuous), "continuous, pulse, rapid or sos")
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop the running alert instead")

	return cmd
}
