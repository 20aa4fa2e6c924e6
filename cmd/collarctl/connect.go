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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/models"
)

func newConnectCmd(s *settings) *cobra.Command {
	var (
		runFor  time.Duration
		asJSON  bool
		noTelem bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Stay connected to a collar, printing state changes and telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openClient(cmd, s)
			if err != nil {
				return err
			}
			defer c.close()

			ctx := cmd.Context()

			if runFor > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, runFor)
				defer cancel()
			}

			updates, unsubscribe := c.mgr.Subscribe()
			defer unsubscribe()

			out := cmd.OutOrStdout()

			for {
				select {
				case snap, ok := <-updates:
					if !ok {
						return nil
					}

					printSnapshot(out, snap)
				case env := <-c.replies:
					if noTelem && env.Type == models.MessageTelemetry {
						continue
					}

					if err := printEnvelope(out, env, asJSON); err != nil {
						return err
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().DurationVar(&runFor, "for", 0, "Disconnect after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print messages as raw JSON envelopes")
	cmd.Flags().BoolVar(&noTelem, "no-telemetry", false, "Hide periodic telemetry")

	return cmd
}

func printSnapshot(w io.Writer, snap connection.Snapshot) {
	line := "state=" + string(snap.State)

	if snap.Endpoint != "" {
		line += " endpoint=" + snap.Endpoint
	}

	if snap.Method != "" {
		line += " method=" + string(snap.Method)
	}

	if snap.LastError != "" {
		line += " error=" + snap.LastError
	}

	_, _ = fmt.Fprintln(w, line)
}

func printEnvelope(w io.Writer, env models.Envelope, asJSON bool) error {
	if asJSON {
		raw, err := json.Marshal(env)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, string(raw))

		return err
	}

	switch env.Type {
	case models.MessageTelemetry:
		var t models.Telemetry
		if err := env.Decode(&t); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "telemetry device=%s battery=%d%% beacons=%d alert_active=%t\n",
			t.DeviceID, t.BatteryPercent, len(t.Beacons), t.System.Alerts.Active)

		for _, b := range t.Beacons {
			_, _ = fmt.Fprintf(w, "  beacon=%s rssi=%d distance_cm=%.1f state=%s\n",
				b.BeaconID, b.RSSI, b.DistanceCm, b.State)
		}
	case models.MessageAlertStarted, models.MessageAlertStopped:
		var n models.AlertNotice
		if err := env.Decode(&n); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "%s beacon=%s modality=%s intensity=%d", env.Type, n.BeaconID, n.Modality, n.Intensity)

		if n.Reason != "" {
			_, _ = fmt.Fprintf(w, " reason=%s", n.Reason)
		}

		_, _ = fmt.Fprintln(w)
	default:
		_, _ = fmt.Fprintf(w, "%s %s\n", env.Type, string(env.Data))
	}

	return nil
}
