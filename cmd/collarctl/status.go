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
	"time"

	"github.com/spf13/cobra"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/models"
)

const replyTimeout = 5 * time.Second

func newStatusCmd(s *settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Request a telemetry snapshot from the collar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConnection(cmd, s, func(ctx context.Context, c *client, snap connection.Snapshot) error {
				reply, err := c.request(ctx, models.MessageGetStatus, nil, replyTimeout)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()

				if !asJSON {
					_, _ = fmt.Fprintf(out, "connected to %s via %s\n", snap.Endpoint, snap.Method)
					return printEnvelope(out, reply, false)
				}

				var t models.Telemetry
				if err := reply.Decode(&t); err != nil {
					return err
				}

				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(t)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the telemetry as JSON")

	return cmd
}
