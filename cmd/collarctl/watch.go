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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/models"
)

var errRelayRequired = errors.New("watch needs --relay")

func newWatchCmd(s *settings) *cobra.Command {
	var (
		count  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print device announcements forwarded by the discovery relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := s.v.GetString("relay")
			if url == "" {
				return errRelayRequired
			}

			log, err := commandLogger(cmd, s)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			src := &connection.RelaySource{
				URL:           url,
				RetryInterval: s.v.GetDuration("retry"),
				Options:       sessionOptions(log),
				Logger:        log,
			}

			anns := make(chan models.DeviceAnnouncement, 16)
			done := make(chan error, 1)

			go func() { done <- src.Run(ctx, anns) }()

			out := cmd.OutOrStdout()
			seen := 0

			for {
				select {
				case ann := <-anns:
					if asJSON {
						raw, err := json.Marshal(ann)
						if err != nil {
							return err
						}

						_, _ = fmt.Fprintln(out, string(raw))
					} else {
						_, _ = fmt.Fprintf(out, "%s %s ip=%s battery=%d%% firmware=%s\n",
							ann.DeviceID, ann.SessionEndpoint, ann.IPAddress, ann.BatteryPercent, ann.FirmwareVersion)
					}

					seen++
					if count > 0 && seen >= count {
						return nil
					}
				case err := <-done:
					if errors.Is(err, context.Canceled) {
						return nil
					}

					return err
				}
			}
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many announcements (0 runs until interrupted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print announcements as JSON")

	return cmd
}
