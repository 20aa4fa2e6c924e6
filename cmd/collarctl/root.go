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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carverauto/collarlink/pkg/connection"
	"github.com/carverauto/collarlink/pkg/models"
)

const envPrefix = "collarctl"

// settings resolves options from flags, COLLARCTL_* variables and an optional
// config file, in that order of precedence.
type settings struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "collarctl",
		Short:         "collarctl: find and talk to a collarlink collar",
		Long:          "collarctl discovers a collar through the discovery relay, a cached endpoint or direct probing, then sends commands and shows telemetry over the collar session.",
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return s.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (json, yaml or toml)")
	flags.String("relay", "", "Discovery relay subscription URL, e.g. ws://relay:8765/discovery")
	flags.StringSlice("candidate", nil, "Direct probe candidate host:port or ws:// URL (repeatable)")
	flags.Bool("mdns", false, "Browse mDNS for collars to probe")
	flags.String("cache", defaultCachePath(), "Endpoint cache file, empty to disable")
	flags.Duration("retry", connection.DefaultRetryInterval, "Interval between discovery rounds")
	flags.Duration("attempt-timeout", connection.DefaultAttemptTimeout, "Timeout for one connection attempt")
	flags.Duration("wait", 30*time.Second, "How long to wait for a connection")
	flags.String("log-level", "warn", "Log level for diagnostics on stderr")

	_ = s.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newVersionCmd(),
		newConnectCmd(s),
		newWatchCmd(s),
		newStatusCmd(s),
		newAlertCmd(s),
		newConfigCmd(s),
	)

	return rootCmd
}

func (s *settings) load() error {
	s.v.SetEnvPrefix(envPrefix)
	s.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	s.v.AutomaticEnv()

	if path := s.v.GetString("config"); path != "" {
		s.v.SetConfigFile(path)

		if err := s.v.ReadInConfig(); err != nil {
			return err
		}
	}

	return nil
}

func (s *settings) connectionConfig() connection.Config {
	return connection.Config{
		RelayURL:       s.v.GetString("relay"),
		Candidates:     s.v.GetStringSlice("candidate"),
		MDNS:           s.v.GetBool("mdns"),
		CachePath:      s.v.GetString("cache"),
		RetryInterval:  models.Duration(s.v.GetDuration("retry")),
		AttemptTimeout: models.Duration(s.v.GetDuration("attempt-timeout")),
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "collarlink", "endpoint.json")
}
