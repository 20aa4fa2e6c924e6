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
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/collarlink/pkg/config"
	"github.com/carverauto/collarlink/pkg/lifecycle"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/relay"
	"github.com/carverauto/collarlink/pkg/version"
)

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/collarlink/relay.json", "Path to relay config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg relay.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	relayLogger, err := lifecycle.CreateComponentLogger(ctx, "relay", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() { _ = lifecycle.ShutdownLogger() }()

	_, err = logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    "collarlink-relay",
		ServiceVersion: version.GetVersion(),
		OTel:           &logConfig.OTel,
	})
	if err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		relayLogger.Warn().Err(err).Msg("Metrics export unavailable")
	}

	r, err := relay.New(&cfg, relayLogger)
	if err != nil {
		return err
	}

	relayLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting discovery relay")

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		ServiceName: "relay",
		Service:     r,
		Logger:      relayLogger,
	})
}
