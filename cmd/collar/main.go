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

	"github.com/carverauto/collarlink/pkg/collar"
	"github.com/carverauto/collarlink/pkg/config"
	"github.com/carverauto/collarlink/pkg/config/kvnats"
	"github.com/carverauto/collarlink/pkg/lifecycle"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/natsutil"
	"github.com/carverauto/collarlink/pkg/version"
)

const defaultKVBucket = "collarlink"

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/collarlink/collar.json", "Path to collar config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg collar.Config

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

	collarLogger, err := lifecycle.CreateComponentLogger(ctx, "collar", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() { _ = lifecycle.ShutdownLogger() }()

	_, err = logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    "collarlink-collar",
		ServiceVersion: version.GetVersion(),
		OTel:           &logConfig.OTel,
	})
	if err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		collarLogger.Warn().Err(err).Msg("Metrics export unavailable")
	}

	opts := []collar.Option{collar.WithLogger(collarLogger)}

	if cfg.NATS != nil {
		natsOpts, closeNATS, err := connectNATS(ctx, cfg.NATS, collarLogger)
		if err != nil {
			return err
		}

		defer closeNATS()

		opts = append(opts, natsOpts...)
	}

	agent, err := collar.NewAgent(&cfg, opts...)
	if err != nil {
		return err
	}

	collarLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("device_id", agent.DeviceID()).
		Msg("Starting collar agent")

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		ServiceName: "collar",
		Service:     agent,
		Logger:      collarLogger,
	})
}

// connectNATS wires the proximity config bucket and the alert event stream.
func connectNATS(ctx context.Context, cfg *natsutil.Config, log logger.Logger) ([]collar.Option, func(), error) {
	nc, err := natsutil.Connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultKVBucket
	}

	store, err := kvnats.New(ctx, nc, bucket)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to open KV bucket %s: %w", bucket, err)
	}

	publisher, err := natsutil.CreateEventPublisher(ctx, nc, cfg, "collarlink/collar")
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	opts := []collar.Option{collar.WithKV(store), collar.WithEventSink(publisher)}

	return opts, func() { _ = store.Close() }, nil
}
