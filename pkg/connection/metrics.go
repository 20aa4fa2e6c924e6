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

package connection

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName           = "collarlink.connection"
	tracerName          = "collarlink.connection"
	metricAttemptsTotal = "connection_attempts_total"
	metricEvictions     = "connection_endpoint_evictions_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	attemptCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	evictionCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	if c, err := meter.Int64Counter(metricAttemptsTotal,
		metric.WithDescription("Session connection attempts by discovery method and outcome")); err != nil {
		otel.Handle(err)
	} else {
		attemptCounter = c
	}

	if c, err := meter.Int64Counter(metricEvictions,
		metric.WithDescription("Cached endpoints evicted after repeated failures")); err != nil {
		otel.Handle(err)
	} else {
		evictionCounter = c
	}
}

func recordAttempt(ctx context.Context, method, outcome string) {
	meterOnce.Do(initMeter)

	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		))
	}
}

func recordEviction(ctx context.Context) {
	meterOnce.Do(initMeter)

	if evictionCounter != nil {
		evictionCounter.Add(ctx, 1)
	}
}
