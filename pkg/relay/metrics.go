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

package relay

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName                = "collarlink.relay"
	metricReceivedTotal      = "relay_announcements_received_total"
	metricInvalidTotal       = "relay_announcements_invalid_total"
	metricForwardedTotal     = "relay_announcements_forwarded_total"
	metricSubscribers        = "relay_subscribers"
	metricDroppedSubscribers = "relay_subscribers_dropped_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	receivedCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	invalidCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	forwardedCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	subscribersGauge metric.Int64UpDownCounter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	droppedCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	if c, err := meter.Int64Counter(metricReceivedTotal,
		metric.WithDescription("Datagrams received on the broadcast port")); err != nil {
		otel.Handle(err)
	} else {
		receivedCounter = c
	}

	if c, err := meter.Int64Counter(metricInvalidTotal,
		metric.WithDescription("Datagrams discarded as malformed or invalid")); err != nil {
		otel.Handle(err)
	} else {
		invalidCounter = c
	}

	if c, err := meter.Int64Counter(metricForwardedTotal,
		metric.WithDescription("Announcements enqueued to subscribers")); err != nil {
		otel.Handle(err)
	} else {
		forwardedCounter = c
	}

	if g, err := meter.Int64UpDownCounter(metricSubscribers,
		metric.WithDescription("Connected relay subscribers")); err != nil {
		otel.Handle(err)
	} else {
		subscribersGauge = g
	}

	if c, err := meter.Int64Counter(metricDroppedSubscribers,
		metric.WithDescription("Subscribers dropped by the relay")); err != nil {
		otel.Handle(err)
	} else {
		droppedCounter = c
	}
}

func recordReceived(ctx context.Context) {
	meterOnce.Do(initMeter)

	if receivedCounter != nil {
		receivedCounter.Add(ctx, 1)
	}
}

func recordInvalid(ctx context.Context) {
	meterOnce.Do(initMeter)

	if invalidCounter != nil {
		invalidCounter.Add(ctx, 1)
	}
}

func recordForwarded(ctx context.Context, n int) {
	meterOnce.Do(initMeter)

	if forwardedCounter != nil && n > 0 {
		forwardedCounter.Add(ctx, int64(n))
	}
}

func recordSubscriberDelta(ctx context.Context, delta int64) {
	meterOnce.Do(initMeter)

	if subscribersGauge != nil {
		subscribersGauge.Add(ctx, delta)
	}
}

func recordDropped(ctx context.Context, reason string) {
	meterOnce.Do(initMeter)

	if droppedCounter != nil {
		droppedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
