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

// Package collar is the device side of collarlink. The Agent scans for
// beacons, raises proximity alerts, announces itself to the discovery relay
// and serves client sessions.
package collar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/collarlink/pkg/alert"
	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/config/kv"
	"github.com/carverauto/collarlink/pkg/distance"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/proximity"
	"github.com/carverauto/collarlink/pkg/session"
)

const manualBeaconID = "manual"

var ErrAlertRejected = errors.New("alert rejected by dispatcher")

// Option customises an Agent.
type Option func(*Agent)

func WithClock(c clock.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(a *Agent) { a.log = log }
}

func WithScanner(s Scanner) Option {
	return func(a *Agent) { a.scanner = s }
}

func WithActuator(act alert.Actuator) Option {
	return func(a *Agent) { a.actuator = act }
}

// WithKV makes proximity configs follow the KV bucket and persists
// set_proximity_config commands to it.
func WithKV(store kv.KVStore) Option {
	return func(a *Agent) { a.kv = store }
}

// WithEventSink publishes alert lifecycle events to sink.
func WithEventSink(sink EventSink) Option {
	return func(a *Agent) { a.sink = sink }
}

// Agent is the collar runtime. It implements lifecycle.Service.
type Agent struct {
	cfg      *Config
	deviceID string
	clock    clock.Clock
	log      logger.Logger
	scanner  Scanner
	actuator alert.Actuator
	kv       kv.KVStore
	sink     EventSink

	estimator  *distance.Estimator
	configs    *proximity.MemoryConfigStore
	tracker    *proximity.Tracker
	dispatcher *alert.Dispatcher
	server     *Server
	announcer  *Announcer
	events     *alertEvents
	system     *systemProbe

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	ready    chan struct{}
	addr     net.Addr
	endpoint string
}

// NewAgent builds an agent from a validated config.
func NewAgent(cfg *Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:   cfg,
		clock: clock.Real(),
		log:   logger.NewTestLogger(),
		ready: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.scanner == nil {
		if len(cfg.Beacons) == 0 {
			return nil, ErrNoScanner
		}

		a.scanner = NewSimScanner(cfg.Beacons)
	}

	if a.actuator == nil {
		a.actuator = alert.NewLogActuator(a.log)
	}

	id, err := resolveDeviceID(cfg.DeviceID, cfg.DeviceIDFile)
	if err != nil {
		return nil, err
	}

	a.deviceID = id

	a.configs = proximity.NewMemoryConfigStore()
	for beaconID, p := range cfg.Proximity {
		if err := a.configs.Set(beaconID, p); err != nil {
			return nil, err
		}
	}

	defaults := models.DefaultProximityConfig()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}

	a.estimator = distance.NewEstimator(cfg.TxPower)
	a.tracker = proximity.NewTracker(proximity.Config{
		Staleness: cfg.Staleness.Std(),
		Default:   defaults,
	}, a.configs, a.log)

	a.server = NewServer(a, session.Options{}, a.log)
	a.system = newSystemProbe(a.log)

	dispatcherOpts := []alert.Option{
		alert.WithClock(a.clock),
		alert.WithLogger(a.log),
		alert.WithListener(sessionPush{server: a.server}),
	}

	if a.sink != nil {
		a.events = newAlertEvents(a.sink, a.deviceID, a.clock, a.log)
		dispatcherOpts = append(dispatcherOpts, alert.WithListener(a.events))
	}

	a.dispatcher, err = alert.NewDispatcher(cfg.Alert, a.actuator, a.tracker.DistanceOf, dispatcherOpts...)
	if err != nil {
		return nil, err
	}

	a.announcer = NewAnnouncer(cfg.Announce, a.announcement, a.clock, a.log)

	return a, nil
}

// DeviceID is the id the collar announces itself with.
func (a *Agent) DeviceID() string {
	return a.deviceID
}

// Start serves sessions and runs the scan, telemetry and broadcast loops
// until ctx is cancelled or Stop is called. An agent runs at most once.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}

	lis, err := net.Listen("tcp", a.cfg.ListenHTTP)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.ListenHTTP, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.cancel = cancel
	a.done = done
	a.addr = lis.Addr()
	a.endpoint = a.sessionEndpoint(ctx, lis.Addr())
	a.mu.Unlock()

	defer close(done)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle(a.cfg.SessionPath, a.server)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var wg sync.WaitGroup

	run := func(f func()) {
		wg.Add(1)

		go func() {
			defer wg.Done()
			f()
		}()
	}

	serveErr := make(chan error, 1)

	run(func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})
	run(func() { a.server.Run(ctx) })
	run(func() { a.scanLoop(ctx) })
	run(func() { a.telemetryLoop(ctx) })
	run(func() {
		if err := a.announcer.Run(ctx); err != nil {
			a.log.Error().Err(err).Msg("Announcer stopped")
		}
	})

	if a.events != nil {
		run(func() { a.events.run(ctx) })
	}

	if a.kv != nil {
		if err := proximity.WatchKV(ctx, a.kv, a.cfg.KVPrefix, a.configs, a.log); err != nil {
			a.log.Warn().Err(err).Msg("Proximity config watch unavailable")
		}
	}

	if a.cfg.MDNS {
		port := lis.Addr().(*net.TCPAddr).Port

		shutdown, err := advertise(a.deviceID, port, a.cfg.SessionPath)
		if err != nil {
			a.log.Warn().Err(err).Msg("mDNS advertisement unavailable")
		} else {
			defer shutdown()
		}
	}

	a.log.Info().
		Str("device_id", a.deviceID).
		Str("endpoint", a.endpoint).
		Msg("Collar agent started")

	close(a.ready)

	var result error

	select {
	case <-ctx.Done():
	case result = <-serveErr:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	a.server.Close()
	a.dispatcher.EmergencyStop()
	wg.Wait()

	a.log.Info().Msg("Collar agent stopped")

	return result
}

// Stop ends Start and waits for it to return.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the session server is listening.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// Addr is the bound session listener address.
func (a *Agent) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.addr
}

// SessionEndpoint is the URL the collar announces.
func (a *Agent) SessionEndpoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.endpoint
}

func (a *Agent) sessionEndpoint(ctx context.Context, bound net.Addr) string {
	host := a.cfg.Announce.AdvertiseHost
	if host == "" {
		host = advertiseIP(ctx)
	}

	port := strconv.Itoa(bound.(*net.TCPAddr).Port)

	return "ws://" + net.JoinHostPort(host, port) + a.cfg.SessionPath
}

func (a *Agent) scanLoop(ctx context.Context) {
	ticker := a.clock.Ticker(a.cfg.ScanInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.ScanOnce(ctx)
		}
	}
}

// ScanOnce runs a single scan cycle: scan, estimate, evaluate, dispatch.
func (a *Agent) ScanOnce(ctx context.Context) {
	readings, err := a.scanner.Scan(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Beacon scan failed")
		return
	}

	now := a.clock.Now()
	observations := make([]models.BeaconObservation, 0, len(readings))

	for _, r := range readings {
		est := a.estimator.Estimate(r.RSSI)

		observations = append(observations, models.BeaconObservation{
			BeaconID:   r.BeaconID,
			RSSI:       r.RSSI,
			DistanceCm: est.DistanceCm,
			Quality:    est.Quality,
			Known:      est.Known,
			Timestamp:  now,
		})
	}

	for _, s := range a.tracker.Evaluate(now, observations) {
		a.dispatcher.OnAlertStart(alert.Request{
			BeaconID:   s.BeaconID,
			DistanceCm: s.DistanceCm,
			Modality:   s.Modality,
			Intensity:  s.Intensity,
			Duration:   s.Duration,
			Pattern:    s.Pattern,
		})
	}
}

func (a *Agent) telemetryLoop(ctx context.Context) {
	ticker := a.clock.Ticker(a.cfg.TelemetryInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if a.server.Clients() == 0 {
				continue
			}

			env, err := models.NewEnvelope(models.MessageTelemetry, a.Status(ctx))
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to encode telemetry")
				continue
			}

			a.server.Push(env)
		}
	}
}

func (a *Agent) announcement(ctx context.Context) models.DeviceAnnouncement {
	return models.DeviceAnnouncement{
		DeviceID:        a.deviceID,
		DeviceType:      models.DeviceTypeCollar,
		IPAddress:       hostOf(a.SessionEndpoint()),
		SessionEndpoint: a.SessionEndpoint(),
		FirmwareVersion: a.cfg.Firmware,
		BatteryPercent:  a.cfg.Battery,
		UptimeMs:        a.system.sample(ctx).UptimeMs,
		Timestamp:       a.clock.Now(),
	}
}

func hostOf(endpoint string) string {
	rest, ok := strings.CutPrefix(endpoint, "ws://")
	if !ok {
		return ""
	}

	host, _, err := net.SplitHostPort(strings.SplitN(rest, "/", 2)[0])
	if err != nil {
		return ""
	}

	return host
}

// Status builds the telemetry block reported to clients.
func (a *Agent) Status(ctx context.Context) models.Telemetry {
	sys := a.system.sample(ctx)
	sys.FirmwareVersion = a.cfg.Firmware
	sys.SessionClients = a.server.Clients()
	sys.Alerts = a.dispatcher.Stats()

	return models.Telemetry{
		DeviceID:       a.deviceID,
		BatteryPercent: a.cfg.Battery,
		Beacons:        beaconTelemetry(a.tracker.Snapshot()),
		System:         sys,
	}
}

// TriggerAlert runs a manual alert through the dispatcher.
func (a *Agent) TriggerAlert(_ context.Context, cmd models.TriggerAlertCommand) error {
	if cmd.Intensity < models.MinIntensity || cmd.Intensity > models.MaxIntensity {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, models.ErrInvalidIntensity)
	}

	if cmd.Modality == "" || cmd.Modality == models.ModalityNone {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, models.ErrInvalidModality)
	}

	beaconID := cmd.BeaconID
	if beaconID == "" {
		beaconID = manualBeaconID
	}

	var dist float64
	if d, ok := a.tracker.DistanceOf(beaconID); ok {
		dist = d
	}

	ok := a.dispatcher.OnAlertStart(alert.Request{
		BeaconID:   beaconID,
		DistanceCm: dist,
		Modality:   cmd.Modality,
		Intensity:  cmd.Intensity,
		Duration:   cmd.Duration.Std(),
		Pattern:    cmd.Pattern,
	})
	if !ok {
		return ErrAlertRejected
	}

	return nil
}

// StopAlert is the emergency stop.
func (a *Agent) StopAlert(context.Context) error {
	a.dispatcher.EmergencyStop()
	return nil
}

// SetProximityConfig replaces a beacon's config, effective from the next scan.
func (a *Agent) SetProximityConfig(ctx context.Context, cmd models.SetProximityConfigCommand) error {
	if err := a.configs.Set(cmd.BeaconID, cmd.Config); err != nil {
		return err
	}

	if a.kv != nil {
		if err := proximity.SaveKV(ctx, a.kv, a.cfg.KVPrefix, cmd.BeaconID, cmd.Config); err != nil {
			a.log.Warn().Err(err).Str("beacon_id", cmd.BeaconID).Msg("Failed to persist proximity config")
		}
	}

	a.log.Info().Str("beacon_id", cmd.BeaconID).Msg("Proximity config updated")

	return nil
}

// Dispatcher exposes the alert dispatcher for status and tests.
func (a *Agent) Dispatcher() *alert.Dispatcher {
	return a.dispatcher
}

// ProximityConfigs is the live per-beacon config store.
func (a *Agent) ProximityConfigs() *proximity.MemoryConfigStore {
	return a.configs
}
