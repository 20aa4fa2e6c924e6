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

// Package alert arbitrates proximity alerts and drives the collar's outputs.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/collarlink/pkg/clock"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

const (
	DefaultMinLevel uint8 = 64
	DefaultMaxLevel uint8 = 255
	DefaultDuration       = time.Second

	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonEmergency = "emergency_stop"
)

// Config bounds the actuator's safe duty-cycle range.
type Config struct {
	MinLevel uint8 `json:"min_level"`
	MaxLevel uint8 `json:"max_level"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.MinLevel == 0 && c.MaxLevel == 0 {
		return nil
	}

	if c.MinLevel > c.MaxLevel {
		return fmt.Errorf("%w: %d > %d", ErrInvalidLevels, c.MinLevel, c.MaxLevel)
	}

	return nil
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func WithListener(l Listener) Option {
	return func(d *Dispatcher) { d.listeners = append(d.listeners, l) }
}

// Dispatcher runs at most one alert at a time and holds at most one queued request.
type Dispatcher struct {
	mu         sync.Mutex
	cfg        Config
	actuator   Actuator
	distanceOf DistanceFunc
	clock      clock.Clock
	log        logger.Logger
	listeners  []Listener

	active  *Active
	pending *Request

	// gen invalidates timer callbacks from earlier alerts
	gen        uint64
	stopTimer  clock.Timer
	stepTimer  clock.Timer
	schedule   []Step
	step       int
	totalCount uint64
	totalTime  time.Duration
	dropped    uint64
	queued     uint64
}

// NewDispatcher creates a dispatcher. distanceOf supplies fresh distances for
// arbitration and may be nil, in which case a busy dispatcher rejects everything.
func NewDispatcher(cfg Config, act Actuator, distanceOf DistanceFunc, opts ...Option) (*Dispatcher, error) {
	if act == nil {
		return nil, ErrNoActuator
	}

	if cfg.MinLevel == 0 && cfg.MaxLevel == 0 {
		cfg.MinLevel, cfg.MaxLevel = DefaultMinLevel, DefaultMaxLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:        cfg,
		actuator:   act,
		distanceOf: distanceOf,
		clock:      clock.Real(),
		log:        logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

type notice struct {
	active  Active
	started bool
	reason  string
}

func (d *Dispatcher) notify(events []notice) {
	for _, ev := range events {
		for _, l := range d.listeners {
			if ev.started {
				l.AlertStarted(ev.active)
			} else {
				l.AlertStopped(ev.active, ev.reason)
			}
		}
	}
}

// OnAlertStart starts, queues or drops req. It reports whether the request
// was started or queued.
func (d *Dispatcher) OnAlertStart(req Request) bool {
	if req.Modality == models.ModalityNone {
		return false
	}

	if req.Duration <= 0 {
		req.Duration = DefaultDuration
	}

	d.mu.Lock()

	var events []notice

	ok := true

	switch Arbitrate(req, d.active, d.distanceOf) {
	case Accept:
		events = append(events, d.startLocked(req))
	case Queue:
		d.enqueueLocked(req)
	case Reject:
		d.dropped++
		ok = false

		d.log.Debug().Str("beacon_id", req.BeaconID).Msg("Alert request rejected")
	}

	d.mu.Unlock()
	d.notify(events)

	return ok
}

// enqueueLocked keeps whichever of req and the current pending request is closer.
func (d *Dispatcher) enqueueLocked(req Request) {
	d.queued++

	if d.pending != nil && d.pending.BeaconID != req.BeaconID {
		keep := d.closer(*d.pending, req)
		d.dropped++

		d.log.Debug().
			Str("kept", keep.BeaconID).
			Msg("Pending alert replaced")

		d.pending = &keep

		return
	}

	d.pending = &req
}

func (d *Dispatcher) closer(a, b Request) Request {
	if d.distanceOf == nil {
		return a
	}

	ad, aok := d.distanceOf(a.BeaconID)
	bd, bok := d.distanceOf(b.BeaconID)

	if bok && (!aok || bd < ad) {
		return b
	}

	return a
}

func (d *Dispatcher) startLocked(req Request) notice {
	d.gen++
	gen := d.gen

	d.active = &Active{
		Request:   req,
		Level:     DriveLevel(req.Intensity, d.cfg.MinLevel, d.cfg.MaxLevel),
		StartedAt: d.clock.Now(),
	}
	d.totalCount++

	d.schedule = Schedule(req.Pattern)
	d.step = 0
	d.applyLocked(true)

	if len(d.schedule) > 0 {
		d.stepTimer = d.clock.AfterFunc(d.schedule[0].Length, func() { d.advancePattern(gen) })
	}

	d.stopTimer = d.clock.AfterFunc(req.Duration, func() { d.finish(gen, ReasonCompleted, true) })

	d.log.Info().
		Str("beacon_id", req.BeaconID).
		Str("modality", string(req.Modality)).
		Int("intensity", req.Intensity).
		Uint8("level", d.active.Level).
		Dur("duration", req.Duration).
		Msg("Alert started")

	return notice{active: *d.active, started: true}
}

func (d *Dispatcher) advancePattern(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen || d.active == nil || len(d.schedule) == 0 {
		return
	}

	d.step = (d.step + 1) % len(d.schedule)
	step := d.schedule[d.step]

	d.applyLocked(step.On)
	d.stepTimer = d.clock.AfterFunc(step.Length, func() { d.advancePattern(gen) })
}

// applyLocked switches the outputs used by the active alert on or off.
func (d *Dispatcher) applyLocked(on bool) {
	ctx := context.Background()
	a := d.active

	for _, out := range outputsFor(a.Modality) {
		var err error

		if on {
			err = d.actuator.Drive(ctx, out, a.Level)
		} else {
			err = d.actuator.Off(ctx, out)
		}

		if err != nil {
			d.log.Warn().Err(err).Str("output", out.String()).Msg("Actuator command failed")
		}
	}
}

func outputsFor(m models.AlertModality) []Output {
	var outs []Output

	if m.UsesPrimary() {
		outs = append(outs, Primary)
	}

	if m.UsesSecondary() {
		outs = append(outs, Secondary)
	}

	return outs
}

// finish ends the alert of generation gen. When promote is set the pending
// request is re-arbitrated against fresh distances.
func (d *Dispatcher) finish(gen uint64, reason string, promote bool) {
	d.mu.Lock()

	if gen != d.gen || d.active == nil {
		d.mu.Unlock()
		return
	}

	events := []notice{d.stopLocked(reason)}

	if promote {
		if ev, ok := d.promoteLocked(events[0].active); ok {
			events = append(events, ev)
		}
	} else {
		d.pending = nil
	}

	d.mu.Unlock()
	d.notify(events)
}

func (d *Dispatcher) stopLocked(reason string) notice {
	a := *d.active

	if d.stopTimer != nil {
		d.stopTimer.Stop()
		d.stopTimer = nil
	}

	if d.stepTimer != nil {
		d.stepTimer.Stop()
		d.stepTimer = nil
	}

	d.applyLocked(false)

	d.gen++
	d.totalTime += d.clock.Now().Sub(a.StartedAt)
	d.active = nil
	d.schedule = nil

	d.log.Info().Str("beacon_id", a.BeaconID).Str("reason", reason).Msg("Alert stopped")

	return notice{active: a, reason: reason}
}

func (d *Dispatcher) promoteLocked(finished Active) (notice, bool) {
	p := d.pending
	d.pending = nil

	if p == nil {
		return notice{}, false
	}

	if d.distanceOf != nil {
		pd, pok := d.distanceOf(p.BeaconID)
		fd, fok := d.distanceOf(finished.BeaconID)

		if pok && (!fok || pd < fd) {
			return d.startLocked(*p), true
		}
	}

	d.dropped++
	d.log.Debug().Str("beacon_id", p.BeaconID).Msg("Pending alert dropped")

	return notice{}, false
}

// OnAlertStop ends the beacon's alert if it is active, or removes it from the
// pending slot.
func (d *Dispatcher) OnAlertStop(beaconID string) {
	d.mu.Lock()

	if d.pending != nil && d.pending.BeaconID == beaconID {
		d.pending = nil
	}

	if d.active == nil || d.active.BeaconID != beaconID {
		d.mu.Unlock()
		return
	}

	gen := d.gen
	d.mu.Unlock()

	d.finish(gen, ReasonStopped, true)
}

// EmergencyStop silences the outputs and discards any pending request.
func (d *Dispatcher) EmergencyStop() {
	d.mu.Lock()

	d.pending = nil

	if d.active == nil {
		d.mu.Unlock()
		return
	}

	gen := d.gen
	d.mu.Unlock()

	d.finish(gen, ReasonEmergency, false)
}

// Active returns the running alert, if any.
func (d *Dispatcher) Active() (Active, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil {
		return Active{}, false
	}

	return *d.active, true
}

// Pending returns the queued request, if any.
func (d *Dispatcher) Pending() (Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return Request{}, false
	}

	return *d.pending, true
}

// Stats summarises the dispatcher for telemetry.
func (d *Dispatcher) Stats() models.AlertStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := models.AlertStats{
		TotalAlerts:  d.totalCount,
		TotalAlertMs: d.totalTime.Milliseconds(),
		Dropped:      d.dropped,
		Queued:       d.queued,
	}

	if d.active != nil {
		s.Active = true
		s.ActiveBeaconID = d.active.BeaconID
	}

	return s
}
