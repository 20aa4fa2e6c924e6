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

package collar

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/carverauto/collarlink/pkg/alert"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
	"github.com/carverauto/collarlink/pkg/natsutil"
)

const (
	DefaultListenHTTP        = ":8080"
	DefaultSessionPath       = "/ws"
	DefaultBroadcastTarget   = "255.255.255.255:47269"
	DefaultFastInterval      = 15 * time.Second
	DefaultFastPeriod        = 5 * time.Minute
	DefaultSlowInterval      = 60 * time.Second
	DefaultScanInterval      = 500 * time.Millisecond
	DefaultTelemetryInterval = time.Second
	DefaultFirmwareVersion   = "collarlink"
	DefaultMDNSService       = "_petg-collar._tcp"
)

// AnnounceConfig controls the discovery broadcast.
type AnnounceConfig struct {
	Target string `json:"target"`
	// FastInterval applies for FastPeriod after boot, SlowInterval afterwards.
	FastInterval models.Duration `json:"fast_interval"`
	FastPeriod   models.Duration `json:"fast_period"`
	SlowInterval models.Duration `json:"slow_interval"`
	// AdvertiseHost overrides the address put in the session endpoint.
	AdvertiseHost string `json:"advertise_host,omitempty"`
}

// SimulatedBeacon replays an rssi script, one sample per scan. A sample of 0
// means the beacon was not heard.
type SimulatedBeacon struct {
	ID   string `json:"id"`
	RSSI []int  `json:"rssi"`
}

// Config is the collar agent configuration.
type Config struct {
	DeviceID     string `json:"device_id,omitempty"`
	DeviceIDFile string `json:"device_id_file,omitempty"`
	Firmware     string `json:"firmware_version,omitempty"`
	Battery      int    `json:"battery_percent"`

	ListenHTTP  string         `json:"listen_http"`
	SessionPath string         `json:"session_path"`
	Announce    AnnounceConfig `json:"announce"`
	MDNS        bool           `json:"mdns"`

	ScanInterval      models.Duration `json:"scan_interval"`
	TelemetryInterval models.Duration `json:"telemetry_interval"`
	TxPower           int             `json:"tx_power"`
	Staleness         models.Duration `json:"staleness"`

	Alert     alert.Config                      `json:"alert"`
	Defaults  *models.ProximityConfig           `json:"default_proximity,omitempty"`
	Proximity map[string]models.ProximityConfig `json:"proximity"`
	Beacons   []SimulatedBeacon                 `json:"simulated_beacons"`

	NATS     *natsutil.Config `json:"nats,omitempty"`
	KVPrefix string           `json:"kv_prefix,omitempty"`
	Logging  *logger.Config   `json:"logging,omitempty"`
}

// Validate implements config.Validator and fills defaults.
func (c *Config) Validate() error {
	if c.ListenHTTP == "" {
		c.ListenHTTP = DefaultListenHTTP
	}

	if c.SessionPath == "" {
		c.SessionPath = DefaultSessionPath
	}

	if c.Firmware == "" {
		c.Firmware = DefaultFirmwareVersion
	}

	if _, err := c.SessionPort(); err != nil {
		return err
	}

	a := &c.Announce
	if a.Target == "" {
		a.Target = DefaultBroadcastTarget
	}

	setDefault(&a.FastInterval, DefaultFastInterval)
	setDefault(&a.FastPeriod, DefaultFastPeriod)
	setDefault(&a.SlowInterval, DefaultSlowInterval)
	setDefault(&c.ScanInterval, DefaultScanInterval)
	setDefault(&c.TelemetryInterval, DefaultTelemetryInterval)

	for _, d := range []models.Duration{a.FastInterval, a.FastPeriod, a.SlowInterval, c.ScanInterval, c.TelemetryInterval, c.Staleness} {
		if d < 0 {
			return ErrInvalidInterval
		}
	}

	if err := c.Alert.Validate(); err != nil {
		return err
	}

	if c.Defaults != nil {
		if err := c.Defaults.Validate(); err != nil {
			return fmt.Errorf("default_proximity: %w", err)
		}
	}

	for id, p := range c.Proximity {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("proximity %s: %w", id, err)
		}
	}

	seen := make(map[string]bool, len(c.Beacons))

	for _, b := range c.Beacons {
		if len(b.RSSI) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyScript, b.ID)
		}

		if seen[b.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateBeaconID, b.ID)
		}

		seen[b.ID] = true
	}

	if c.NATS != nil {
		return c.NATS.Validate()
	}

	return nil
}

// SessionPort is the TCP port of ListenHTTP.
func (c *Config) SessionPort() (int, error) {
	_, p, err := net.SplitHostPort(c.ListenHTTP)
	if err != nil {
		return 0, fmt.Errorf("listen_http %q: %w", c.ListenHTTP, err)
	}

	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, p)
	}

	return port, nil
}

func setDefault(d *models.Duration, v time.Duration) {
	if *d == 0 {
		*d = models.Duration(v)
	}
}
