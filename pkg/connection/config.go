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
	"errors"
	"time"

	"github.com/carverauto/collarlink/pkg/models"
)

const (
	DefaultRetryInterval  = 3 * time.Second
	DefaultAttemptTimeout = 5 * time.Second
)

var errNegativeInterval = errors.New("intervals must not be negative")

// Config is the client-side connection configuration.
type Config struct {
	RelayURL         string          `json:"relay_url"`
	Candidates       []string        `json:"candidates"`
	MDNS             bool            `json:"mdns"`
	CachePath        string          `json:"cache_path"`
	RetryInterval    models.Duration `json:"retry_interval"`
	AttemptTimeout   models.Duration `json:"attempt_timeout"`
	ProbeTimeout     models.Duration `json:"probe_timeout"`
	ProbeConcurrency int             `json:"probe_concurrency"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if c.RetryInterval < 0 || c.AttemptTimeout < 0 || c.ProbeTimeout < 0 {
		return errNegativeInterval
	}

	if c.RetryInterval == 0 {
		c.RetryInterval = models.Duration(DefaultRetryInterval)
	}

	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = models.Duration(DefaultAttemptTimeout)
	}

	return nil
}
