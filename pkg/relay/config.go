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
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

const (
	DefaultListenUDP    = ":47269"
	DefaultListenHTTP   = ":8765"
	DefaultPath         = "/discovery"
	DefaultQueueSize    = 16
	DefaultWriteTimeout = 2 * time.Second

	// maxDatagram is the largest UDP payload the relay reads.
	maxDatagram = 64 << 10
)

// Config is the relay's configuration file.
type Config struct {
	ListenUDP    string          `json:"listen_udp"`
	ListenHTTP   string          `json:"listen_http"`
	Path         string          `json:"path"`
	QueueSize    int             `json:"queue_size"`
	WriteTimeout models.Duration `json:"write_timeout"`
	PingInterval models.Duration `json:"ping_interval"`
	PongTimeout  models.Duration `json:"pong_timeout"`
	Logging      *logger.Config  `json:"logging,omitempty"`
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.ListenUDP == "" {
		c.ListenUDP = DefaultListenUDP
	}

	if c.ListenHTTP == "" {
		c.ListenHTTP = DefaultListenHTTP
	}

	if c.Path == "" {
		c.Path = DefaultPath
	}

	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, c.Path)
	}

	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}

	if c.QueueSize < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQueueSize, c.QueueSize)
	}

	if c.WriteTimeout < 0 || c.PingInterval < 0 || c.PongTimeout < 0 {
		return ErrNegativeTimeout
	}

	if c.WriteTimeout == 0 {
		c.WriteTimeout = models.Duration(DefaultWriteTimeout)
	}

	return nil
}
