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

import "errors"

var (
	ErrNotConnected   = errors.New("not connected")
	ErrStopped        = errors.New("connection manager stopped")
	ErrAlreadyRunning = errors.New("connection manager already running")
	ErrNoCandidate    = errors.New("no responsive endpoint found")
	ErrNoDialer       = errors.New("dialer is required")
	ErrNoStore        = errors.New("endpoint store is required")
	ErrEndpointURL    = errors.New("endpoint url is required")
)
