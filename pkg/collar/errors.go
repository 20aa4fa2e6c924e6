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

import "errors"

var (
	ErrInvalidInterval   = errors.New("intervals must be positive")
	ErrInvalidPort       = errors.New("invalid session port")
	ErrNoScanner         = errors.New("no beacon scanner configured")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrInvalidCommand    = errors.New("invalid command payload")
	ErrAlreadyStarted    = errors.New("agent already started")
	ErrEmptyScript       = errors.New("simulated beacon needs at least one rssi sample")
	ErrDuplicateBeaconID = errors.New("duplicate simulated beacon id")
)
