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

	"github.com/grandcat/zeroconf"
)

const mdnsDomain = "local."

// advertise registers the session endpoint over mDNS so clients on the same
// link can find the collar without the relay.
func advertise(deviceID string, port int, path string) (func(), error) {
	srv, err := zeroconf.Register(deviceID, DefaultMDNSService, mdnsDomain, port,
		[]string{"id=" + deviceID, "path=" + path}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", DefaultMDNSService, err)
	}

	return srv.Shutdown, nil
}
