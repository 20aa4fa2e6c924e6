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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// resolveDeviceID returns the configured id, else the one stored in idFile,
// else a fresh one which is written to idFile when set.
func resolveDeviceID(configured, idFile string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	if idFile != "" {
		data, err := os.ReadFile(idFile)

		switch {
		case err == nil:
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("failed to read device id: %w", err)
		}
	}

	id := "collar-" + uuid.New().String()

	if idFile == "" {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(idFile), 0o755); err != nil {
		return "", fmt.Errorf("failed to create device id dir: %w", err)
	}

	if err := os.WriteFile(idFile, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}

	return id, nil
}
