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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeviceID(t *testing.T) {
	id, err := resolveDeviceID("collar-7", "")
	require.NoError(t, err)
	assert.Equal(t, "collar-7", id)

	generated, err := resolveDeviceID("", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated, "collar-"))

	path := filepath.Join(t.TempDir(), "state", "device_id")

	first, err := resolveDeviceID("", path)
	require.NoError(t, err)

	second, err := resolveDeviceID("", path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("  collar-from-file \n"), 0o600))

	fromFile, err := resolveDeviceID("", path)
	require.NoError(t, err)
	assert.Equal(t, "collar-from-file", fromFile)
}
