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

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

var errUnsupportedFormat = errors.New("unsupported config format")

// FileConfigLoader reads a JSON or TOML document from disk. The format follows
// the file extension; anything other than .toml is treated as JSON.
type FileConfigLoader struct{}

func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %q: %w", path, err)
	}

	return decodeDocument(path, data, dst)
}

// decodeDocument unmarshals data into dst. TOML is normalised through JSON so
// the json tags and custom unmarshalers on config structs apply to both formats.
func decodeDocument(name string, data []byte, dst interface{}) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse TOML %q: %w", name, err)
		}

		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to normalise TOML %q: %w", name, err)
		}

		data = raw
	case ".json", "":
	default:
		if !json.Valid(bytes.TrimSpace(data)) {
			return fmt.Errorf("%w: %q", errUnsupportedFormat, name)
		}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %q: %w", name, err)
	}

	return nil
}
