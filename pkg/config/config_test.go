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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/collarlink/pkg/config/kv"
	"github.com/carverauto/collarlink/pkg/logger"
	"github.com/carverauto/collarlink/pkg/models"
)

type nested struct {
	Level string `json:"level"`
}

type testConfig struct {
	Name     string          `json:"name"`
	Port     int             `json:"port"`
	Enabled  bool            `json:"enabled"`
	Interval models.Duration `json:"interval"`
	Timeout  time.Duration   `json:"timeout"`
	Peers    []string        `json:"peers"`
	Logging  *nested         `json:"logging"`
	Inline   nested          `json:"inline"`
}

var errNameRequired = errors.New("name required")

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errNameRequired
	}

	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "service.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidateFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeConfig(t, `{"name":"relay","port":8765,"interval":"15s","logging":{"level":"debug"}}`)

	var cfg testConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "relay", cfg.Name)
	assert.Equal(t, 8765, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.Interval.Std())
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadTOMLFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := filepath.Join(t.TempDir(), "collar.toml")
	body := `name = "collar"
port = 8080
interval = "250ms"
peers = ["a", "b"]

[logging]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	var cfg testConfig
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "collar", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval.Std())
	assert.Equal(t, []string{"a", "b"}, cfg.Peers)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadUnknownExtension(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	dir := t.TempDir()

	yml := filepath.Join(dir, "collar.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("name: collar\n"), 0o600))

	var cfg testConfig
	require.ErrorIs(t, NewConfig(nil).LoadAndValidate(context.Background(), yml, &cfg), errUnsupportedFormat)

	// JSON content is accepted whatever the extension
	conf := filepath.Join(dir, "collar.conf")
	require.NoError(t, os.WriteFile(conf, []byte(`{"name":"collar"}`), 0o600))
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), conf, &cfg))
	assert.Equal(t, "collar", cfg.Name)
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeConfig(t, `{"port":1}`)

	var cfg testConfig
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errNameRequired)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	var cfg testConfig
	err := NewConfig(nil).LoadAndValidate(context.Background(), "/nonexistent/collar.json", &cfg)
	require.Error(t, err)
}

func TestLoadInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg testConfig
	err := NewConfig(nil).LoadAndValidate(context.Background(), "x.json", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "")
	t.Setenv("COLLARLINK_NAME", "collar")
	t.Setenv("COLLARLINK_PORT", "8080")
	t.Setenv("COLLARLINK_ENABLED", "true")
	t.Setenv("COLLARLINK_INTERVAL", "3s")
	t.Setenv("COLLARLINK_TIMEOUT", "250ms")
	t.Setenv("COLLARLINK_PEERS", "10.0.0.1, 10.0.0.2")
	t.Setenv("COLLARLINK_LOGGING_LEVEL", "warn")
	t.Setenv("COLLARLINK_INLINE_LEVEL", "error")

	var cfg testConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "collar", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Interval.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Peers)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "error", cfg.Inline.Level)
}

func TestLoadFromEnvConfigJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "RELAY_")
	t.Setenv("RELAY_CONFIG_JSON", `{"name":"json-relay","port":9}`)

	var cfg testConfig
	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "json-relay", cfg.Name)
	assert.Equal(t, 9, cfg.Port)
	assert.Nil(t, cfg.Logging)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	t.Setenv("X_CONFIG_JSON", "")

	loader := NewEnvConfigLoader(logger.NewTestLogger(), "X_")

	require.ErrorIs(t, loader.Load(context.Background(), "", testConfig{}), ErrDstMustBeNonNilPointer)

	s := "str"
	require.ErrorIs(t, loader.Load(context.Background(), "", &s), ErrDstMustBePointerToStruct)
}

func TestLoadFromKV(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	ctrl := gomock.NewController(t)
	store := kv.NewMockKVStore(ctrl)

	store.EXPECT().
		Get(gomock.Any(), "config/relay.json").
		Return([]byte(`{"name":"from-kv"}`), true, nil)

	loader := NewConfig(logger.NewTestLogger())
	loader.SetKVStore(store)

	var cfg testConfig
	require.NoError(t, loader.LoadAndValidate(context.Background(), "/etc/collarlink/relay.json", &cfg))
	assert.Equal(t, "from-kv", cfg.Name)
}

func TestLoadFromKVFallsBackToFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	ctrl := gomock.NewController(t)
	store := kv.NewMockKVStore(ctrl)

	path := writeConfig(t, `{"name":"from-file"}`)

	store.EXPECT().Get(gomock.Any(), "config/service.json").Return(nil, false, nil)

	loader := NewConfig(logger.NewTestLogger())
	loader.SetKVStore(store)

	var cfg testConfig
	require.NoError(t, loader.LoadAndValidate(context.Background(), path, &cfg))
	assert.Equal(t, "from-file", cfg.Name)
}

func TestLoadFromKVWithoutStore(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	var cfg testConfig
	require.ErrorIs(t, NewConfig(nil).LoadAndValidate(context.Background(), "x.json", &cfg), errKVStoreNotSet)
}

func TestStartKVPrefixWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	store := kv.NewMockKVStore(ctrl)

	ch := make(chan kv.Entry, 2)
	ch <- kv.Entry{Key: "proximity/a", Value: []byte("1")}
	ch <- kv.Entry{Key: "proximity/b", Deleted: true}
	close(ch)

	store.EXPECT().WatchPrefix(gomock.Any(), "proximity/").Return((<-chan kv.Entry)(ch), nil)

	applied := make(chan string, 2)

	err := StartKVPrefixWatch(ctx, store, "proximity/", logger.NewTestLogger(), func(key string, _ []byte, deleted bool) error {
		if deleted {
			applied <- "del:" + key
		} else {
			applied <- "put:" + key
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "put:proximity/a", <-applied)
	assert.Equal(t, "del:proximity/b", <-applied)
}
