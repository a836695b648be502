/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsEmptyHost(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "host"
	cfg.Port = 70000
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsBadBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "host"

	cfg.Backoff.MaxRetries = -2
	require.Error(t, cfg.Validate())

	cfg.Backoff.MaxRetries = 3
	cfg.Backoff.RetryInterval = 0
	require.Error(t, cfg.Validate())

	cfg.Backoff.RetryInterval = time.Second
	cfg.Backoff.MaxRetryInterval = 0
	require.Error(t, cfg.Validate())
}

func TestReadConfigAppliesOverridesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "host: phasor.example.com\nport: 8900\nauto_reconnect: false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "phasor.example.com", cfg.Host)
	require.Equal(t, 8900, cfg.Port)
	require.False(t, cfg.AutoReconnect)
	// Fields the file didn't mention keep DefaultConfig's values.
	require.True(t, cfg.AutoRequestMetadata)
	require.Equal(t, 30*time.Second, cfg.Backoff.MaxRetryInterval)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
