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

// Package client implements the STTP subscriber: the session state
// machine (connect/negotiate/subscribe/receive), the connector that keeps
// it alive across publisher restarts and network blips, and the metadata
// port that hands decompressed metadata to the application.
package client

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/gridprotectionalliance/go-sttp/protocol"
)

// BackoffConfig governs the connector's reconnect wait, mirroring the
// shape (mode/step/max) the reference sptp client uses for its own
// faulty-grandmaster backoff, specialized here to the one mode the
// specification actually calls for: exponential.
type BackoffConfig struct {
	RetryInterval    time.Duration `yaml:"retry_interval"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval"`
	MaxRetries       int           `yaml:"max_retries"`
}

// Config governs one subscriber connection: target, reconnection policy,
// compression negotiation, and the subscription started on connect.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	AutoReconnect       bool `yaml:"auto_reconnect"`
	AutoRequestMetadata bool `yaml:"auto_request_metadata"`
	AutoSubscribe       bool `yaml:"auto_subscribe"`

	Backoff BackoffConfig `yaml:"backoff"`

	CompressPayloadData      bool `yaml:"compress_payload_data"`
	CompressMetadata         bool `yaml:"compress_metadata"`
	CompressSignalIndexCache bool `yaml:"compress_signal_index_cache"`

	SocketTimeout   time.Duration `yaml:"socket_timeout"`
	ProtocolVersion uint8         `yaml:"protocol_version"`

	Subscription SubscriptionInfo `yaml:"subscription"`
}

// DefaultConfig returns the defaults from §6 of the specification: 30
// second max backoff doubling from 1 second, infinite retries, every
// compression flag requested, current protocol version.
func DefaultConfig() *Config {
	return &Config{
		Port:                     7165,
		AutoReconnect:            true,
		AutoRequestMetadata:      true,
		AutoSubscribe:            true,
		Backoff: BackoffConfig{
			RetryInterval:    time.Second,
			MaxRetryInterval: 30 * time.Second,
			MaxRetries:       -1,
		},
		CompressPayloadData:      true,
		CompressMetadata:         true,
		CompressSignalIndexCache: true,
		SocketTimeout:            2 * time.Second,
		ProtocolVersion:          protocol.ProtocolVersion,
		Subscription:             DefaultSubscriptionInfo(),
	}
}

// Validate reports a configuration error a caller must fix before Connect;
// per the specification's error taxonomy these are caller mistakes, never
// retried by the connector.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("client: host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("client: port %d out of range", c.Port)
	}
	if c.Backoff.MaxRetries < -1 {
		return fmt.Errorf("client: max_retries must be -1 (infinite) or >= 0, got %d", c.Backoff.MaxRetries)
	}
	if c.Backoff.RetryInterval <= 0 {
		return fmt.Errorf("client: retry_interval must be positive")
	}
	if c.Backoff.MaxRetryInterval < c.Backoff.RetryInterval {
		return fmt.Errorf("client: max_retry_interval must be >= retry_interval")
	}
	return nil
}

// ReadConfig loads a Config from a YAML file, applying DefaultConfig
// first so fields the file omits keep their defaults.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("client: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("client: parsing config %s: %w", path, err)
	}
	return c, nil
}
