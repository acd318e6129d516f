// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// EnvShutdownTimeout overrides the graceful shutdown window. The value is
	// a Go duration such as "45s", so it can track the pod's grace period.
	EnvShutdownTimeout = "COLLECTOR_SERVER_SHUTDOWN_TIMEOUT"

	// DefaultAddress is where the ops server listens when none is configured.
	DefaultAddress = ":8080"

	// DefaultRateLimit and DefaultRateLimitBurst bound the routed handlers.
	// Probes and /metrics are not limited.
	DefaultRateLimit      rate.Limit = 50
	DefaultRateLimitBurst            = 100
)

// Config holds the ops server settings.
type Config struct {
	// Name and Version are reported on the root route.
	Name    string
	Version string

	// Handlers are served behind the middleware chain, keyed by route.
	Handlers map[string]http.HandlerFunc

	Address string
	Port    int

	RateLimit      rate.Limit
	RateLimitBurst int

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// NewConfig returns the default settings bound to address, given in
// host:port form. An empty address means DefaultAddress.
func NewConfig(address string) (*Config, error) {
	cfg := defaultConfig()
	if address == "" {
		address = DefaultAddress
	}
	if err := cfg.setAddress(address); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Name:              "collectord",
		Version:           "dev",
		Port:              8080,
		RateLimit:         DefaultRateLimit,
		RateLimitBurst:    DefaultRateLimitBurst,
		ReadTimeout:       defaults.ServerReadTimeout,
		ReadHeaderTimeout: defaults.ServerReadHeaderTimeout,
		WriteTimeout:      defaults.ServerWriteTimeout,
		IdleTimeout:       defaults.ServerIdleTimeout,
		ShutdownTimeout:   defaults.ServerShutdownTimeout,
	}
}

func (c *Config) setAddress(address string) error {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeInvalidConfig, "invalid server address", err,
			map[string]any{"address": address})
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, "invalid server port",
			map[string]any{"address": address})
	}
	c.Address = host
	c.Port = port
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	v, ok := lookup(EnvShutdownTimeout)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, "invalid shutdown timeout",
			map[string]any{"env": EnvShutdownTimeout, "value": v})
	}
	c.ShutdownTimeout = d
	return nil
}
