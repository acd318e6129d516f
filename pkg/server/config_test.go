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
	"testing"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "empty uses default", wantPort: 8080},
		{name: "port only", address: ":9090", wantPort: 9090},
		{name: "host and port", address: "127.0.0.1:8081", wantHost: "127.0.0.1", wantPort: 8081},
		{name: "ipv6", address: "[::1]:8082", wantHost: "::1", wantPort: 8082},
		{name: "missing port", address: "8080", wantErr: true},
		{name: "named port", address: "localhost:http", wantErr: true},
		{name: "port out of range", address: ":70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(tt.address)
			if tt.wantErr {
				if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
					t.Fatalf("expected INVALID_CONFIG, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Address != tt.wantHost || cfg.Port != tt.wantPort {
				t.Errorf("expected %s:%d, got %s:%d", tt.wantHost, tt.wantPort, cfg.Address, cfg.Port)
			}
			if cfg.RateLimit != DefaultRateLimit || cfg.RateLimitBurst != DefaultRateLimitBurst {
				t.Errorf("unexpected rate limit %v/%d", cfg.RateLimit, cfg.RateLimitBurst)
			}
			if cfg.ShutdownTimeout != 30*time.Second {
				t.Errorf("expected shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
			}
		})
	}
}

func TestConfigShutdownTimeoutFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "unset keeps default", want: 30 * time.Second},
		{name: "duration", value: "45s", want: 45 * time.Second},
		{name: "bare number", value: "5", wantErr: true},
		{name: "negative", value: "-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			err := cfg.applyEnv(func(key string) (string, bool) {
				if key == EnvShutdownTimeout && tt.value != "" {
					return tt.value, true
				}
				return "", false
			})
			if tt.wantErr {
				if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
					t.Fatalf("expected INVALID_CONFIG, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.ShutdownTimeout != tt.want {
				t.Errorf("expected %v, got %v", tt.want, cfg.ShutdownTimeout)
			}
		})
	}
}

func TestNewConfigReadsEnv(t *testing.T) {
	t.Setenv(EnvShutdownTimeout, "5s")
	cfg := mustConfig(t, "")
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("expected shutdown timeout 5s, got %v", cfg.ShutdownTimeout)
	}
}
