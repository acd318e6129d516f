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

package sink

import (
	"io"
	"log/slog"
	"os"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// Config selects and configures the sink backend.
type Config struct {
	// Kind is one of stream, hec, hec_raw, kafka.
	Kind     string      `json:"kind" yaml:"kind"`
	Capacity int         `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	HEC      HECConfig   `json:"hec,omitempty" yaml:"hec,omitempty"`
	Kafka    KafkaConfig `json:"kafka,omitempty" yaml:"kafka,omitempty"`
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Kind {
	case "", BackendStream:
		return nil
	case BackendHEC, BackendHECRaw:
		if c.HEC.ServerURI == "" || c.HEC.Token == "" {
			return errors.NewWithContext(errors.ErrCodeInvalidConfig,
				"sink.hec.server_uri and sink.hec.token are required", map[string]any{"kind": c.Kind})
		}
		return nil
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "sink.kafka.brokers and sink.kafka.topic are required")
		}
		return nil
	default:
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown sink kind",
			map[string]any{"kind": c.Kind})
	}
}

// NewBackend builds the backend for cfg. out receives stream output.
// confirm reports whether producers should wait for delivery.
func NewBackend(cfg Config, out io.Writer, logger *slog.Logger) (backend Backend, confirm bool, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	switch cfg.Kind {
	case BackendHEC, BackendHECRaw:
		hc := cfg.HEC
		hc.Raw = hc.Raw || cfg.Kind == BackendHECRaw
		w, err := NewHECWriter(hc, WithHECLogger(logger))
		if err != nil {
			return nil, false, err
		}
		return w, true, nil
	case BackendKafka:
		w, err := NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, false, err
		}
		return w, true, nil
	default:
		if out == nil {
			out = os.Stdout
		}
		return NewStreamWriter(out), false, nil
	}
}

// Open builds the backend for cfg and wraps it in a Sink. The sink is not
// started.
func Open(cfg Config, out io.Writer, logger *slog.Logger) (*Sink, error) {
	backend, confirm, err := NewBackend(cfg, out, logger)
	if err != nil {
		return nil, err
	}
	return New(backend,
		WithCapacity(cfg.Capacity),
		WithDeliveryConfirmation(confirm),
		WithLogger(logger),
	), nil
}
