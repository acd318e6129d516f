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
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/cenkalti/backoff/v4"
)

// BackendKafka is the name of the Kafka backend.
const BackendKafka = "kafka"

// KafkaConfig configures the Kafka backend.
type KafkaConfig struct {
	Brokers  []string `json:"brokers" yaml:"brokers"`
	Topic    string   `json:"topic" yaml:"topic"`
	ClientID string   `json:"clientID,omitempty" yaml:"client_id,omitempty"`
}

// KafkaWriter publishes each event of a batch as one Kafka message keyed by
// the batch source, so events of one task keep their order per partition.
type KafkaWriter struct {
	producer sarama.SyncProducer
	topic    string
	pause    time.Duration
	log      *slog.Logger
}

// NewKafkaWriter dials the brokers with a synchronous, all-replica-ack producer.
func NewKafkaWriter(cfg KafkaConfig) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "kafka brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	if sc.ClientID == "" {
		sc.ClientID = "cloud-collector"
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 0 // retries are driven by Deliver

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to create kafka producer", err,
			map[string]any{"brokers": cfg.Brokers})
	}
	return NewKafkaWriterWithProducer(producer, cfg.Topic), nil
}

// NewKafkaWriterWithProducer wraps an existing producer.
func NewKafkaWriterWithProducer(producer sarama.SyncProducer, topic string) *KafkaWriter {
	return &KafkaWriter{
		producer: producer,
		topic:    topic,
		pause:    defaults.RetryPause,
		log:      slog.Default().With(slog.String("backend", BackendKafka), slog.String("topic", topic)),
	}
}

// Name implements Backend.
func (k *KafkaWriter) Name() string {
	return BackendKafka
}

// Deliver implements Backend.
func (k *KafkaWriter) Deliver(ctx context.Context, b Batch, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	lines, err := hecEvents(b)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to encode events", err)
	}

	tries := 0
	op := func() error {
		tries++
		msgs := make([]*sarama.ProducerMessage, 0, len(lines))
		for _, line := range lines {
			msgs = append(msgs, &sarama.ProducerMessage{
				Topic: k.topic,
				Key:   sarama.StringEncoder(b.Meta.Source),
				Value: sarama.ByteEncoder(line),
			})
		}
		if err := k.producer.SendMessages(msgs); err != nil {
			sinkDeliveryAttempts.WithLabelValues(BackendKafka, "failed").Inc()
			k.log.Error("failed to publish events",
				slog.Int("attempt", tries),
				slog.String("error", err.Error()))
			return err
		}
		sinkDeliveryAttempts.WithLabelValues(BackendKafka, "delivered").Inc()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(k.pause), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return errors.WrapWithContext(errors.ErrCodeDeliveryFailed, "failed to publish events", err,
			map[string]any{"topic": k.topic, "attempts": tries})
	}
	return nil
}

// Close implements Backend.
func (k *KafkaWriter) Close() error {
	return k.producer.Close()
}
