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

package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
)

// MessagePoller streams one subscription into the sink.
type MessagePoller struct {
	task      config.Task
	source    MessageSource
	writer    EventWriter
	threshold int
	options
	stopper

	count int
	since time.Time
}

// NewMessagePoller returns a poller for a message task.
func NewMessagePoller(task config.Task, source MessageSource, writer EventWriter, opts ...Option) *MessagePoller {
	o := buildOptions(opts)
	o.log = o.log.With(
		slog.String("task", task.Name),
		slog.String("project", task.Project),
		slog.String("subscription", task.Subscription))
	return &MessagePoller{
		task:      task,
		source:    source,
		writer:    writer,
		threshold: defaults.RecordReportThreshold,
		options:   o,
		stopper:   stopper{ch: make(chan struct{})},
	}
}

// Run pulls until ctx is done or Stop is called.
func (p *MessagePoller) Run(ctx context.Context) error {
	ctx, cancel := p.bind(ctx)
	defer cancel()

	p.log.Info("start collecting messages")
	p.since = p.clock.Now()

	for !p.stopped() && ctx.Err() == nil {
		msgs, err := p.source.Pull(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.IsCode(err, errors.ErrCodeTimeout) {
				// A long poll that timed out is an empty batch.
				continue
			}
			p.log.Error("failed to pull messages", slog.String("error", err.Error()))
			if !p.sleep(ctx) {
				break
			}
			continue
		}
		if len(msgs) == 0 {
			// TODO: back off on sustained empty pulls once it is confirmed that
			// no consumer depends on the immediate re-pull.
			pollerCyclesTotal.WithLabelValues(string(config.KindMessage), "empty").Inc()
			continue
		}

		if !p.handOff(ctx, msgs) {
			break
		}
		p.ack(ctx, msgs)
		p.report(len(msgs))
	}

	p.log.Info("end of collecting messages")
	return nil
}

// handOff writes msgs to the sink, retrying until accepted. It returns false
// if the poller stopped first.
func (p *MessagePoller) handOff(ctx context.Context, msgs []gcp.ReceivedMessage) bool {
	payloads := make([]string, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m.Message)
		if err != nil {
			p.log.Error("failed to encode message", slog.String("messageId", m.Message.MessageID),
				slog.String("error", err.Error()))
			continue
		}
		payloads = append(payloads, string(b))
	}
	batch := sink.CreateEvents(sink.Meta{
		Index:      p.task.Index,
		Host:       p.task.Host,
		Source:     p.task.Source,
		Sourcetype: p.task.Sourcetype,
	}, payloads)

	for {
		err := p.writer.WriteEvents(ctx, batch, 1)
		if err == nil {
			pollerRecordsTotal.WithLabelValues(string(config.KindMessage), p.task.Name).Add(float64(batch.Len()))
			pollerCyclesTotal.WithLabelValues(string(config.KindMessage), "committed").Inc()
			return true
		}
		if p.stopped() || ctx.Err() != nil {
			return false
		}
		pollerSinkRetriesTotal.WithLabelValues(p.task.Name).Inc()
		p.log.Error("failed to index events", slog.String("error", err.Error()))
		if !p.sleep(ctx) {
			return false
		}
	}
}

// ack runs on a context detached from Stop so that messages already accepted
// by the sink are not redelivered because of a shutdown.
func (p *MessagePoller) ack(ctx context.Context, msgs []gcp.ReceivedMessage) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaults.HTTPClientTimeout)
	defer cancel()
	if err := p.source.Ack(actx, msgs); err != nil {
		pollerCyclesTotal.WithLabelValues(string(config.KindMessage), "failed").Inc()
		p.log.Error("failed to acknowledge messages", slog.Int("count", len(msgs)),
			slog.String("error", err.Error()))
		p.sleep(ctx)
	}
}

func (p *MessagePoller) report(n int) {
	p.count += n
	if p.count < p.threshold {
		return
	}
	now := p.clock.Now()
	p.log.Info("indexed messages",
		slog.Int("count", p.count),
		slog.Duration("elapsed", now.Sub(p.since)))
	p.count = 0
	p.since = now
}

// sleep waits for the retry pause. It returns false if the poller stopped.
func (p *MessagePoller) sleep(ctx context.Context) bool {
	if p.pause <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(p.pause):
		return true
	}
}
