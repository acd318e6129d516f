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
	"log/slog"
	"sync"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/checkpoint"
	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
	"k8s.io/utils/clock"
)

// ErrBusy is returned by Collect while a previous invocation is running.
var ErrBusy = errors.New(errors.ErrCodeConflict, "previous collection not done")

// Option configures a poller.
type Option func(*options)

type options struct {
	clock clock.WithTicker
	log   *slog.Logger
	pause time.Duration
}

// WithClock injects the clock.
func WithClock(c clock.WithTicker) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRetryPause sets the pause after failed pulls and rejected hand-offs.
func WithRetryPause(d time.Duration) Option {
	return func(o *options) {
		o.pause = d
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock: clock.RealClock{},
		log:   slog.Default(),
		pause: defaults.RetryPause,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MetricPoller collects one metric type of one project in windows.
type MetricPoller struct {
	task   config.Task
	source MetricSource
	writer EventWriter
	ckpt   *checkpoint.Checkpointer
	options
	stopper

	running sync.Mutex
}

// NewMetricPoller returns a poller for a metric task. ckpt holds the task's
// checkpoint.
func NewMetricPoller(task config.Task, source MetricSource, writer EventWriter, ckpt *checkpoint.Checkpointer, opts ...Option) *MetricPoller {
	o := buildOptions(opts)
	o.log = o.log.With(
		slog.String("task", task.Name),
		slog.String("project", task.Project),
		slog.String("metric", task.Metric))
	return &MetricPoller{
		task:    task,
		source:  source,
		writer:  writer,
		ckpt:    ckpt,
		options: o,
		stopper: stopper{ch: make(chan struct{})},
	}
}

// Run collects immediately, then once per polling interval, until ctx is
// done or Stop is called. Collection errors are logged; the next invocation
// resumes from the last commit.
func (p *MetricPoller) Run(ctx context.Context) error {
	ctx, cancel := p.bind(ctx)
	defer cancel()

	interval := p.task.PollInterval()
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("metric poller started", slog.Duration("interval", interval),
		slog.Duration("window", p.task.WindowWidth()))
	for {
		_ = p.Collect(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("metric poller stopped", slog.String("oldest", p.ckpt.Oldest()))
			return nil
		case <-ticker.C():
		}
	}
}

// Collect runs one invocation: it walks windows from the checkpoint up to now,
// committing after each. It returns ErrBusy if an invocation is in progress.
func (p *MetricPoller) Collect(ctx context.Context) error {
	if !p.running.TryLock() {
		pollerCyclesTotal.WithLabelValues(string(config.KindMetric), "busy").Inc()
		p.log.Info("previous collection not done")
		return ErrBusy
	}
	defer p.running.Unlock()

	p.log.Debug("start collecting")
	for !p.stopped() && ctx.Err() == nil {
		done, err := p.cycle(ctx)
		if err != nil {
			pollerCyclesTotal.WithLabelValues(string(config.KindMetric), "failed").Inc()
			p.log.Error("failed to collect metrics", slog.String("error", err.Error()))
			return err
		}
		if done {
			break
		}
	}
	p.log.Debug("end of collecting", slog.String("oldest", p.ckpt.Oldest()))
	return nil
}

// cycle fetches, emits and commits one window.
func (p *MetricPoller) cycle(ctx context.Context) (bool, error) {
	oldest, err := checkpoint.Parse(p.ckpt.Oldest())
	if err != nil {
		return false, err
	}
	youngest, done := checkpoint.Window(oldest, p.task.WindowWidth(), p.clock.Now().UTC())
	if !youngest.After(oldest) {
		return true, nil
	}

	series, err := p.source.ListMetrics(ctx, p.task.Project, p.task.Metric,
		checkpoint.Wire(oldest), checkpoint.Wire(youngest))
	if err != nil {
		return false, err
	}

	if len(series) > 0 {
		payloads := make([]string, 0, len(series))
		for _, s := range series {
			payloads = append(payloads, string(s))
		}
		batch := sink.CreateEvents(sink.Meta{
			Index:      p.task.Index,
			Host:       p.task.Host,
			Source:     p.task.Source,
			Sourcetype: p.task.Sourcetype,
		}, payloads)
		if err := p.writer.WriteEvents(ctx, batch, defaults.SinkDeliveryAttempts); err != nil {
			return false, err
		}
		pollerRecordsTotal.WithLabelValues(string(config.KindMetric), p.task.Name).Add(float64(len(series)))
	}

	if err := p.ckpt.SetOldest(ctx, checkpoint.Format(youngest), true); err != nil {
		return false, err
	}
	pollerCheckpoint.WithLabelValues(p.task.Name).Set(float64(youngest.Unix()))
	result := "committed"
	if len(series) == 0 {
		result = "empty"
	}
	pollerCyclesTotal.WithLabelValues(string(config.KindMetric), result).Inc()
	p.log.Debug("window committed",
		slog.String("oldest", checkpoint.Format(oldest)),
		slog.String("youngest", checkpoint.Format(youngest)),
		slog.Int("records", len(series)))
	return done, nil
}
