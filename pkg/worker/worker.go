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

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
	"k8s.io/utils/clock"
)

const (
	modeGoroutine = "goroutine"
	modeProcess   = "process"
)

// Runnable is the part of a polling task the wrapper drives.
type Runnable interface {
	Run(ctx context.Context) error
	Stop()
}

// Factory builds the task for one descriptor. Batches go to w.
type Factory func(ctx context.Context, task config.Task, w poller.EventWriter) (Runnable, error)

// Spawner starts execution units.
type Spawner interface {
	Spawn(ctx context.Context, task config.Task) (Handle, error)
}

// Handle controls one running execution unit.
type Handle interface {
	// Name is the task name.
	Name() string
	// Stop asks the unit to exit. It does not wait.
	Stop()
	// Wait blocks until the unit exited and returns its error.
	Wait() error
}

// Option configures spawners and RunChild.
type Option func(*options)

type options struct {
	clock    clock.Clock
	log      *slog.Logger
	orphaned func() bool
}

// WithClock sets the clock used for the teardown poll.
func WithClock(c clock.Clock) Option {
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

// WithOrphanCheck sets the check run between teardown polls. A true result
// stops the task.
func WithOrphanCheck(fn func() bool) Option {
	return func(o *options) {
		o.orphaned = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock: clock.RealClock{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Supervise runs r until it returns. The teardown channel is polled every
// TeardownPollInterval with the orphan check in between; either stops r.
// Supervise always waits for r.Run to return.
func Supervise(ctx context.Context, r Runnable, teardown <-chan struct{}, opts ...Option) error {
	o := buildOptions(opts)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- errors.New(errors.ErrCodeInternal, fmt.Sprintf("task panicked: %v", rec))
			}
		}()
		done <- r.Run(ctx)
	}()

	for {
		select {
		case err := <-done:
			return err
		case <-teardown:
			o.log.Debug("teardown requested")
			r.Stop()
			return <-done
		case <-o.clock.After(defaults.TeardownPollInterval):
			if o.orphaned != nil && o.orphaned() {
				o.log.Warn("parent process is gone, stopping task")
				r.Stop()
				return <-done
			}
		}
	}
}

// handle is the Handle shared by both spawners.
type handle struct {
	name string
	stop func()
	once sync.Once
	done chan struct{}
	err  error
}

func newHandle(name string, stop func()) *handle {
	return &handle{name: name, stop: stop, done: make(chan struct{})}
}

func (h *handle) Name() string {
	return h.name
}

func (h *handle) Stop() {
	h.once.Do(h.stop)
}

func (h *handle) Wait() error {
	<-h.done
	return h.err
}

func (h *handle) finish(mode string, err error, log *slog.Logger) {
	h.err = err
	result := "clean"
	if err != nil {
		result = "failed"
		log.Error("task exited with error", slog.String("task", h.name), slog.String("error", err.Error()))
	} else {
		log.Info("task exited", slog.String("task", h.name))
	}
	workerExitsTotal.WithLabelValues(mode, result).Inc()
	workerRunning.WithLabelValues(mode).Dec()
	close(h.done)
}
