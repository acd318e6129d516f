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

package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
	"github.com/NVIDIA/cloud-collector/pkg/timer"
	"github.com/NVIDIA/cloud-collector/pkg/worker"
	"k8s.io/utils/clock"
)

// EventSink is the shared sink every task writes to.
type EventSink interface {
	poller.EventWriter
	Start()
	Close() error
}

// SinkFactory creates the shared sink. It is called once per Start.
type SinkFactory func() (EventSink, error)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTaskFactory sets the factory used by in-process units.
func WithTaskFactory(f worker.Factory) Option {
	return func(s *Supervisor) {
		s.factory = f
	}
}

// WithCommand sets the child command used by process units.
func WithCommand(c worker.CommandFunc) Option {
	return func(s *Supervisor) {
		s.command = c
	}
}

// WithSinkFactory sets the shared sink factory.
func WithSinkFactory(f SinkFactory) Option {
	return func(s *Supervisor) {
		s.sinks = f
	}
}

// WithConfigCheck stops the supervisor once changed reports true. It is
// polled every ConfigCheckInterval.
func WithConfigCheck(changed func() bool) Option {
	return func(s *Supervisor) {
		s.changed = changed
	}
}

// WithOrphanCheck stops the supervisor once orphaned reports true. It is
// polled every OrphanCheckInterval.
func WithOrphanCheck(orphaned func() bool) Option {
	return func(s *Supervisor) {
		s.orphaned = orphaned
	}
}

// WithClock sets the clock of the timer scheduler and the units.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// Supervisor starts, watches and stops the execution units of a task set.
type Supervisor struct {
	factory  worker.Factory
	command  worker.CommandFunc
	sinks    SinkFactory
	changed  func() bool
	orphaned func() bool
	clock    clock.Clock
	log      *slog.Logger
	timers   *timer.Scheduler

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	reason  string
	handles []worker.Handle
}

// New returns a supervisor. A sink factory and, depending on the isolation
// mode of the tasks, a task factory or a child command are required.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		clock:  clock.RealClock{},
		log:    slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timers = timer.New(timer.WithClock(s.clock), timer.WithLogger(s.log))
	return s
}

// Start runs tasks until Stop is called or ctx is done. Calls after the
// first return nil immediately.
func (s *Supervisor) Start(ctx context.Context, tasks []config.Task) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	return s.run(ctx, tasks)
}

// Stop asks Start to return. It only posts the signal.
func (s *Supervisor) Stop() {
	s.stop("requested")
}

func (s *Supervisor) stop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// AddTimer schedules callback at when, repeating every interval if it is
// positive.
func (s *Supervisor) AddTimer(callback func(), when time.Time, interval time.Duration) *timer.Timer {
	return s.timers.Add(callback, when, interval)
}

// RemoveTimer cancels t.
func (s *Supervisor) RemoveTimer(t *timer.Timer) {
	s.timers.Remove(t)
}

// Handles returns the units started so far.
func (s *Supervisor) Handles() []worker.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]worker.Handle(nil), s.handles...)
}

func (s *Supervisor) run(ctx context.Context, tasks []config.Task) error {
	mode := config.IsolationGoroutine
	if len(tasks) > 0 && tasks[0].Isolation != "" {
		mode = tasks[0].Isolation
	}

	if s.sinks == nil {
		return errors.New(errors.ErrCodeInvalidConfig, "sink factory is required")
	}
	out, err := s.sinks()
	if err != nil {
		return err
	}
	teardown := make(chan struct{})
	spawner, err := s.spawner(mode, out, teardown)
	if err != nil {
		_ = out.Close()
		return err
	}
	out.Start()

	s.startTimers()

	s.log.Info("supervisor started", slog.Int("tasks", len(tasks)), slog.String("isolation", string(mode)))
	var wg sync.WaitGroup
	for _, task := range tasks {
		h, err := spawner.Spawn(ctx, task)
		if err != nil {
			supervisorTaskFailuresTotal.WithLabelValues("spawn").Inc()
			s.log.Error("failed to start task",
				slog.String("task", task.Name),
				slog.String("project", task.Project),
				slog.String("resource", task.Resource()),
				slog.String("error", err.Error()))
			continue
		}
		s.mu.Lock()
		s.handles = append(s.handles, h)
		s.mu.Unlock()
		supervisorTasksRunning.Inc()

		wg.Add(1)
		go func(task config.Task) {
			defer wg.Done()
			defer supervisorTasksRunning.Dec()
			if err := h.Wait(); err != nil {
				supervisorTaskFailuresTotal.WithLabelValues("run").Inc()
				s.log.Error("task failed and will not be restarted",
					slog.String("task", task.Name),
					slog.String("project", task.Project),
					slog.String("resource", task.Resource()),
					slog.String("error", err.Error()))
			}
		}(task)
	}

	select {
	case <-s.stopCh:
	case <-ctx.Done():
		s.stop("context")
	}
	s.mu.Lock()
	reason := s.reason
	s.mu.Unlock()
	supervisorStopsTotal.WithLabelValues(reason).Inc()
	s.log.Info("supervisor stopping", slog.String("reason", reason))

	close(teardown)
	wg.Wait()

	if err := out.Close(); err != nil {
		s.log.Error("failed to close event sink", slog.String("error", err.Error()))
	}
	s.timers.TearDown()
	s.log.Info("supervisor stopped")
	return nil
}

func (s *Supervisor) spawner(mode config.Isolation, out EventSink, teardown <-chan struct{}) (worker.Spawner, error) {
	opts := []worker.Option{worker.WithClock(s.clock), worker.WithLogger(s.log)}
	switch mode {
	case config.IsolationGoroutine:
		if s.factory == nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "task factory is required for goroutine isolation")
		}
		return worker.NewGoroutineSpawner(s.factory, out, teardown, opts...), nil
	case config.IsolationProcess:
		if s.command == nil {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "worker command is required for process isolation")
		}
		return worker.NewProcessSpawner(s.command, out, teardown, opts...), nil
	default:
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown isolation mode",
			map[string]any{"isolation": mode})
	}
}

func (s *Supervisor) startTimers() {
	now := s.clock.Now()
	if s.changed != nil {
		s.AddTimer(func() {
			if s.changed() {
				s.log.Info("configuration changed, stopping")
				s.stop("config_changed")
			}
		}, now.Add(defaults.ConfigCheckInterval), defaults.ConfigCheckInterval)
	}
	if s.orphaned != nil {
		s.AddTimer(func() {
			if s.orphaned() {
				s.log.Warn("parent process is gone, stopping")
				s.stop("orphaned")
			}
		}, now.Add(defaults.OrphanCheckInterval), defaults.OrphanCheckInterval)
	}
	s.timers.Start()
}
