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
	"log/slog"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
)

// GoroutineSpawner runs tasks inside the current process.
type GoroutineSpawner struct {
	factory  Factory
	writer   poller.EventWriter
	teardown <-chan struct{}
	opts     []Option
	log      *slog.Logger
}

// NewGoroutineSpawner returns a spawner whose tasks write to w and stop when
// teardown is closed.
func NewGoroutineSpawner(f Factory, w poller.EventWriter, teardown <-chan struct{}, opts ...Option) *GoroutineSpawner {
	return &GoroutineSpawner{
		factory:  f,
		writer:   w,
		teardown: teardown,
		opts:     opts,
		log:      buildOptions(opts).log,
	}
}

// Spawn builds the task and starts it in a new goroutine.
func (s *GoroutineSpawner) Spawn(ctx context.Context, task config.Task) (Handle, error) {
	r, err := s.factory(ctx, task, s.writer)
	if err != nil {
		return nil, err
	}

	h := newHandle(task.Name, r.Stop)
	workerRunning.WithLabelValues(modeGoroutine).Inc()
	s.log.Info("task started", slog.String("task", task.Name), slog.String("mode", modeGoroutine))
	go func() {
		h.finish(modeGoroutine, Supervise(ctx, r, s.teardown, s.opts...), s.log)
	}()
	return h, nil
}
