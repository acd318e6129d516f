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

	"github.com/NVIDIA/cloud-collector/pkg/checkpoint"
	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/state"
)

// Deps are the collaborators a poller is built from.
type Deps struct {
	// Metrics serves metric tasks.
	Metrics MetricSource
	// Messages serves message tasks.
	Messages MessageSource
	Writer   EventWriter
	// Store holds metric checkpoints.
	Store state.Store
}

// New builds the poller for task. Metric tasks open their checkpoint here.
func New(ctx context.Context, task config.Task, deps Deps, opts ...Option) (Poller, error) {
	if deps.Writer == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "event writer is required")
	}
	switch task.Kind {
	case config.KindMetric:
		if deps.Metrics == nil || deps.Store == nil {
			return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest,
				"metric source and state store are required", map[string]any{"task": task.Name})
		}
		ckpt, err := checkpoint.Open(ctx, deps.Store, task.Name, task.Oldest)
		if err != nil {
			return nil, err
		}
		return NewMetricPoller(task, deps.Metrics, deps.Writer, ckpt, opts...), nil
	case config.KindMessage:
		if deps.Messages == nil {
			return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest,
				"message source is required", map[string]any{"task": task.Name})
		}
		return NewMessagePoller(task, deps.Messages, deps.Writer, opts...), nil
	default:
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown task kind",
			map[string]any{"task": task.Name, "kind": task.Kind})
	}
}
