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

// Package collector builds polling tasks from expanded task descriptors.
//
// # Overview
//
// The supervisor and the hidden worker command both need to turn a
// config.Task into something they can run. The Factory interface abstracts
// that step so either side can be tested with fakes:
//
//	type Factory interface {
//	    Create(ctx context.Context, task config.Task, w poller.EventWriter) (worker.Runnable, error)
//	}
//
// DefaultFactory wires production dependencies: one Google API client per
// credentials name, shared by every task that names it, and the state store
// that holds metric checkpoints.
//
// # Usage Example
//
//	factory := collector.NewDefaultFactory(cfg, store,
//	    collector.WithLogger(logger),
//	)
//	spawner := worker.NewGoroutineSpawner(factory.Create, sink, teardown)
//
// Metric tasks get a windowed poller reading Cloud Monitoring. Message tasks
// get a streaming poller bound to their Pub/Sub subscription.
package collector
