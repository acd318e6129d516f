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
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
)

// EventWriter accepts batches for delivery.
type EventWriter interface {
	WriteEvents(ctx context.Context, b sink.Batch, retry int) error
}

// MetricSource lists time series in a window.
type MetricSource interface {
	ListMetrics(ctx context.Context, project, metric, oldest, youngest string) ([]json.RawMessage, error)
}

// MessageSource pulls and acknowledges subscription messages.
type MessageSource interface {
	Pull(ctx context.Context) ([]gcp.ReceivedMessage, error)
	Ack(ctx context.Context, msgs []gcp.ReceivedMessage) error
}

// Poller is a running task.
type Poller interface {
	// Run blocks until ctx is done or Stop is called.
	Run(ctx context.Context) error
	// Stop asks Run to return. It is idempotent and safe from any goroutine.
	Stop()
}

// stopper turns Stop into context cancellation.
type stopper struct {
	once sync.Once
	ch   chan struct{}
}

func (s *stopper) Stop() {
	s.once.Do(func() {
		close(s.ch)
	})
}

func (s *stopper) stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// bind returns a context cancelled when ctx is done or Stop is called.
func (s *stopper) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
