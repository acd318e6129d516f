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
	"sync"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// Backend delivers one batch. Remote backends retry up to attempts times
// before returning the last error.
type Backend interface {
	Name() string
	Deliver(ctx context.Context, b Batch, attempts int) error
	Close() error
}

// ErrClosed is returned by WriteEvents after Close.
var ErrClosed = errors.New(errors.ErrCodeUnavailable, "event sink is closed")

type request struct {
	batch    Batch
	attempts int
	result   chan error
}

// Option configures a Sink.
type Option func(*Sink)

// WithCapacity sets the queue capacity in batches.
func WithCapacity(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger used by the drain loop.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDeliveryConfirmation makes WriteEvents wait for the backend result.
func WithDeliveryConfirmation(confirm bool) Option {
	return func(s *Sink) {
		s.confirm = confirm
	}
}

// Sink is a bounded queue in front of one Backend.
type Sink struct {
	backend  Backend
	capacity int
	confirm  bool
	log      *slog.Logger

	queue  chan *request
	stop   chan struct{} // closed first on Close, releases blocked producers
	finish chan struct{} // closed once no producer can enqueue anymore
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New returns a sink in front of backend. Call Start to begin draining.
func New(backend Backend, options ...Option) *Sink {
	s := &Sink{
		backend:  backend,
		capacity: defaults.SinkQueueCapacity,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		finish:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	s.queue = make(chan *request, s.capacity)
	s.log = s.log.With(slog.String("backend", backend.Name()))
	return s
}

// Backend returns the backend name.
func (s *Sink) Backend() string {
	return s.backend.Name()
}

// ConfirmsDelivery reports whether WriteEvents waits for the backend.
func (s *Sink) ConfirmsDelivery() bool {
	return s.confirm
}

// Start launches the drain loop. It is safe to call more than once.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		go s.drain()
		s.log.Info("event sink started", slog.Int("capacity", s.capacity))
	})
}

// WriteEvents queues b, blocking while the queue is full. With delivery
// confirmation it then waits for the drain loop and returns the backend
// error, if any. retry is the attempt budget handed to the backend.
func (s *Sink) WriteEvents(ctx context.Context, b Batch, retry int) error {
	if b.Len() == 0 {
		return nil
	}
	if retry <= 0 {
		retry = defaults.SinkDeliveryAttempts
	}

	req := &request{batch: b, attempts: retry}
	if s.confirm {
		req.result = make(chan error, 1)
	}

	if err := s.enqueue(ctx, req); err != nil {
		return err
	}
	if req.result == nil {
		return nil
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) enqueue(ctx context.Context, req *request) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- req:
		sinkQueueDepth.Set(float64(len(s.queue)))
		return nil
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) drain() {
	defer close(s.done)
	for {
		select {
		case req := <-s.queue:
			s.deliver(req)
		case <-s.finish:
			// Nothing can be enqueued anymore; flush what is left.
			for {
				select {
				case req := <-s.queue:
					s.deliver(req)
				default:
					s.log.Info("event sink drained")
					return
				}
			}
		}
	}
}

func (s *Sink) deliver(req *request) {
	sinkQueueDepth.Set(float64(len(s.queue)))
	name := s.backend.Name()

	start := time.Now()
	err := s.backend.Deliver(context.Background(), req.batch, req.attempts)
	sinkDeliveryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		sinkBatchesTotal.WithLabelValues(name, "failed").Inc()
		s.log.Error("failed to deliver batch",
			slog.String("source", req.batch.Meta.Source),
			slog.Int("events", req.batch.Len()),
			slog.String("error", err.Error()))
	} else {
		sinkBatchesTotal.WithLabelValues(name, "delivered").Inc()
		sinkEventsTotal.WithLabelValues(name).Add(float64(req.batch.Len()))
	}

	if req.result != nil {
		req.result <- err
	}
}

// Close stops accepting batches, delivers everything already queued, then
// closes the backend. Producers blocked on a full queue get ErrClosed.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.finish)
		s.Start()
		<-s.done

		s.closeErr = s.backend.Close()
		s.log.Info("event sink stopped")
	})
	return s.closeErr
}
