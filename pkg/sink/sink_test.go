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
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	mu      sync.Mutex
	batches []Batch
	err     error
	gate    chan struct{}
}

func (r *recordingBackend) Name() string { return "recording" }

func (r *recordingBackend) Deliver(_ context.Context, b Batch, _ int) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return r.err
}

func (r *recordingBackend) Close() error { return nil }

func (r *recordingBackend) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func batchOf(payloads ...string) Batch {
	return CreateEvents(Meta{Index: "main", Source: "proj:sub", Sourcetype: "google:pubsub"}, payloads)
}

func TestCreateEvents(t *testing.T) {
	payloads := []string{"a", "b"}
	b := CreateEvents(Meta{Done: true}, payloads)
	payloads[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, b.Payloads)
	assert.True(t, b.Meta.Unbroken, "done implies unbroken")
	assert.Equal(t, 2, b.Len())
}

func TestWriteEventsBackpressure(t *testing.T) {
	backend := &recordingBackend{}
	s := New(backend, WithLogger(logging.Discard()))
	ctx := context.Background()

	// Drain loop not started yet: the queue fills up to capacity.
	for i := 0; i < 1000; i++ {
		require.NoError(t, s.WriteEvents(ctx, batchOf("x"), 1))
	}

	returned := make(chan error, 1)
	go func() {
		returned <- s.WriteEvents(ctx, batchOf("overflow"), 1)
	}()

	select {
	case <-returned:
		t.Fatal("1001st write should block while the queue is full")
	case <-time.After(200 * time.Millisecond):
	}

	s.Start()

	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("write did not unblock after the drain loop started")
	}

	require.NoError(t, s.Close())
	assert.Equal(t, 1001, backend.count())
}

func TestWriteEventsConfirmed(t *testing.T) {
	boom := stderrors.New("collector down")
	backend := &recordingBackend{err: boom}
	s := New(backend, WithDeliveryConfirmation(true), WithLogger(logging.Discard()))
	s.Start()
	defer s.Close()

	err := s.WriteEvents(context.Background(), batchOf("x"), 3)
	assert.ErrorIs(t, err, boom)
	assert.True(t, s.ConfirmsDelivery())
}

func TestWriteEventsEmptyBatch(t *testing.T) {
	backend := &recordingBackend{}
	s := New(backend, WithLogger(logging.Discard()))
	s.Start()

	assert.NoError(t, s.WriteEvents(context.Background(), batchOf(), 1))
	require.NoError(t, s.Close())
	assert.Equal(t, 0, backend.count())
}

func TestCloseDrainsQueue(t *testing.T) {
	backend := &recordingBackend{}
	s := New(backend, WithCapacity(10), WithLogger(logging.Discard()))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.WriteEvents(context.Background(), batchOf("x"), 1))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 5, backend.count())

	err := s.WriteEvents(context.Background(), batchOf("late"), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close(), "close is idempotent")
}

func TestCloseReleasesBlockedProducer(t *testing.T) {
	backend := &recordingBackend{gate: make(chan struct{})}
	s := New(backend, WithCapacity(1), WithLogger(logging.Discard()))
	s.Start()
	ctx := context.Background()

	// one in the backend, one in the queue
	require.NoError(t, s.WriteEvents(ctx, batchOf("1"), 1))
	require.Eventually(t, func() bool { return len(s.queue) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.WriteEvents(ctx, batchOf("2"), 1))

	var blocked atomic.Bool
	blocked.Store(true)
	errc := make(chan error, 1)
	go func() {
		errc <- s.WriteEvents(ctx, batchOf("3"), 1)
		blocked.Store(false)
	}()
	time.Sleep(50 * time.Millisecond)
	assert.True(t, blocked.Load())

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()

	err := <-errc
	assert.ErrorIs(t, err, ErrClosed)

	close(backend.gate)
	<-closed
	assert.Equal(t, 2, backend.count())
}

func TestWriteEventsContextCancelled(t *testing.T) {
	backend := &recordingBackend{}
	s := New(backend, WithCapacity(1), WithLogger(logging.Discard()))
	require.NoError(t, s.WriteEvents(context.Background(), batchOf("x"), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.WriteEvents(ctx, batchOf("y"), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, s.Close())
}

func TestStreamSinkEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	s, err := Open(Config{Kind: BackendStream}, &buf, logging.Discard())
	require.NoError(t, err)
	assert.False(t, s.ConfirmsDelivery())
	s.Start()

	require.NoError(t, s.WriteEvents(context.Background(), batchOf(`{"id":1}`), 1))
	require.NoError(t, s.Close())

	assert.Contains(t, buf.String(), `<data><![CDATA[{"id":1}]]></data>`)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default stream", cfg: Config{}},
		{name: "hec", cfg: Config{Kind: BackendHEC, HEC: HECConfig{ServerURI: "https://hec:8088", Token: "t"}}},
		{name: "hec missing token", cfg: Config{Kind: BackendHEC, HEC: HECConfig{ServerURI: "https://hec:8088"}}, wantErr: true},
		{name: "kafka missing topic", cfg: Config{Kind: BackendKafka, Kafka: KafkaConfig{Brokers: []string{"k:9092"}}}, wantErr: true},
		{name: "unknown", cfg: Config{Kind: "s3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOpenHECRaw(t *testing.T) {
	s, err := Open(Config{Kind: BackendHECRaw, HEC: HECConfig{ServerURI: "https://hec:8088/", Token: "t"}}, nil, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, BackendHECRaw, s.Backend())
	assert.True(t, s.ConfirmsDelivery())
	require.NoError(t, s.Close())
}
