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
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkPair wires a child Link to a fake parent driven by the test.
type linkPair struct {
	link      *Link
	toChild   *io.PipeWriter
	fromChild *json.Decoder
	parentOut *json.Encoder
}

func newLinkPair(t *testing.T) *linkPair {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})
	l := NewLink(inR, outW, logging.Discard())
	go l.Serve()
	return &linkPair{
		link:      l,
		toChild:   inW,
		fromChild: json.NewDecoder(outR),
		parentOut: json.NewEncoder(inW),
	}
}

func (p *linkPair) writeAsync(b sink.Batch) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- p.link.WriteEvents(context.Background(), b, 3)
	}()
	return ch
}

func TestLinkWriteEventsAcked(t *testing.T) {
	tests := []struct {
		name     string
		ack      func(id uint64) Frame
		wantCode errors.ErrorCode
	}{
		{
			name: "delivered",
			ack:  func(id uint64) Frame { return ackFrame(id, nil) },
		},
		{
			name: "delivery failed",
			ack: func(id uint64) Frame {
				return ackFrame(id, errors.New(errors.ErrCodeDeliveryFailed, "hec returned 500"))
			},
			wantCode: errors.ErrCodeDeliveryFailed,
		},
		{
			name:     "plain error",
			ack:      func(id uint64) Frame { return Frame{Type: FrameAck, ID: id, Error: "queue closed"} },
			wantCode: errors.ErrCodeDeliveryFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newLinkPair(t)
			batch := sink.CreateEvents(sink.Meta{Source: "proj:sub"}, []string{"a", "b"})
			res := p.writeAsync(batch)

			var f Frame
			require.NoError(t, p.fromChild.Decode(&f))
			assert.Equal(t, FrameBatch, f.Type)
			assert.Equal(t, 3, f.Retry)
			require.NotNil(t, f.Batch)
			assert.Equal(t, batch, *f.Batch)

			require.NoError(t, p.parentOut.Encode(tt.ack(f.ID)))
			err := waitErr(t, res)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestLinkStopFrame(t *testing.T) {
	p := newLinkPair(t)
	require.NoError(t, p.parentOut.Encode(Frame{Type: FrameStop}))
	select {
	case <-p.link.Teardown():
	case <-time.After(time.Second):
		t.Fatal("stop frame did not signal teardown")
	}
}

func TestLinkEOFReleasesWriters(t *testing.T) {
	p := newLinkPair(t)
	res := p.writeAsync(sink.CreateEvents(sink.Meta{}, []string{"a"}))

	var f Frame
	require.NoError(t, p.fromChild.Decode(&f))
	require.NoError(t, p.toChild.Close())

	assert.ErrorIs(t, waitErr(t, res), ErrLinkClosed)
	select {
	case <-p.link.Teardown():
	case <-time.After(time.Second):
		t.Fatal("EOF did not signal teardown")
	}
}

const helperEnv = "COLLECTOR_WORKER_HELPER"

// TestHelperProcess is the child side of TestProcessSpawner.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}
	factory := func(_ context.Context, task config.Task, w poller.EventWriter) (Runnable, error) {
		return newBlockingTask(w, sink.CreateEvents(sink.Meta{Source: task.Name}, []string{"hello"})), nil
	}
	err := RunChild(context.Background(), config.Task{Name: os.Getenv(helperEnv + "_TASK")}, factory,
		os.Stdin, os.Stdout, WithLogger(logging.Discard()), WithOrphanCheck(func() bool { return false }))
	if err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func helperCommand(task config.Task) *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"=1", helperEnv+"_TASK="+task.Name)
	return cmd
}

func TestProcessSpawner(t *testing.T) {
	w := &recordingWriter{}
	teardown := make(chan struct{})
	s := NewProcessSpawner(helperCommand, w, teardown, WithLogger(logging.Discard()))

	h, err := s.Spawn(context.Background(), config.Task{Name: "events:audit"})
	require.NoError(t, err)
	assert.Equal(t, "events:audit", h.Name())

	require.Eventually(t, func() bool { return w.count() == 1 }, 10*time.Second, 10*time.Millisecond)
	w.mu.Lock()
	assert.Equal(t, "events:audit", w.batches[0].Meta.Source)
	assert.Equal(t, []string{"hello"}, w.batches[0].Payloads)
	w.mu.Unlock()

	close(teardown)
	done := make(chan error, 1)
	go func() {
		done <- h.Wait()
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker process did not exit after teardown")
	}
}

func TestProcessSpawnerStopHandle(t *testing.T) {
	s := NewProcessSpawner(helperCommand, &recordingWriter{}, make(chan struct{}), WithLogger(logging.Discard()))

	h, err := s.Spawn(context.Background(), config.Task{Name: "cpu:utilization"})
	require.NoError(t, err)
	h.Stop()
	h.Stop()

	done := make(chan error, 1)
	go func() {
		done <- h.Wait()
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("worker process did not exit after Stop")
	}
}

func TestProcessSpawnerStartFailure(t *testing.T) {
	cmd := func(config.Task) *exec.Cmd {
		return exec.Command("/nonexistent/collectord")
	}
	s := NewProcessSpawner(cmd, &recordingWriter{}, make(chan struct{}), WithLogger(logging.Discard()))
	_, err := s.Spawn(context.Background(), config.Task{Name: "a"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}
