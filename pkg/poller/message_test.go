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
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type pullResult struct {
	msgs []gcp.ReceivedMessage
	err  error
}

// fakeMessageSource serves queued pull results and then blocks like a long
// poll until ctx is done.
type fakeMessageSource struct {
	mu     sync.Mutex
	queue  []pullResult
	pulls  int
	acked  []string
	ackErr error
}

func (f *fakeMessageSource) Pull(ctx context.Context) ([]gcp.ReceivedMessage, error) {
	f.mu.Lock()
	f.pulls++
	if len(f.queue) > 0 {
		r := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return r.msgs, r.err
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeMessageSource) Ack(_ context.Context, msgs []gcp.ReceivedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	for _, m := range msgs {
		f.acked = append(f.acked, m.AckID)
	}
	return nil
}

func (f *fakeMessageSource) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func (f *fakeMessageSource) drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) == 0
}

var messageTask = config.Task{
	Name:         "events:audit",
	Kind:         config.KindMessage,
	Project:      "proj",
	Subscription: "audit",
	Index:        "main",
	Source:       "proj:audit",
	Sourcetype:   "google:pubsub",
	Isolation:    config.IsolationGoroutine,
	BatchSize:    100,
}

func received(ids ...string) []gcp.ReceivedMessage {
	out := make([]gcp.ReceivedMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, gcp.ReceivedMessage{
			AckID: "ack-" + id,
			Message: gcp.Message{
				Data:       "payload " + id,
				Attributes: map[string]string{"id": id},
				MessageID:  id,
			},
		})
	}
	return out
}

func runMessagePoller(t *testing.T, p *MessagePoller) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background())
	}()
	return done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestMessageAckAfterWrite(t *testing.T) {
	src := &fakeMessageSource{queue: []pullResult{
		{msgs: received("1", "2")},
		{msgs: nil},
		{msgs: received("3")},
	}}
	w := &recordingWriter{}
	p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()), WithRetryPause(0))

	done := runMessagePoller(t, p)
	require.Eventually(t, func() bool { return len(src.ackedIDs()) == 3 }, time.Second, time.Millisecond)
	p.Stop()
	waitStopped(t, done)

	assert.Equal(t, []string{"ack-1", "ack-2", "ack-3"}, src.ackedIDs())
	batches := w.accepted()
	require.Len(t, batches, 2)
	assert.Equal(t, "proj:audit", batches[0].Meta.Source)
	assert.Equal(t, "google:pubsub", batches[0].Meta.Sourcetype)
	assert.Equal(t, []int{1, 1}, w.retries)

	var msg gcp.Message
	require.NoError(t, json.Unmarshal([]byte(batches[0].Payloads[0]), &msg))
	assert.Equal(t, "payload 1", msg.Data)
	assert.Equal(t, "1", msg.Attributes["id"])
}

func TestMessageWriteRetriedUntilAccepted(t *testing.T) {
	src := &fakeMessageSource{queue: []pullResult{{msgs: received("1")}}}
	w := &recordingWriter{fail: 3}
	p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()), WithRetryPause(time.Millisecond))

	done := runMessagePoller(t, p)
	require.Eventually(t, func() bool { return len(src.ackedIDs()) == 1 }, time.Second, time.Millisecond)
	p.Stop()
	waitStopped(t, done)

	assert.Equal(t, 4, w.calls)
	assert.Len(t, w.accepted(), 1)
}

func TestMessageStopDuringFailingWriteSkipsAck(t *testing.T) {
	src := &fakeMessageSource{queue: []pullResult{{msgs: received("1", "2")}}}
	w := &recordingWriter{fail: -1}
	p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()), WithRetryPause(time.Millisecond))

	done := runMessagePoller(t, p)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.calls >= 2
	}, time.Second, time.Millisecond)
	p.Stop()
	waitStopped(t, done)

	assert.Empty(t, src.ackedIDs(), "unaccepted messages are left for redelivery")
}

func TestMessagePullErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "transient", err: errors.New(errors.ErrCodeTransient, "connection reset")},
		{name: "timeout", err: errors.New(errors.ErrCodeTimeout, "long poll expired")},
		{name: "other", err: errors.New(errors.ErrCodeUnavailable, "pubsub returned 503")},
		{name: "plain", err: stderrors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeMessageSource{queue: []pullResult{
				{err: tt.err},
				{err: tt.err},
				{msgs: received("1")},
			}}
			w := &recordingWriter{}
			p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()), WithRetryPause(time.Millisecond))

			done := runMessagePoller(t, p)
			require.Eventually(t, func() bool { return len(src.ackedIDs()) == 1 }, time.Second, time.Millisecond)
			p.Stop()
			waitStopped(t, done)
			assert.True(t, src.drained())
		})
	}
}

func TestMessagePullPauseOnlyForNonTimeouts(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		pauses bool
	}{
		{name: "timeout re-pulls at once", err: errors.New(errors.ErrCodeTimeout, "long poll expired")},
		{name: "connection refused pauses", err: errors.New(errors.ErrCodeTransient, "connection refused"), pauses: true},
		{name: "unavailable pauses", err: errors.New(errors.ErrCodeUnavailable, "pubsub returned 503"), pauses: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := testingclock.NewFakeClock(time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))
			src := &fakeMessageSource{queue: []pullResult{
				{err: tt.err},
				{msgs: received("1")},
			}}
			w := &recordingWriter{}
			p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()),
				WithClock(clk), WithRetryPause(time.Hour))

			done := runMessagePoller(t, p)
			if tt.pauses {
				require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
				assert.Empty(t, src.ackedIDs())
				clk.Step(time.Hour)
			}
			require.Eventually(t, func() bool { return len(src.ackedIDs()) == 1 }, time.Second, time.Millisecond)
			p.Stop()
			waitStopped(t, done)
		})
	}
}

func TestMessageAckFailureKeepsPolling(t *testing.T) {
	src := &fakeMessageSource{
		queue:  []pullResult{{msgs: received("1")}, {msgs: received("2")}},
		ackErr: stderrors.New("ack rejected"),
	}
	w := &recordingWriter{}
	p := NewMessagePoller(messageTask, src, w, WithLogger(logging.Discard()), WithRetryPause(time.Millisecond))

	done := runMessagePoller(t, p)
	require.Eventually(t, func() bool { return len(w.accepted()) == 2 }, time.Second, time.Millisecond)
	p.Stop()
	waitStopped(t, done)
}

func TestMessageReportResetsCounter(t *testing.T) {
	p := NewMessagePoller(messageTask, &fakeMessageSource{}, &recordingWriter{}, WithLogger(logging.Discard()))
	p.threshold = 5

	p.report(3)
	assert.Equal(t, 3, p.count)
	p.report(3)
	assert.Equal(t, 0, p.count)
	p.report(4)
	assert.Equal(t, 4, p.count)
}

func TestMessageRunReturnsOnContextCancel(t *testing.T) {
	src := &fakeMessageSource{}
	p, err := New(context.Background(), messageTask, Deps{Messages: src, Writer: &recordingWriter{}},
		WithLogger(logging.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()
	cancel()
	waitStopped(t, done)
}
