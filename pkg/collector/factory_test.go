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

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
	"github.com/NVIDIA/cloud-collector/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const factoryConfig = `
credentials:
  prod:
    monitoring_endpoint: %[1]s
    pubsub_endpoint: %[1]s
inputs:
  - name: cpu
    kind: metric
    project: proj
    credentials: prod
    metrics: "compute.googleapis.com/instance/cpu/utilization, compute.googleapis.com/instance/uptime"
    oldest: "2016-01-01T00:00:00"
  - name: audit
    kind: message
    project: proj
    credentials: prod
    subscriptions: audit-sub
    base64_encoded: true
`

type fakeGoogle struct {
	*httptest.Server
	pulls atomic.Int32
	mu    sync.Mutex
	acked []string
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":pull"):
			if g.pulls.Add(1) > 1 {
				// Drain the body so the server watches for the client
				// disconnect and cancels r.Context().
				_, _ = io.Copy(io.Discard, r.Body)
				<-r.Context().Done()
				return
			}
			fmt.Fprint(w, `{"receivedMessages":[{"ackId":"a1","message":{"data":"aGVsbG8=","messageId":"1"}}]}`)
		case strings.HasSuffix(r.URL.Path, ":acknowledge"):
			var req struct {
				AckIDs []string `json:"ackIds"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			g.mu.Lock()
			g.acked = append(g.acked, req.AckIDs...)
			g.mu.Unlock()
			fmt.Fprint(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *fakeGoogle) ackedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.acked...)
}

type recordingWriter struct {
	mu      sync.Mutex
	batches []sink.Batch
}

func (w *recordingWriter) WriteEvents(_ context.Context, b sink.Batch, _ int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, b)
	return nil
}

func newFactory(t *testing.T, g *fakeGoogle) (*DefaultFactory, *config.Config) {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(factoryConfig, g.URL)))
	require.NoError(t, err)
	require.NoError(t, cfg.Finish())

	f := NewDefaultFactory(cfg, state.NewMemoryStore(),
		WithLogger(logging.Discard()),
		WithClientOptions(gcp.WithHTTPClient(g.Client())),
		WithPollerOptions(poller.WithRetryPause(time.Millisecond)))
	return f, cfg
}

func TestDefaultFactoryCreate(t *testing.T) {
	f, cfg := newFactory(t, newFakeGoogle(t))

	tasks := cfg.Tasks()
	require.Len(t, tasks, 3)

	for _, task := range tasks {
		r, err := f.Create(context.Background(), task, &recordingWriter{})
		require.NoError(t, err, task.Name)
		switch task.Kind {
		case config.KindMetric:
			assert.IsType(t, &poller.MetricPoller{}, r)
		case config.KindMessage:
			assert.IsType(t, &poller.MessagePoller{}, r)
		}
	}

	// Every task names the same credentials, so one client serves all.
	assert.Len(t, f.clients, 1)
}

func TestDefaultFactoryMessageTaskEndToEnd(t *testing.T) {
	g := newFakeGoogle(t)
	f, cfg := newFactory(t, g)
	task, err := cfg.Task("audit:audit-sub")
	require.NoError(t, err)

	w := &recordingWriter{}
	r, err := f.Create(context.Background(), task, w)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background())
	}()
	require.Eventually(t, func() bool { return len(g.ackedIDs()) == 1 }, 5*time.Second, 5*time.Millisecond)
	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("message task did not stop")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.batches, 1)
	assert.Equal(t, "proj:audit-sub", w.batches[0].Meta.Source)
	assert.Equal(t, "google:pubsub", w.batches[0].Meta.Sourcetype)
	assert.Contains(t, w.batches[0].Payloads[0], `"data":"hello"`)
}

func TestDefaultFactoryUnknownCredentials(t *testing.T) {
	f := NewDefaultFactory(credsFunc(func(config.Task) gcp.Config {
		return gcp.Config{CredentialsFile: "/nonexistent/sa.json"}
	}), state.NewMemoryStore(), WithLogger(logging.Discard()))

	_, err := f.Create(context.Background(), config.Task{Name: "cpu:x", Kind: config.KindMetric, Credentials: "missing"}, &recordingWriter{})
	assert.Error(t, err)
}

type credsFunc func(config.Task) gcp.Config

func (f credsFunc) CredentialsFor(t config.Task) gcp.Config {
	return f(t)
}
