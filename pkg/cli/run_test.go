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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
)

type notifications struct {
	mu     sync.Mutex
	states []string
}

func (n *notifications) notify(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, s)
}

func (n *notifications) get() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test server
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
	return resp.StatusCode
}

func TestRunServesStatusUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(writeConfig(t, dir, "server:\n  enabled: true\n  address: 127.0.0.1:0\n"))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	var notes notifications
	r := &runner{
		cfg:      cfg,
		out:      &bytes.Buffer{},
		log:      logging.Discard(),
		notify:   notes.notify,
		listener: ln,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ready") //nolint:gosec,noctx // test server
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	var tasks []TaskStatus
	require.Equal(t, http.StatusOK, getJSON(t, base+"/v1/tasks", &tasks))
	require.Len(t, tasks, 3)
	names := map[string]TaskStatus{}
	for _, ts := range tasks {
		names[ts.Name] = ts
	}
	require.Contains(t, names, cpuTask)
	require.Contains(t, names, uptimeTask)
	require.Contains(t, names, "audit:audit-sub")
	// Every task fails to start because its credentials file is missing.
	for _, ts := range tasks {
		assert.False(t, ts.Running, ts.Name)
	}
	assert.Equal(t, "message", names["audit:audit-sub"].Kind)
	assert.Equal(t, "audit-sub", names["audit:audit-sub"].Resource)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, notes.get())
}

func TestRunReturnsWhenConfigChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the config check timer")
	}
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	var notes notifications
	r := &runner{cfg: cfg, out: &bytes.Buffer{}, log: logging.Discard(), notify: notes.notify}

	done := make(chan error, 1)
	go func() { done <- r.run(context.Background()) }()

	require.Eventually(t, func() bool { return r.dispatching.Load() }, 5*time.Second, 10*time.Millisecond)
	writeConfig(t, dir, "# edited\n")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("run did not return after the config file changed")
	}
	assert.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}, notes.get())
}

// TestWorkerHelper stands in for a child worker process.
func TestWorkerHelper(t *testing.T) {
	if os.Getenv("COLLECTOR_CLI_HELPER") != "1" {
		return
	}
	os.Exit(0)
}

func TestRunProcessIsolationPerInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state:
  uri: file://`+filepath.Join(dir, "state")+`
inputs:
  - name: audit
    kind: message
    project: proj
    subscriptions: audit-sub
    isolation: process
`), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.IsolationGoroutine, cfg.Global.Isolation)
	require.Len(t, cfg.Tasks(), 1)
	require.Equal(t, config.IsolationProcess, cfg.Tasks()[0].Isolation)

	var mu sync.Mutex
	var spawned []string
	var notes notifications
	command := func(task config.Task) *exec.Cmd {
		mu.Lock()
		spawned = append(spawned, task.Name)
		mu.Unlock()
		cmd := exec.Command(os.Args[0], "-test.run=^TestWorkerHelper$")
		cmd.Env = append(os.Environ(), "COLLECTOR_CLI_HELPER=1")
		return cmd
	}
	r := &runner{
		cfg:     cfg,
		out:     &bytes.Buffer{},
		log:     logging.Discard(),
		notify:  notes.notify,
		command: command,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(spawned) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "audit:audit-sub", spawned[0])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestUsesProcessIsolation(t *testing.T) {
	tests := []struct {
		name   string
		global config.Isolation
		input  config.Isolation
		want   bool
	}{
		{name: "defaults", want: false},
		{name: "global process", global: config.IsolationProcess, want: true},
		{name: "input process", input: config.IsolationProcess, want: true},
		{name: "input goroutine under global process", global: config.IsolationProcess, input: config.IsolationGoroutine, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(`
global:
  isolation: ` + string(tt.global) + `
inputs:
  - name: audit
    kind: message
    project: proj
    subscriptions: audit-sub
    isolation: ` + string(tt.input) + `
`))
			require.NoError(t, err)
			require.NoError(t, cfg.Finish())
			assert.Equal(t, tt.want, usesProcessIsolation(cfg))
		})
	}
}

func TestNewServerRejectsBadAddress(t *testing.T) {
	tests := []string{"8080", "host:port"}
	for _, addr := range tests {
		t.Run(addr, func(t *testing.T) {
			r := &runner{cfg: &config.Config{Server: config.Server{Enabled: true, Address: addr}}}
			_, err := r.newServer()
			assert.Error(t, err)
		})
	}
}
