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
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/cloud-collector/pkg/collector"
	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/lease"
	"github.com/NVIDIA/cloud-collector/pkg/serializer"
	"github.com/NVIDIA/cloud-collector/pkg/server"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
	"github.com/NVIDIA/cloud-collector/pkg/state"
	"github.com/NVIDIA/cloud-collector/pkg/supervisor"
	"github.com/NVIDIA/cloud-collector/pkg/worker"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll every configured input and forward events to the sink",
		Description: `Start one polling task per expanded input and forward their events to the
configured sink until interrupted.

Nodes with role "dispatcher" wait for the leader lease first and release it
on exit. The command returns when the configuration file changes.

# Examples

Run with the default configuration file:
  collectord run

Run with the ops endpoint and process isolation:
  COLLECTOR_SERVER_ADDRESS=:9090 COLLECTOR_ISOLATION=process collectord run -c collector.yaml`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "exit-with-parent",
				Usage:   "Stop when the parent process exits",
				Sources: cli.EnvVars("COLLECTOR_EXIT_WITH_PARENT"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &runner{
				cfg:            cfg,
				out:            os.Stdout,
				log:            slog.Default(),
				exitWithParent: cmd.Bool("exit-with-parent"),
				notify:         sdNotify,
			}
			return r.run(ctx)
		},
	}
}

// runner wires the run command's components.
type runner struct {
	cfg            *config.Config
	out            io.Writer
	log            *slog.Logger
	exitWithParent bool
	notify         func(state string)

	// listener overrides the ops server address, for tests.
	listener net.Listener
	// command overrides the child process command, for tests.
	command  worker.CommandFunc

	dispatching atomic.Bool
	sup         *supervisor.Supervisor
}

func (r *runner) run(ctx context.Context) error {
	store, err := openStore(ctx, r.cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	watcher, err := config.NewWatcher(r.cfg.Files(), r.log)
	if err != nil {
		return err
	}
	defer watcher.Close()

	r.sup, err = r.newSupervisor(store, watcher)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if r.cfg.Server.Enabled {
		srv, err := r.newServer()
		if err != nil {
			return err
		}
		g.Go(func() error {
			if r.listener != nil {
				return srv.Serve(gctx, r.listener)
			}
			return srv.Start(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		if !r.cfg.UseLease() {
			return r.dispatch(gctx)
		}
		lock := lease.New(store,
			lease.WithKey(r.cfg.Lease.Key),
			lease.WithTTL(time.Duration(r.cfg.Lease.TTL)*time.Second),
			lease.WithLogger(r.log))
		r.log.Info("waiting for leader lease", slog.String("key", r.cfg.Lease.Key),
			slog.String("holder", lock.Holder()))
		return lock.Do(gctx, r.dispatch)
	})

	stopWatchdog := startWatchdog(gctx, r.log)
	defer stopWatchdog()

	err = g.Wait()
	r.notify(daemon.SdNotifyStopping)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *runner) dispatch(ctx context.Context) error {
	r.dispatching.Store(true)
	defer r.dispatching.Store(false)

	tasks := r.cfg.Tasks()
	r.log.Info("dispatching tasks", slog.Int("tasks", len(tasks)), slog.String("role", string(r.cfg.Global.Role)))
	r.notify(daemon.SdNotifyReady)
	return r.sup.Start(ctx, tasks)
}

func (r *runner) newSupervisor(store state.Store, watcher *config.Watcher) (*supervisor.Supervisor, error) {
	factory := collector.NewDefaultFactory(r.cfg, store, collector.WithLogger(r.log))

	opts := []supervisor.Option{
		supervisor.WithTaskFactory(factory.Create),
		supervisor.WithSinkFactory(func() (supervisor.EventSink, error) {
			s, err := sink.Open(r.cfg.Sink, r.out, r.log)
			if err != nil {
				return nil, err
			}
			return s, nil
		}),
		supervisor.WithConfigCheck(watcher.Changed),
		supervisor.WithLogger(r.log),
	}
	if usesProcessIsolation(r.cfg) {
		command := r.command
		if command == nil {
			var err error
			if command, err = worker.SelfCommand(r.cfg.Path()); err != nil {
				return nil, err
			}
		}
		opts = append(opts, supervisor.WithCommand(command))
	}
	if r.exitWithParent {
		opts = append(opts, supervisor.WithOrphanCheck(worker.NewParentCheck().Orphaned))
	}
	return supervisor.New(opts...), nil
}

// usesProcessIsolation reports whether any task runs in a child process.
// Isolation can be set per input, so the global setting alone is not enough.
func usesProcessIsolation(cfg *config.Config) bool {
	if cfg.Global.Isolation == config.IsolationProcess {
		return true
	}
	for _, t := range cfg.Tasks() {
		if t.Isolation == config.IsolationProcess {
			return true
		}
	}
	return false
}

func (r *runner) newServer() (*server.Server, error) {
	sc, err := server.NewConfig(r.cfg.Server.Address)
	if err != nil {
		return nil, err
	}

	return server.New(
		server.WithConfig(sc),
		server.WithName(name),
		server.WithVersion(version),
		server.WithLogger(r.log),
		server.WithReadinessCheck(func() error {
			if !r.dispatching.Load() {
				return errors.New(errors.ErrCodeUnavailable, "not dispatching")
			}
			return nil
		}),
		server.WithHandler(map[string]http.HandlerFunc{
			"/v1/tasks": r.handleTasks,
		}),
	), nil
}

// TaskStatus is one row of the /v1/tasks response.
type TaskStatus struct {
	Name       string `json:"name" yaml:"name"`
	Kind       string `json:"kind" yaml:"kind"`
	Project    string `json:"project" yaml:"project"`
	Resource   string `json:"resource" yaml:"resource"`
	Sourcetype string `json:"sourcetype" yaml:"sourcetype"`
	Isolation  string `json:"isolation" yaml:"isolation"`
	Running    bool   `json:"running" yaml:"running"`
}

func (r *runner) taskStatus() []TaskStatus {
	started := map[string]bool{}
	if r.sup != nil {
		for _, h := range r.sup.Handles() {
			started[h.Name()] = true
		}
	}
	tasks := r.cfg.Tasks()
	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskStatus{
			Name:       t.Name,
			Kind:       string(t.Kind),
			Project:    t.Project,
			Resource:   t.Resource(),
			Sourcetype: t.Sourcetype,
			Isolation:  string(t.Isolation),
			Running:    r.dispatching.Load() && started[t.Name],
		})
	}
	return out
}

func (r *runner) handleTasks(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		server.WriteError(w, req, http.StatusMethodNotAllowed, server.ErrCodeMethodNotAllowed,
			"Method not allowed", false, map[string]any{"method": req.Method})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := serializer.NewWriter(serializer.FormatJSON, w).Serialize(req.Context(), r.taskStatus()); err != nil {
		r.log.Warn("failed to write task status", slog.String("error", err.Error()))
	}
}

func sdNotify(s string) {
	if _, err := daemon.SdNotify(false, s); err != nil {
		slog.Debug("sd_notify failed", "state", s, "error", err)
	}
}

// startWatchdog pings the systemd watchdog at half its interval when one is
// configured for the unit.
func startWatchdog(ctx context.Context, log *slog.Logger) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return func() {}
	}
	log.Debug("systemd watchdog enabled", slog.Duration("interval", interval))

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
