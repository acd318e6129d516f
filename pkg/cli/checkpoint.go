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
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-collector/pkg/checkpoint"
	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/state"
)

// CheckpointStatus is one row of checkpoint show.
type CheckpointStatus struct {
	Task    string `json:"task" yaml:"task"`
	Key     string `json:"key" yaml:"key"`
	Oldest  string `json:"oldest" yaml:"oldest"`
	Version int    `json:"version" yaml:"version"`
	Stored  bool   `json:"stored" yaml:"stored"`
}

var taskFlag = &cli.StringFlag{
	Name:  "task",
	Usage: "Expanded metric task name (default: every metric task)",
}

func checkpointCmd() *cli.Command {
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "Inspect or reset metric checkpoints",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the stored window start of metric tasks",
				Flags: []cli.Flag{taskFlag, outputFlag, formatFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withStore(ctx, cmd, func(cfg *config.Config, store state.Store) error {
						tasks, err := metricTasks(cfg, cmd.String("task"))
						if err != nil {
							return err
						}
						rows := make([]CheckpointStatus, 0, len(tasks))
						for _, t := range tasks {
							row, err := checkpointStatus(ctx, store, t)
							if err != nil {
								return err
							}
							rows = append(rows, row)
						}
						return writeOutput(ctx, cmd, rows)
					})
				},
			},
			{
				Name:  "reset",
				Usage: "Delete the checkpoint of a metric task so it restarts from its configured oldest time",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Required: true,
						Usage:    "Expanded metric task name",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withStore(ctx, cmd, func(cfg *config.Config, store state.Store) error {
						tasks, err := metricTasks(cfg, cmd.String("task"))
						if err != nil {
							return err
						}
						t := tasks[0]
						cp, err := checkpoint.Open(ctx, store, t.Name, t.Oldest)
						if err != nil {
							return err
						}
						if err := cp.Delete(ctx); err != nil {
							return fmt.Errorf("failed to reset checkpoint of %q: %w", t.Name, err)
						}
						slog.Info("checkpoint reset", "task", t.Name, "oldest", t.Oldest)
						return nil
					})
				},
			},
		},
	}
}

func withStore(ctx context.Context, cmd *cli.Command, fn func(*config.Config, state.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)
	return fn(cfg, store)
}

// metricTasks returns the named metric task, or every metric task when name
// is empty.
func metricTasks(cfg *config.Config, name string) ([]config.Task, error) {
	if name != "" {
		t, err := cfg.Task(name)
		if err != nil {
			return nil, err
		}
		if t.Kind != config.KindMetric {
			return nil, fmt.Errorf("task %q is a %s task and has no checkpoint", name, t.Kind)
		}
		return []config.Task{t}, nil
	}
	var out []config.Task
	for _, t := range cfg.Tasks() {
		if t.Kind == config.KindMetric {
			out = append(out, t)
		}
	}
	return out, nil
}

func checkpointStatus(ctx context.Context, store state.Store, t config.Task) (CheckpointStatus, error) {
	cp, err := checkpoint.Open(ctx, store, t.Name, t.Oldest)
	if err != nil {
		return CheckpointStatus{}, err
	}
	_, err = store.Get(ctx, cp.Key())
	switch {
	case state.IsNotFound(err):
	case err != nil:
		return CheckpointStatus{}, err
	}
	st := cp.State()
	return CheckpointStatus{
		Task:    t.Name,
		Key:     cp.Key(),
		Oldest:  st.Oldest,
		Version: st.Version,
		Stored:  err == nil,
	}, nil
}
