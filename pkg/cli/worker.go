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
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-collector/pkg/collector"
	"github.com/NVIDIA/cloud-collector/pkg/worker"
)

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run a single task in a child process",
		Hidden: true,
		Description: `Runs one task and sends its batches to the parent over stdout as
newline-delimited JSON frames. Acknowledgements and the stop request arrive
on stdin. Started by "run" when isolation is "process".`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "task",
				Required: true,
				Usage:    "Expanded task name, e.g. cpu:compute.googleapis.com/instance/cpu/utilization",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			task, err := cfg.Task(cmd.String("task"))
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore(store)

			log := slog.Default().With(slog.String("task", task.Name), slog.Int("pid", os.Getpid()))
			factory := collector.NewDefaultFactory(cfg, store, collector.WithLogger(log))
			return worker.RunChild(ctx, task, factory.Create, os.Stdin, os.Stdout, worker.WithLogger(log))
		},
	}
}
