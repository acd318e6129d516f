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
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-collector/pkg/k8s/client"
	"github.com/NVIDIA/cloud-collector/pkg/logging"
)

const (
	name           = "collectord"
	versionDefault = "dev"

	defaultConfigPath = "/etc/collector/collector.yaml"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath,
		Usage:   "Path to the collector configuration file",
		Sources: cli.EnvVars("COLLECTOR_CONFIG"),
	}

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Log level (debug, info, warn, error)",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}

	kubeconfigFlag = &cli.StringFlag{
		Name:  "kubeconfig",
		Usage: "Kubeconfig for the cm:// state backend (default: KUBECONFIG, ~/.kube/config, in-cluster)",
	}
)

// Execute runs the command line and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Google Cloud metrics and Pub/Sub collector",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		EnableShellCompletion: true,
		Description: `Polls Google Cloud Monitoring time series and Pub/Sub subscriptions and
forwards the results as events to stdout, Splunk HEC or Kafka.

Metric polling resumes from durable checkpoints. Message polling acknowledges
only what the sink accepted.`,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			kubeconfigFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			if kc := cmd.String("kubeconfig"); kc != "" {
				client.SetKubeconfig(kc)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			runCmd(),
			workerCmd(),
			checkpointCmd(),
			leaseCmd(),
			publishCmd(),
			descriptorsCmd(),
		},
	}
}
