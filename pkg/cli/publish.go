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
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-collector/pkg/gcp"
)

// PublishResult lists the IDs assigned to published messages.
type PublishResult struct {
	Topic      string   `json:"topic" yaml:"topic"`
	MessageIDs []string `json:"messageIds" yaml:"messageIds"`
}

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish test messages to a Pub/Sub topic",
		ArgsUsage: "MESSAGE...",
		Description: `Publishes each argument as one message. Useful for checking that a
subscription input receives and forwards data end to end.

# Examples

  collectord publish --project proj --topic audit '{"event":"login"}'`,
		Flags: []cli.Flag{
			projectFlag,
			&cli.StringFlag{
				Name:     "topic",
				Required: true,
				Usage:    "Topic ID within the project",
			},
			credentialsFileFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			msgs := cmd.Args().Slice()
			if len(msgs) == 0 {
				return fmt.Errorf("at least one message is required")
			}
			client, err := newGoogleClient(ctx, cmd)
			if err != nil {
				return err
			}

			payloads := make([][]byte, 0, len(msgs))
			for _, m := range msgs {
				payloads = append(payloads, []byte(m))
			}
			project, topic := cmd.String("project"), cmd.String("topic")
			ids, err := client.Publish(ctx, project, topic, payloads)
			if err != nil {
				return fmt.Errorf("failed to publish to %q: %w", topic, err)
			}
			slog.Info("messages published", "topic", topic, "count", len(ids))
			return writeOutput(ctx, cmd, PublishResult{
				Topic:      gcp.FQRN("topics", project, topic),
				MessageIDs: ids,
			})
		},
	}
}

func descriptorsCmd() *cli.Command {
	return &cli.Command{
		Name:  "descriptors",
		Usage: "List the metric types available in a project",
		Description: `Lists metric descriptors, optionally filtered by type prefix. The types
are what a metric input's "metrics" setting accepts.

# Examples

  collectord descriptors --project proj --prefix pubsub.googleapis.com/ --format table`,
		Flags: []cli.Flag{
			projectFlag,
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Only list metric types starting with this prefix",
			},
			credentialsFileFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newGoogleClient(ctx, cmd)
			if err != nil {
				return err
			}
			project := cmd.String("project")
			all, err := client.ListMetricDescriptors(ctx, project)
			if err != nil {
				return fmt.Errorf("failed to list metric descriptors of %q: %w", project, err)
			}
			return writeOutput(ctx, cmd, filterDescriptors(all, cmd.String("prefix")))
		},
	}
}

func filterDescriptors(all []gcp.MetricDescriptor, prefix string) []gcp.MetricDescriptor {
	out := make([]gcp.MetricDescriptor, 0, len(all))
	for _, d := range all {
		if strings.HasPrefix(d.Type, prefix) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
