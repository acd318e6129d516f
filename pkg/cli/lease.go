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
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/lease"
	"github.com/NVIDIA/cloud-collector/pkg/state"
)

// LeaseStatus describes the stored leader lease.
type LeaseStatus struct {
	Key      string `json:"key" yaml:"key"`
	Held     bool   `json:"held" yaml:"held"`
	Holder   string `json:"holder,omitempty" yaml:"holder,omitempty"`
	PID      int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Acquired string `json:"acquired,omitempty" yaml:"acquired,omitempty"`
	Expired  bool   `json:"expired" yaml:"expired"`
}

func leaseCmd() *cli.Command {
	return &cli.Command{
		Name:  "lease",
		Usage: "Inspect or force-release the leader lease",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the current lease holder",
				Flags: []cli.Flag{outputFlag, formatFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withStore(ctx, cmd, func(cfg *config.Config, store state.Store) error {
						st, err := leaseStatus(ctx, store, cfg.Lease, time.Now())
						if err != nil {
							return err
						}
						return writeOutput(ctx, cmd, st)
					})
				},
			},
			{
				Name:  "release",
				Usage: "Delete the lease record regardless of its holder",
				Description: `Removes the lease so another dispatcher can take over immediately.
Only use this when the holder is known to be gone; a live holder notices
the loss at its next renewal and stops dispatching.`,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withStore(ctx, cmd, func(cfg *config.Config, store state.Store) error {
						if err := lease.ForceRelease(ctx, store, cfg.Lease.Key); err != nil {
							return err
						}
						slog.Info("lease released", "key", cfg.Lease.Key)
						return nil
					})
				},
			},
		},
	}
}

func leaseStatus(ctx context.Context, store state.Store, cfg config.Lease, now time.Time) (LeaseStatus, error) {
	st := LeaseStatus{Key: cfg.Key}
	rec, err := lease.Inspect(ctx, store, cfg.Key)
	switch {
	case state.IsNotFound(err):
		return st, nil
	case err != nil:
		return LeaseStatus{}, err
	}
	st.Held = true
	st.Holder = rec.Holder
	st.PID = rec.PID
	st.Acquired = rec.At().UTC().Format(time.RFC3339)
	st.Expired = rec.Expired(now, time.Duration(cfg.TTL)*time.Second)
	return st, nil
}
