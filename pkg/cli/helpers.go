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

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/serializer"
	"github.com/NVIDIA/cloud-collector/pkg/state"
)

var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}

	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   string(serializer.FormatYAML),
		Usage:   fmt.Sprintf("output format (%v)", serializer.SupportedFormats()),
	}

	projectFlag = &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Required: true,
		Usage:    "Google Cloud project ID",
		Sources:  cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
	}

	credentialsFileFlag = &cli.StringFlag{
		Name:  "credentials-file",
		Usage: "Service account key file (default: application default credentials)",
	}
)

func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	f := serializer.Format(cmd.String("format"))
	if f.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q", f)
	}
	return f, nil
}

// writeOutput serializes v according to the --format and --output flags.
func writeOutput(ctx context.Context, cmd *cli.Command, v any) error {
	f, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}
	ser := serializer.NewFileWriterOrStdout(f, cmd.String("output"))
	defer func() {
		if err := ser.Close(); err != nil {
			slog.Warn("failed to close serializer", "error", err)
		}
	}()
	if err := ser.Serialize(ctx, v); err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	return nil
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", path, err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	store, err := state.Open(ctx, cfg.State.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store %q: %w", cfg.State.URI, err)
	}
	return store, nil
}

func closeStore(store state.Store) {
	if err := store.Close(); err != nil {
		slog.Warn("failed to close state store", "error", err)
	}
}

func newGoogleClient(ctx context.Context, cmd *cli.Command) (*gcp.Client, error) {
	client, err := gcp.NewClient(ctx, gcp.Config{CredentialsFile: cmd.String("credentials-file")},
		gcp.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google API client: %w", err)
	}
	return client, nil
}
