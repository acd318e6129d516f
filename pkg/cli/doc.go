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

// Package cli implements the collectord command line.
//
// # Commands
//
// run - Poll every configured input and forward events to the sink:
//
//	collectord run --config /etc/collector/collector.yaml
//
// Dispatcher nodes wait for the leader lease before starting their tasks.
// The command exits when the configuration file changes so the service
// manager can restart it with the new settings.
//
// checkpoint - Inspect or reset metric checkpoints:
//
//	collectord checkpoint show
//	collectord checkpoint reset --task cpu:compute.googleapis.com/instance/cpu/utilization
//
// lease - Inspect or force-release the leader lease:
//
//	collectord lease status --format json
//	collectord lease release
//
// publish - Publish test messages to a Pub/Sub topic:
//
//	collectord publish --project proj --topic audit hello world
//
// descriptors - List the metric types available in a project:
//
//	collectord descriptors --project proj --prefix compute.googleapis.com/
//
// worker runs a single task in a child process and is started by run
// when isolation is set to process. It is hidden from help output.
//
// # Global Flags
//
//	--config, -c   Configuration file (env COLLECTOR_CONFIG)
//	--log-level    Logging verbosity: debug, info, warn, error (env LOG_LEVEL)
//	--kubeconfig   Kubeconfig used by the cm:// state backend
//
// # Output Formats
//
// Inspection commands accept --format (yaml, json, table) and --output.
//
// # Exit Codes
//
//	0  Success, including a restart requested by a configuration change
//	1  General error (invalid arguments, execution failure)
package cli
