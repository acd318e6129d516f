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

package defaults

// Capacities and thresholds.
const (
	// SinkQueueCapacity is the number of batches the event sink buffers
	// before producers block.
	SinkQueueCapacity = 1000

	// PullBatchSize is the default maxMessages of one Pub/Sub pull.
	PullBatchSize = 100

	// MetricPageSize is the page size requested from the monitoring API.
	MetricPageSize = 100

	// RecordReportThreshold is the record count between throughput log lines.
	RecordReportThreshold = 1000000

	// CheckpointVersion is the schema version stamped on checkpoint records.
	CheckpointVersion = 1
)

// Well-known names.
const (
	// LeaseKey is the state store key holding the leader lease record.
	LeaseKey = "ckpt.lock"

	// MetricSourcetype is the default sourcetype for metric events.
	MetricSourcetype = "google:cloudmonitor"

	// MessageSourcetype is the default sourcetype for message events.
	MessageSourcetype = "google:pubsub"

	// UserAgent is sent on every outbound HTTP request.
	UserAgent = "cloud-collector/1.0"

	// FieldManager identifies collector writes to Kubernetes objects.
	FieldManager = "cloud-collector"
)
