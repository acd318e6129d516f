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

package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_poller_cycles_total",
			Help: "Total number of poll cycles by task kind and result",
		},
		[]string{"kind", "result"}, // committed, failed, busy, empty
	)

	pollerRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_poller_records_total",
			Help: "Total number of records handed to the sink",
		},
		[]string{"kind", "task"},
	)

	pollerCheckpoint = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collector_poller_checkpoint_timestamp_seconds",
			Help: "Committed lower window boundary per metric task",
		},
		[]string{"task"},
	)

	pollerSinkRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_poller_sink_retries_total",
			Help: "Total number of rejected sink hand-offs retried by the message poller",
		},
		[]string{"task"},
	)
)
