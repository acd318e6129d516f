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

package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sinkQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_sink_queue_depth",
			Help: "Number of batches waiting in the event sink queue",
		},
	)

	sinkBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_sink_batches_total",
			Help: "Total number of batches handled by the drain loop",
		},
		[]string{"backend", "status"}, // delivered or failed
	)

	sinkEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_sink_events_total",
			Help: "Total number of events delivered",
		},
		[]string{"backend"},
	)

	sinkDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_sink_delivery_duration_seconds",
			Help:    "Time taken to deliver one batch including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"backend"},
	)

	sinkDeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_sink_delivery_attempts_total",
			Help: "Total number of delivery attempts made by remote backends",
		},
		[]string{"backend", "status"},
	)
)
