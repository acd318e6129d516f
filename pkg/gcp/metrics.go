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

package gcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gcpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_gcp_requests_total",
			Help: "Total number of Google API requests by API and status class",
		},
		[]string{"api", "status"},
	)

	gcpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_gcp_request_duration_seconds",
			Help:    "Google API request latency including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)
)
