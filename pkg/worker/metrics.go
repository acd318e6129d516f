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

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workerRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collector_worker_running",
			Help: "Number of running execution units",
		},
		[]string{"mode"},
	)

	workerExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_worker_exits_total",
			Help: "Total number of execution units that exited",
		},
		[]string{"mode", "result"}, // clean, failed, orphaned
	)

	workerFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_worker_frames_total",
			Help: "Total number of frames exchanged with child processes",
		},
		[]string{"type", "direction"},
	)
)
