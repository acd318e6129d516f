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

package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	supervisorTasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_supervisor_tasks_running",
			Help: "Number of tasks currently running under the supervisor",
		},
	)

	supervisorTaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_supervisor_task_failures_total",
			Help: "Total number of tasks that failed to start or exited with an error",
		},
		[]string{"stage"}, // spawn or run
	)

	supervisorStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_supervisor_stops_total",
			Help: "Total number of supervisor shutdowns by trigger",
		},
		[]string{"reason"},
	)
)
