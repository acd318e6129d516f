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

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_ops_http_requests_total",
			Help: "Total number of requests served by the ops endpoint",
		},
		[]string{"route", "method", "code"},
	)

	opsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_ops_http_request_duration_seconds",
			Help:    "Ops endpoint request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"route"},
	)

	opsResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_ops_http_response_bytes_total",
			Help: "Total response body bytes written by the ops endpoint",
		},
		[]string{"route"},
	)

	opsRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_ops_http_requests_in_flight",
			Help: "Ops endpoint requests currently being served",
		},
	)

	opsRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_ops_http_rate_limited_total",
			Help: "Total number of ops requests rejected by the rate limiter",
		},
	)

	opsHandlerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_ops_http_handler_panics_total",
			Help: "Total number of panics recovered in ops handlers",
		},
	)
)

// metricsMiddleware records request metrics under the registered route
// rather than the request path, so unmatched paths caught by "/" do not
// create new series.
func (s *Server) metricsMiddleware(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		opsRequestsInFlight.Inc()
		defer opsRequestsInFlight.Dec()

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		opsRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.Status())).Inc()
		opsRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		opsResponseBytes.WithLabelValues(route).Add(float64(rec.bytes))
	}
}
