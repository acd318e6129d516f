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

import "time"

// Polling intervals and window bounds for the windowed metric poller.
const (
	// MinPollingInterval is the floor applied to a task's configured interval.
	MinPollingInterval = 600 * time.Second

	// MetricWindow is the default upper bound on one fetch window.
	MetricWindow = 3600 * time.Second

	// MinMetricWindow is the floor applied to a configured window width.
	MinMetricWindow = 600 * time.Second
)

// Retry pauses used by pollers and sinks.
const (
	// RetryPause is the fixed pause between sink delivery attempts and
	// after a failed pull of the message source.
	RetryPause = 2 * time.Second

	// SourceRequestAttempts is the number of tries per cloud API request.
	SourceRequestAttempts = 3

	// SinkDeliveryAttempts is the default retry budget for confirmed sinks.
	SinkDeliveryAttempts = 3
)

// Worker supervision timings.
const (
	// TeardownPollInterval bounds how long a watcher waits on the teardown
	// signal before checking for an orphaned parent.
	TeardownPollInterval = 2 * time.Second

	// ConfigCheckInterval is the period of the configuration change monitor.
	ConfigCheckInterval = 10 * time.Second

	// OrphanCheckInterval is the period of the supervisor orphan checker.
	OrphanCheckInterval = 1 * time.Second

	// WorkerStopTimeout is how long a process worker gets to exit after a
	// stop frame before it is killed.
	WorkerStopTimeout = 30 * time.Second
)

// Leader lease timings.
const (
	// LeaseTTL is the age after which a lease record is considered expired.
	LeaseTTL = 300 * time.Second

	// LeasePollInterval is the pause between acquisition attempts.
	LeasePollInterval = 1 * time.Second

	// LeaseJitterMin and LeaseJitterMax bound the random delay before the
	// first acquisition attempt.
	LeaseJitterMin = 1 * time.Second
	LeaseJitterMax = 3 * time.Second

	// LeaseReleaseTimeout bounds the release call made on shutdown.
	LeaseReleaseTimeout = 10 * time.Second
)

// Server timeouts for the ops HTTP server.
const (
	// ServerReadTimeout is the maximum duration for reading request headers.
	ServerReadTimeout = 10 * time.Second

	// ServerReadHeaderTimeout prevents slow header attacks.
	ServerReadHeaderTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration for writing a response.
	ServerWriteTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum duration to wait for the next request.
	ServerIdleTimeout = 120 * time.Second

	// ServerShutdownTimeout is the maximum duration for graceful shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// HTTP client timeouts for outbound requests to cloud APIs and HEC.
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	// Pub/Sub pulls with returnImmediately=false may hold the connection
	// open for a while, so this is deliberately generous.
	HTTPClientTimeout = 90 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second
)

// State store timeouts.
const (
	// StateStoreTimeout bounds a single state store round trip.
	StateStoreTimeout = 30 * time.Second
)
