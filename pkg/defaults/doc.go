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

// Package defaults provides centralized configuration constants for the collector.
//
// This package defines timeout values, retry parameters, capacities and other
// defaults used across the codebase. Centralizing these values ensures
// consistency and makes tuning easier.
//
// # Categories
//
//   - Poller bounds: minimum polling interval and metric window width
//   - Retry pauses: sink and source retry budgets
//   - Supervision: teardown polling, config and orphan check periods
//   - Lease: TTL, poll interval, start jitter
//   - Server and HTTP client timeouts
//   - Capacities: sink queue size, pull batch size, report threshold
//
// # Usage
//
// Import and use constants directly:
//
//	import "github.com/NVIDIA/cloud-collector/pkg/defaults"
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.StateStoreTimeout)
//	defer cancel()
//
// # Guidelines
//
//   - The sink queue capacity is the backpressure point; producers block past it
//   - Lease TTL must stay well above the poll interval
//   - Server shutdown: 30s for graceful shutdown
package defaults
