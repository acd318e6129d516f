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

// Package poller implements the two polling tasks.
//
// MetricPoller walks Cloud Monitoring time series forward in bounded windows,
// committing a checkpoint after every window it hands to the sink, including
// windows that returned nothing. Invocations never overlap.
//
// MessagePoller streams a Pub/Sub subscription: pull, hand the batch to the
// sink until it is accepted, then acknowledge. Messages are acknowledged only
// after the sink accepted them.
//
// Both pollers stop cooperatively: Stop cancels in-flight requests and the
// loops exit at the next check.
package poller
