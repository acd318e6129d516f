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

// Package gcp is a small REST client for the Google Cloud APIs the collector
// reads from: Cloud Monitoring time series and metric descriptors, and Cloud
// Pub/Sub pull, acknowledge and publish.
//
// Requests are authenticated with golang.org/x/oauth2/google credentials
// (inline service account JSON or application default credentials) and are
// retried up to three times on 5xx, 429 and connection failures.
//
//	c, err := gcp.NewClient(ctx, gcp.Config{CredentialsJSON: creds})
//	series, err := c.ListMetrics(ctx, "my-project", "pubsub.googleapis.com/subscription/pull_request_count",
//	    "2016-01-01T00:00:00-00:00", "2016-01-01T01:00:00-00:00")
//
// Long-poll timeouts on Pull are reported as TRANSIENT errors so that
// callers can treat them as an empty batch.
package gcp
