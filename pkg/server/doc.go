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

// Package server is the collector's ops HTTP endpoint.
//
// # Endpoints
//
//   - GET /health  liveness; always 200 while the process serves requests
//   - GET /ready   readiness; 503 until the readiness check passes
//   - GET /metrics Prometheus metrics
//   - GET /        name, version and registered routes
//
// Additional handlers registered with WithHandler run behind the middleware
// chain: metrics, request id, panic recovery, rate limiting (token bucket
// from golang.org/x/time/rate) and request logging.
//
// # Usage
//
//	s := server.New(
//	    server.WithName("collectord"),
//	    server.WithReadinessCheck(func() error { return nil }),
//	)
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is done and then shuts down gracefully within
// ShutdownTimeout.
package server
