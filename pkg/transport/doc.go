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

// Package transport builds the outbound HTTP clients used by the HEC sink
// and the Google Cloud API client.
//
// Clients are pooled keep-alive clients with TLS 1.2 minimum and conservative
// dial, handshake and idle timeouts taken from pkg/defaults. A client can be
// rebuilt at any time with the same options, which the HEC sink does after a
// failed post.
//
//	c := transport.New(
//	    transport.WithUserAgent(defaults.UserAgent),
//	    transport.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
//	)
//	httpClient := c.Client()
package transport
