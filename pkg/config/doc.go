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

// Package config loads and validates the collector configuration and expands
// input stanzas into polling tasks.
//
// The configuration is one YAML file:
//
//	global:
//	  role: dispatcher
//	  index: main
//	credentials:
//	  default:
//	    credentials_file: /etc/collector/sa.json
//	sink:
//	  kind: hec
//	  hec:
//	    server_uri: https://hec.example.com:8088
//	    token: 00000000-0000-0000-0000-000000000000
//	state:
//	  uri: file:///var/lib/cloud-collector
//	inputs:
//	  - name: cpu
//	    kind: metric
//	    project: my-project
//	    metrics: compute.googleapis.com/instance/cpu/utilization,compute.googleapis.com/instance/uptime
//	    oldest: "2016-01-01T00:00:00"
//
// Each input stanza fans out into one Task per value of the field named by
// its kind's Descriptor. Descriptors may point at an extra settings file
// holding more inputs of that kind.
//
// COLLECTOR_* environment variables override selected settings after the
// file is parsed. Load fails fast with an INVALID_CONFIG error.
package config
