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

// Package sink is the output stage of the collector: a bounded FIFO of event
// batches drained by one goroutine into a single backend.
//
// Producers call WriteEvents, which blocks while the queue is full. Nothing is
// dropped to make room. Backends that confirm delivery (HEC, raw HEC, Kafka)
// make WriteEvents wait for the drain loop's verdict, so a batch that
// exhausts its retry budget is reported to the producer. The stream backend
// returns as soon as the batch is queued.
//
// # Backends
//
//   - stream: framed <stream><event>... text on a local writer (stdout)
//   - hec: newline-delimited JSON to {server_uri}/services/collector
//   - hec_raw: pass-through text to {server_uri}/services/collector/raw
//   - kafka: one JSON message per event through a synchronous producer
//
// # Usage
//
//	s, err := sink.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	s.Start()
//	defer s.Close()
//
//	batch := sink.CreateEvents(sink.Meta{Index: "main", Source: "proj:sub"}, payloads)
//	if err := s.WriteEvents(ctx, batch, 3); err != nil {
//	    // retry budget exhausted
//	}
package sink
