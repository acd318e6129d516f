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

// Package state provides the durable small-state stores that back collector
// checkpoints and the leader lease.
//
// Every backend stores a JSON-encoded map under a key and implements the same
// Store contract, including a conditional write used for lease contention.
// The version of a record is its stored encoding, so SetIf succeeds only when
// the record has not changed since it was read.
//
// # Backends
//
// The backend is selected by URI:
//
//	memory://                      process-local, for tests and single-process runs
//	file:///var/lib/collector      one file per key, flock-guarded
//	cm://namespace/name            one Kubernetes ConfigMap, optimistic concurrency
//	redis://host:6379/0            Redis with WATCH/MULTI conditional writes
//
// # Keys
//
// Keys are restricted to the ConfigMap data key alphabet ([-._a-zA-Z0-9]) so
// that state moves between backends unchanged. Names that may contain other
// characters must go through EncodeKey first.
//
// # Usage
//
//	store, err := state.Open(ctx, "cm://monitoring/cloud-collector-state")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec, err := store.Get(ctx, state.EncodeKey(task.Name))
//	if state.IsNotFound(err) {
//	    // seed a fresh record
//	}
package state
