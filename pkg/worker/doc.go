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

// Package worker runs one polling task in its own execution unit.
//
// A Spawner starts the unit and returns a Handle. Two spawners exist and the
// supervisor picks one for the whole run:
//
//   - GoroutineSpawner runs the task in the supervisor process and hands
//     batches straight to the shared sink.
//   - ProcessSpawner re-executes the current binary with the hidden worker
//     command. The child hands batches to the parent over newline-delimited
//     JSON frames on stdout and reads acks and the stop frame on stdin.
//
// Inside every unit a watcher waits for the teardown signal, polling it every
// two seconds, and runs an orphan check in between. Either condition calls
// the task's Stop and the unit reports done only after the poll loop exits.
//
// Frame protocol:
//
//	child  -> parent  {"type":"batch","id":7,"retry":3,"batch":{...}}
//	parent -> child   {"type":"ack","id":7}
//	parent -> child   {"type":"ack","id":7,"code":"DELIVERY_FAILED","error":"..."}
//	parent -> child   {"type":"stop"}
//
// EOF on the child's stdin is treated as a stop frame.
package worker
