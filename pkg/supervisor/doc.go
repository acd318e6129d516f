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

// Package supervisor owns the task set of one collector process.
//
// Start picks the isolation mode from the first task, creates the shared
// event sink and teardown signal, spawns one execution unit per task and
// blocks until Stop or context cancellation. On the way out it closes the
// teardown signal, waits for every unit, closes the sink and tears down the
// timer scheduler.
//
// Two periodic checks run on the scheduler when configured: a config change
// check every 10 seconds and an orphan check every second. Either one stops
// the supervisor when it fires.
//
// A task that exits with an error is logged and counted. It is not
// restarted; restarts are left to the process manager running the
// collector.
package supervisor
