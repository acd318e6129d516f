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

// Package checkpoint persists the per-task time boundary of the windowed
// metric poller.
//
// A checkpoint records the oldest instant not yet collected for a task. It is
// seeded from the task's configured start boundary on first access and moves
// forward only after a window has been handed to the event sink. Only Delete
// lowers it.
//
// Times travel to the monitoring API with an explicit "-00:00" zone suffix,
// while the stored value never carries it. StripZone and AddZone convert
// between the two forms and are exact inverses.
package checkpoint
