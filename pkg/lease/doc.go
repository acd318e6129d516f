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

// Package lease implements a TTL-bounded leader lease over a state store.
//
// Every dispatcher node contends for one record stored under a well-known
// key. A node may take the record when it is absent or when its timestamp is
// older than the TTL. The takeover is a compare-and-set against the value the
// node read, so among concurrent contenders exactly one wins.
//
// Usage:
//
//	l := lease.New(store, lease.WithLogger(logger))
//	err := l.Do(ctx, func(ctx context.Context) error {
//	    return sup.Start(ctx, tasks)
//	})
//
// Store failures while contending are treated as contention: they are logged
// and the node keeps polling until ctx is done.
package lease
