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

package worker

import (
	"os"
	"syscall"
)

// ParentCheck reports whether the process that started us is gone.
type ParentCheck struct {
	ppid int
}

// NewParentCheck records the current parent pid.
func NewParentCheck() *ParentCheck {
	return &ParentCheck{ppid: os.Getppid()}
}

// Orphaned is true once we were reparented or the parent no longer answers
// signal 0.
func (p *ParentCheck) Orphaned() bool {
	if os.Getppid() != p.ppid {
		return true
	}
	proc, err := os.FindProcess(p.ppid)
	if err != nil {
		return true
	}
	return proc.Signal(syscall.Signal(0)) != nil
}
