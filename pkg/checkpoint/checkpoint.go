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

package checkpoint

import (
	"context"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/state"
)

// State is the persisted checkpoint record.
type State struct {
	Oldest  string `json:"oldest"`
	Version int    `json:"version"`
}

func (s State) toMap() map[string]any {
	return map[string]any{
		"oldest":  s.Oldest,
		"version": s.Version,
	}
}

func fromMap(m map[string]any) (State, error) {
	oldest, ok := m["oldest"].(string)
	if !ok || oldest == "" {
		return State{}, errors.New(errors.ErrCodeInternal, "checkpoint record has no oldest value")
	}
	st := State{Oldest: StripZone(oldest), Version: defaults.CheckpointVersion}
	if v, ok := m["version"].(float64); ok {
		st.Version = int(v)
	}
	return st, nil
}

// Checkpointer holds one task's checkpoint and writes it through to a state store.
type Checkpointer struct {
	store state.Store
	name  string
	key   string

	mu    sync.Mutex
	state State
}

// Open loads the checkpoint of the named task, seeding it from start when
// nothing is stored yet. Seeding does not write to the store.
func Open(ctx context.Context, store state.Store, name, start string) (*Checkpointer, error) {
	c := &Checkpointer{
		store: store,
		name:  name,
		key:   state.EncodeKey(name),
	}

	rec, err := store.Get(ctx, c.key)
	switch {
	case state.IsNotFound(err):
		if _, perr := Parse(start); perr != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeInvalidConfig,
				"invalid start boundary", perr, map[string]any{"task": name})
		}
		c.state = State{Oldest: StripZone(start), Version: defaults.CheckpointVersion}
	case err != nil:
		return nil, errors.WrapWithContext(errors.ErrCodeUnavailable,
			"failed to read checkpoint", err, map[string]any{"task": name})
	default:
		st, ferr := fromMap(rec.Data)
		if ferr != nil {
			return nil, ferr
		}
		c.state = st
	}
	return c, nil
}

// Key returns the encoded store key.
func (c *Checkpointer) Key() string {
	return c.key
}

// State returns a copy of the current record.
func (c *Checkpointer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Oldest returns the stored (unsuffixed) boundary.
func (c *Checkpointer) Oldest() string {
	return c.State().Oldest
}

// SetOldest moves the boundary to oldest, persisting it when commit is set.
// Moving the boundary backwards is rejected.
func (c *Checkpointer) SetOldest(ctx context.Context, oldest string, commit bool) error {
	oldest = StripZone(oldest)
	next, err := Parse(oldest)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := Parse(c.state.Oldest)
	if err != nil {
		return err
	}
	if next.Before(cur) {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "checkpoint cannot move backwards",
			map[string]any{"task": c.name, "current": c.state.Oldest, "requested": oldest})
	}

	c.state.Oldest = oldest
	if !commit {
		return nil
	}
	if err := c.store.Set(ctx, c.key, c.state.toMap()); err != nil {
		return errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to commit checkpoint", err,
			map[string]any{"task": c.name, "oldest": oldest})
	}
	return nil
}

// Delete removes the persisted record. The in-memory value is left alone.
func (c *Checkpointer) Delete(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to delete checkpoint", err,
			map[string]any{"task": c.name})
	}
	return nil
}
