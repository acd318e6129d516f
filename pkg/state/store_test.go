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

package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory":    NewMemoryStore(),
		"file":      fs,
		"configmap": NewConfigMapStore(fake.NewSimpleClientset(), "monitoring", "collector-state"),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			_, err := store.Get(ctx, "task-a")
			assert.True(t, IsNotFound(err), "expected not found, got %v", err)

			require.NoError(t, store.Set(ctx, "task-a", map[string]any{"oldest": "2016-01-01T00:00:00", "version": 1}))
			rec, err := store.Get(ctx, "task-a")
			require.NoError(t, err)
			assert.Equal(t, "2016-01-01T00:00:00", rec.Data["oldest"])
			assert.EqualValues(t, 1, rec.Data["version"])
			assert.NotEmpty(t, rec.Version)

			// a second key must not disturb the first
			require.NoError(t, store.Set(ctx, "task-b", map[string]any{"oldest": "x"}))
			rec2, err := store.Get(ctx, "task-a")
			require.NoError(t, err)
			assert.Equal(t, rec.Version, rec2.Version)

			require.NoError(t, store.Delete(ctx, "task-a"))
			_, err = store.Get(ctx, "task-a")
			assert.True(t, IsNotFound(err))

			// deleting again is fine
			assert.NoError(t, store.Delete(ctx, "task-a"))
		})
	}
}

func TestStoreSetIf(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SetIf(ctx, "ckpt.lock", map[string]any{"holder": "a"}, ""))

			err := store.SetIf(ctx, "ckpt.lock", map[string]any{"holder": "b"}, "")
			assert.True(t, IsConflict(err), "expected conflict, got %v", err)

			rec, err := store.Get(ctx, "ckpt.lock")
			require.NoError(t, err)
			assert.Equal(t, "a", rec.Data["holder"])

			require.NoError(t, store.SetIf(ctx, "ckpt.lock", map[string]any{"holder": "b"}, rec.Version))

			err = store.SetIf(ctx, "ckpt.lock", map[string]any{"holder": "c"}, rec.Version)
			assert.True(t, IsConflict(err), "stale version must conflict, got %v", err)
		})
	}
}

func TestStoreDeleteIf(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.DeleteIf(ctx, "ckpt.lock", "")
			assert.True(t, IsConflict(err), "missing key must conflict, got %v", err)

			require.NoError(t, store.Set(ctx, "ckpt.lock", map[string]any{"holder": "a"}))
			stale, err := store.Get(ctx, "ckpt.lock")
			require.NoError(t, err)

			require.NoError(t, store.Set(ctx, "ckpt.lock", map[string]any{"holder": "b"}))
			err = store.DeleteIf(ctx, "ckpt.lock", stale.Version)
			assert.True(t, IsConflict(err), "stale version must conflict, got %v", err)

			rec, err := store.Get(ctx, "ckpt.lock")
			require.NoError(t, err)
			assert.Equal(t, "b", rec.Data["holder"])

			require.NoError(t, store.DeleteIf(ctx, "ckpt.lock", rec.Version))
			_, err = store.Get(ctx, "ckpt.lock")
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestStoreSetIfSingleWinner(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for name, store := range map[string]Store{"memory": NewMemoryStore(), "file": fs} {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if store.SetIf(ctx, "ckpt.lock", map[string]any{"holder": i}, "") == nil {
						wins.Add(1)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"ckpt.lock", false},
		{EncodeKey("project:my metric/with?chars"), false},
		{"", true},
		{"..", true},
		{".state.lock", true},
		{"a/b", true},
		{"a b", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateKey(%q) = %v", tt.key, err)
		})
	}
}

func TestEncodeKeyRoundTrip(t *testing.T) {
	for _, name := range []string{"metrics-1", "proj:pubsub.googleapis.com/subscription/pull_request_count", "ünïcödé", "a+b=c"} {
		key := EncodeKey(name)
		require.NoError(t, ValidateKey(key))
		got, err := DecodeKey(key)
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}
}

func TestParseConfigMapURI(t *testing.T) {
	tests := []struct {
		name          string
		uri           string
		wantNamespace string
		wantName      string
		wantErr       bool
	}{
		{name: "valid", uri: "cm://monitoring/collector-state", wantNamespace: "monitoring", wantName: "collector-state"},
		{name: "spaces", uri: "cm://monitoring / collector-state ", wantNamespace: "monitoring", wantName: "collector-state"},
		{name: "missing scheme", uri: "monitoring/collector-state", wantErr: true},
		{name: "missing name", uri: "cm://monitoring/", wantErr: true},
		{name: "missing namespace", uri: "cm:///collector-state", wantErr: true},
		{name: "missing separator", uri: "cm://monitoring", wantErr: true},
		{name: "only scheme", uri: "cm://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, name, err := parseConfigMapURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNamespace, ns)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		uri     string
		want    any
		wantErr bool
	}{
		{name: "empty is memory", uri: "", want: &MemoryStore{}},
		{name: "memory", uri: "memory://", want: &MemoryStore{}},
		{name: "file scheme", uri: "file://" + dir, want: &FileStore{}},
		{name: "bare path", uri: dir, want: &FileStore{}},
		{name: "redis", uri: "redis://localhost:6379/0", want: &RedisStore{}},
		{name: "bad configmap", uri: "cm://only", wantErr: true},
		{name: "unknown scheme", uri: "s3://bucket/key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	s, err := NewRedisStoreFromURL("redis://localhost:6379/0")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "cloud-collector:ckpt.lock", s.key("ckpt.lock"))

	_, err = NewRedisStoreFromURL("http://nope")
	assert.Error(t, err)
}
