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
	"strings"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/k8s/client"
)

// URI schemes accepted by Open.
const (
	MemoryURIScheme = "memory://"
	FileURIScheme   = "file://"
	RedisURIScheme  = "redis://"
)

// Open returns the backend selected by uri. A bare path is treated as a
// file store directory.
func Open(_ context.Context, uri string) (Store, error) {
	switch {
	case uri == "" || strings.HasPrefix(uri, MemoryURIScheme):
		return NewMemoryStore(), nil
	case strings.HasPrefix(uri, ConfigMapURIScheme):
		namespace, name, err := parseConfigMapURI(uri)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid state URI", err)
		}
		kc, _, err := client.GetKubeClient()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnavailable, "failed to get kubernetes client", err)
		}
		return NewConfigMapStore(kc, namespace, name), nil
	case strings.HasPrefix(uri, RedisURIScheme), strings.HasPrefix(uri, "rediss://"):
		return NewRedisStoreFromURL(uri)
	case strings.HasPrefix(uri, FileURIScheme):
		return NewFileStore(strings.TrimPrefix(uri, FileURIScheme))
	case strings.Contains(uri, "://"):
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "unsupported state URI scheme",
			map[string]any{"uri": uri})
	default:
		return NewFileStore(uri)
	}
}
