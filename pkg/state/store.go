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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// Store is a durable key to map store with a compare-and-set primitive.
type Store interface {
	// Get returns the record stored under key, or a NOT_FOUND error.
	Get(ctx context.Context, key string) (Record, error)

	// Set unconditionally replaces the record stored under key.
	Set(ctx context.Context, key string, data map[string]any) error

	// SetIf replaces the record only if its current version equals version.
	// An empty version requires the key to be absent. A lost race returns a
	// CONFLICT error.
	SetIf(ctx context.Context, key string, data map[string]any, version string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteIf removes key only if its current version equals version.
	// A missing key or a newer version returns a CONFLICT error.
	DeleteIf(ctx context.Context, key string, version string) error

	// Close releases backend resources.
	Close() error
}

// Record is a stored map together with the version it was read at.
type Record struct {
	Data    map[string]any
	Version string
}

var keyPattern = regexp.MustCompile(`^[-._a-zA-Z0-9]+$`)

// EncodeKey maps an arbitrary name onto the key alphabet accepted by every backend.
func EncodeKey(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRequest, "invalid encoded key", err)
	}
	return string(b), nil
}

// ValidateKey checks that key is usable by every backend.
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > 253 || !keyPattern.MatchString(key) || strings.HasPrefix(key, ".") {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest,
			"state key must match [-_a-zA-Z0-9][-._a-zA-Z0-9]*", map[string]any{"key": key})
	}
	return nil
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.IsCode(err, errors.ErrCodeNotFound)
}

// IsConflict reports whether err means a conditional write lost a race.
func IsConflict(err error) bool {
	return errors.IsCode(err, errors.ErrCodeConflict)
}

func notFound(key string) error {
	return errors.NewWithContext(errors.ErrCodeNotFound, "state not found", map[string]any{"key": key})
}

func conflict(key string) error {
	return errors.NewWithContext(errors.ErrCodeConflict, "state changed since read", map[string]any{"key": key})
}

func encode(data map[string]any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRequest, "failed to encode state", err)
	}
	return string(b), nil
}

func decode(key, raw string) (Record, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Record{}, errors.WrapWithContext(errors.ErrCodeInternal,
			fmt.Sprintf("corrupt state for key %s", key), err, map[string]any{"key": key})
	}
	return Record{Data: data, Version: raw}, nil
}
