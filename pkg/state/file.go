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
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

const lockFileName = ".state.lock"

// FileStore keeps one JSON file per key in a directory. Writes are atomic
// renames and conditional writes hold an flock on a directory lock file, so
// several collector processes on one host may share the directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "state directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("failed to create state directory %s", dir), err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *FileStore) read(key string) (string, bool, error) {
	b, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.ErrCodeInternal, "failed to read state file", err)
	}
	return string(b), true, nil
}

func (s *FileStore) write(key, raw string) error {
	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to create temp state file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(raw); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeInternal, "failed to write state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeInternal, "failed to sync state file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to close state file", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to commit state file", err)
	}
	return nil
}

// withLock runs fn while holding an exclusive flock on the directory lock file.
func (s *FileStore) withLock(fn func() error) error {
	f, err := os.OpenFile(filepath.Join(s.dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to open state lock", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to lock state directory", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck // closing the fd releases it anyway

	return fn()
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) (Record, error) {
	if err := ValidateKey(key); err != nil {
		return Record{}, err
	}
	raw, ok, err := s.read(key)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, notFound(key)
	}
	return decode(key, raw)
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, key string, data map[string]any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		return s.write(key, raw)
	})
}

// SetIf implements Store.
func (s *FileStore) SetIf(_ context.Context, key string, data map[string]any, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return s.withLock(func() error {
		current, _, err := s.read(key)
		if err != nil {
			return err
		}
		if current != version {
			return conflict(key)
		}
		return s.write(key, raw)
	})
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.withLock(func() error {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeInternal, "failed to delete state file", err)
		}
		return nil
	})
}

// DeleteIf implements Store.
func (s *FileStore) DeleteIf(_ context.Context, key string, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.withLock(func() error {
		current, ok, err := s.read(key)
		if err != nil {
			return err
		}
		if !ok || current != version {
			return conflict(key)
		}
		if err := os.Remove(s.path(key)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to delete state file", err)
		}
		return nil
	})
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
