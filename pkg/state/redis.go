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
	stderrors "errors"
	"fmt"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/go-redis/redis/v8"
)

// RedisKeyPrefix namespaces collector keys inside a shared Redis database.
const RedisKeyPrefix = "cloud-collector:"

// RedisStore keeps each key as a Redis string holding the JSON record.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. Both single-node and failover
// clients are accepted.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: RedisKeyPrefix}
}

// NewRedisStoreFromURL dials the server described by a redis:// URL.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid redis URL", err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	if stderrors.Is(err, redis.TxFailedErr) {
		return conflict(key)
	}
	return errors.WrapWithContext(errors.ErrCodeUnavailable, fmt.Sprintf("redis %s failed", op), err,
		map[string]any{"key": key})
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ValidateKey(key); err != nil {
		return Record{}, err
	}
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, s.wrap("get", key, err)
	}
	return decode(key, raw)
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, data map[string]any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return s.wrap("set", key, s.client.Set(ctx, s.key(key), raw, 0).Err())
}

// SetIf implements Store using optimistic WATCH/MULTI.
func (s *RedisStore) SetIf(ctx context.Context, key string, data map[string]any, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	rkey := s.key(key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rkey).Result()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return conflict(key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, raw, 0)
			return nil
		})
		return err
	}, rkey)
	return s.wrap("conditional set", key, err)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.wrap("delete", key, s.client.Del(ctx, s.key(key)).Err())
}

// DeleteIf implements Store using optimistic WATCH/MULTI.
func (s *RedisStore) DeleteIf(ctx context.Context, key string, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	rkey := s.key(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, rkey).Result()
		if stderrors.Is(err, redis.Nil) {
			return conflict(key)
		}
		if err != nil {
			return err
		}
		if current != version {
			return conflict(key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			return nil
		})
		return err
	}, rkey)
	return s.wrap("conditional delete", key, err)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
