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
	"log/slog"
	"strings"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
)

// ConfigMapURIScheme is the URI prefix selecting the ConfigMap backend.
const ConfigMapURIScheme = "cm://"

// ConfigMapStore keeps every key as a data entry of one ConfigMap.
// Writes are read-modify-update against the object's resourceVersion, so a
// concurrent writer surfaces as a conflict rather than a lost update.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

// NewConfigMapStore returns a store backed by namespace/name.
// The ConfigMap is created on first write.
func NewConfigMapStore(client kubernetes.Interface, namespace, name string) *ConfigMapStore {
	return &ConfigMapStore{
		client:    client,
		namespace: namespace,
		name:      name,
	}
}

func (s *ConfigMapStore) get(ctx context.Context) (*corev1.ConfigMap, error) {
	ctx, cancel := context.WithTimeout(ctx, defaults.StateStoreTimeout)
	defer cancel()
	return s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
}

// mutate applies fn to the current ConfigMap and writes it back, creating
// the object when it does not exist yet.
func (s *ConfigMapStore) mutate(ctx context.Context, fn func(data map[string]string) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, defaults.StateStoreTimeout)
	defer cancel()

	cms := s.client.CoreV1().ConfigMaps(s.namespace)
	cm, err := cms.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		data := map[string]string{}
		changed, ferr := fn(data)
		if ferr != nil || !changed {
			return ferr
		}
		_, err = cms.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
				Labels: map[string]string{
					"app.kubernetes.io/name":      "cloud-collector",
					"app.kubernetes.io/component": "state",
				},
			},
			Data: data,
		}, metav1.CreateOptions{FieldManager: defaults.FieldManager})
		return err
	}
	if err != nil {
		return err
	}

	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	changed, err := fn(cm.Data)
	if err != nil || !changed {
		return err
	}
	_, err = cms.Update(ctx, cm, metav1.UpdateOptions{FieldManager: defaults.FieldManager})
	return err
}

func (s *ConfigMapStore) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	if apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err) {
		return conflict(key)
	}
	return errors.WrapWithContext(errors.ErrCodeUnavailable, fmt.Sprintf("configmap %s failed", op), err,
		map[string]any{"namespace": s.namespace, "name": s.name, "key": key})
}

// Get implements Store.
func (s *ConfigMapStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ValidateKey(key); err != nil {
		return Record{}, err
	}
	cm, err := s.get(ctx)
	if apierrors.IsNotFound(err) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, s.wrap("get", key, err)
	}
	raw, ok := cm.Data[key]
	if !ok {
		return Record{}, notFound(key)
	}
	return decode(key, raw)
}

// Set implements Store. Conflicts with writers of other keys are retried.
func (s *ConfigMapStore) Set(ctx context.Context, key string, data map[string]any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		return s.mutate(ctx, func(d map[string]string) (bool, error) {
			d[key] = raw
			return true, nil
		})
	})
	return s.wrap("set", key, err)
}

// SetIf implements Store. Only the first attempt is made; any interleaved
// write reports a conflict to the caller.
func (s *ConfigMapStore) SetIf(ctx context.Context, key string, data map[string]any, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	raw, err := encode(data)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, func(d map[string]string) (bool, error) {
		if d[key] != version {
			return false, conflict(key)
		}
		d[key] = raw
		return true, nil
	})
	return s.wrap("conditional set", key, err)
}

// Delete implements Store.
func (s *ConfigMapStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		return s.mutate(ctx, func(d map[string]string) (bool, error) {
			if _, ok := d[key]; !ok {
				return false, nil
			}
			delete(d, key)
			return true, nil
		})
	})
	return s.wrap("delete", key, err)
}

// DeleteIf implements Store. Like SetIf, an interleaved write is reported
// as a conflict rather than retried.
func (s *ConfigMapStore) DeleteIf(ctx context.Context, key string, version string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := s.mutate(ctx, func(d map[string]string) (bool, error) {
		if current, ok := d[key]; !ok || current != version {
			return false, conflict(key)
		}
		delete(d, key)
		return true, nil
	})
	return s.wrap("conditional delete", key, err)
}

// Close implements Store.
func (s *ConfigMapStore) Close() error {
	return nil
}

// parseConfigMapURI parses a ConfigMap URI in the format cm://namespace/name
// and returns the namespace and name components.
func parseConfigMapURI(uri string) (namespace, name string, err error) {
	if !strings.HasPrefix(uri, ConfigMapURIScheme) {
		return "", "", fmt.Errorf("invalid ConfigMap URI: must start with %s", ConfigMapURIScheme)
	}

	path := strings.TrimPrefix(uri, ConfigMapURIScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid ConfigMap URI format: expected %snamespace/name, got %s", ConfigMapURIScheme, uri)
	}

	namespace = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])
	if namespace == "" || name == "" {
		return "", "", fmt.Errorf("invalid ConfigMap URI: namespace and name are required, got %s", uri)
	}

	slog.Debug("parsed configmap uri", "namespace", namespace, "name", name)
	return namespace, name, nil
}
