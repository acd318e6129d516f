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

// Package client provides the shared Kubernetes client used by the
// ConfigMap-backed state store.
//
// The client is built once per process with sync.Once. Configuration is
// discovered from, in order:
//
//   - the path given to SetKubeconfig (the --kubeconfig flag)
//   - the KUBECONFIG environment variable
//   - ~/.kube/config
//   - the in-cluster service account
//
// Usage:
//
//	clientset, _, err := client.GetKubeClient()
//	if err != nil {
//	    return fmt.Errorf("failed to get kubernetes client: %w", err)
//	}
//	store := state.NewConfigMapStore(clientset, "monitoring", "cloud-collector-state")
package client
